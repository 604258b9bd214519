package fetcher

// Profile is one connection fingerprint the fetcher can present: a named
// header set simulating a real browser client. The feed's WAF blocks
// obvious non-browser signatures, so profiles are tried in order of
// observed compatibility until one gets through.
type Profile struct {
	Name    string
	Headers map[string]string
}

// DefaultProfiles returns the fallback chain in priority order. Ordering
// matters: the first profile is the one that works most often against the
// temporeal endpoint; the later ones are alternates for when the WAF rules
// shift.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name: "chrome120",
			Headers: map[string]string{
				"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Accept":           "*/*",
				"Accept-Language":  "pt-BR,pt;q=0.9,en;q=0.8",
				"Sec-Ch-Ua":        `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
				"Sec-Ch-Ua-Mobile": "?0",
				"Sec-Fetch-Dest":   "empty",
				"Sec-Fetch-Mode":   "cors",
				"Sec-Fetch-Site":   "same-origin",
			},
		},
		{
			Name: "chrome110",
			Headers: map[string]string{
				"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36",
				"Accept":           "*/*",
				"Accept-Language":  "pt-BR,pt;q=0.9",
				"Sec-Ch-Ua":        `"Chromium";v="110", "Not A(Brand";v="24", "Google Chrome";v="110"`,
				"Sec-Ch-Ua-Mobile": "?0",
			},
		},
		{
			Name: "safari16",
			Headers: map[string]string{
				"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Safari/605.1.15",
				"Accept":          "*/*",
				"Accept-Language": "pt-BR,pt;q=0.9",
			},
		},
		{
			Name: "firefox115",
			Headers: map[string]string{
				"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0",
				"Accept":          "*/*",
				"Accept-Language": "pt-BR,pt;q=0.8,en-US;q=0.5",
			},
		},
	}
}
