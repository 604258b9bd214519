// Package fetcher retrieves feed payloads over HTTPS, cycling through
// browser fingerprint profiles to get past anti-automation blocking.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bhtransit/mobility-pipeline/internal/resilience"
)

// Fetcher retrieves the raw content of a feed endpoint.
type Fetcher interface {
	// FetchText downloads the endpoint and returns the body as text.
	FetchText(ctx context.Context, endpoint string) (string, error)
}

// ExhaustedError is returned when every fingerprint profile failed against
// an endpoint. It carries the last profile tried and its underlying error.
type ExhaustedError struct {
	Endpoint    string
	Profiles    int
	LastProfile string
	Err         error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s: all %d profiles exhausted, last %q: %v",
		e.Endpoint, e.Profiles, e.LastProfile, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Options configures the profile fetcher.
type Options struct {
	Timeout  time.Duration // per-attempt timeout, default 30s
	Profiles []Profile     // fallback chain, default DefaultProfiles
	Referer  string        // sent with every attempt when non-empty
}

// ProfileFetcher implements Fetcher with a sequential profile fallback
// chain. One FetchText call makes at most one pass over the chain; there is
// no cross-call retry.
type ProfileFetcher struct {
	client   *http.Client
	profiles []Profile
	referer  string
	limiters map[string]*rate.Limiter
}

// NewProfileFetcher creates a ProfileFetcher with the given options.
func NewProfileFetcher(opts Options) *ProfileFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = DefaultProfiles()
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &ProfileFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		profiles: opts.Profiles,
		referer:  opts.Referer,
		limiters: map[string]*rate.Limiter{
			"temporeal.pbh.gov.br": rate.NewLimiter(2, 2),
		},
	}
}

func (f *ProfileFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(5, 5)
	}
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(5, 5)
}

// FetchText tries each profile in order until one returns 2xx. Any failure
// (network error, non-2xx status) falls through to the next profile; when
// the chain is exhausted an ExhaustedError is returned.
func (f *ProfileFetcher) FetchText(ctx context.Context, endpoint string) (string, error) {
	log := zap.L().With(zap.String("endpoint", endpoint))

	strategies := make([]resilience.Strategy[string], 0, len(f.profiles))
	for _, p := range f.profiles {
		profile := p
		strategies = append(strategies, resilience.Strategy[string]{
			Name: profile.Name,
			Run: func(ctx context.Context) (string, error) {
				return f.attempt(ctx, endpoint, profile)
			},
		})
	}

	body, winner, err := resilience.FirstSuccess(ctx, strategies, func(name string, err error) {
		log.Warn("fetch attempt failed, trying next profile",
			zap.String("profile", name),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
	})
	if err != nil {
		var exhausted *resilience.ExhaustedError
		if eris.As(err, &exhausted) {
			return "", &ExhaustedError{
				Endpoint:    endpoint,
				Profiles:    exhausted.Attempts,
				LastProfile: exhausted.LastName,
				Err:         exhausted.Err,
			}
		}
		return "", eris.Wrap(err, "fetcher: profile chain")
	}

	log.Info("fetch succeeded",
		zap.String("profile", winner),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}

func (f *ProfileFetcher) attempt(ctx context.Context, endpoint string, profile Profile) (string, error) {
	if err := f.limiterFor(endpoint).Wait(ctx); err != nil {
		return "", eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create request")
	}
	for k, v := range profile.Headers {
		req.Header.Set(k, v)
	}
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: request with profile %s", profile.Name)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused by the next attempt.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", eris.Errorf("fetcher: http %d with profile %s", resp.StatusCode, profile.Name)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: read body")
	}
	return string(data), nil
}
