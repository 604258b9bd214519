// Package wire parses the line-oriented protocol used by the BH real-time
// position feed. Each record is one line shaped as <K1=V1;K2=V2;...> with
// short fixed field codes. Parsing is pure string work; field naming and
// type coercion live in mapping.go so the parser stays format-agnostic.
package wire

import (
	"fmt"
	"strings"
)

// MalformedLineError reports a line that looked like a record (it started
// with the open delimiter) but could not be parsed. Per-record only, never
// fatal for a batch.
type MalformedLineError struct {
	Line   string
	Reason string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("wire: malformed line (%s): %q", e.Reason, truncate(e.Line, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ParseLine decodes one wire-format line into a field-code to raw-value map.
// The line must be enclosed in <> and contain at least one KEY=VALUE pair.
func ParseLine(line string) (map[string]string, error) {
	if !strings.HasPrefix(line, "<") || !strings.HasSuffix(line, ">") {
		return nil, &MalformedLineError{Line: line, Reason: "missing enclosing delimiters"}
	}
	body := line[1 : len(line)-1]

	fields := make(map[string]string)
	for _, part := range strings.Split(body, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}

	if len(fields) == 0 {
		return nil, &MalformedLineError{Line: line, Reason: "no key=value pairs"}
	}
	return fields, nil
}

// FeedResult is the outcome of parsing a whole feed payload.
type FeedResult struct {
	Records   []map[string]string
	Skipped   int // blank lines and lines not starting with '<'
	Malformed int // lines that started like a record but failed to parse
}

// ParseFeed splits a feed payload into lines and parses each. Blank lines
// and lines not starting with the open delimiter are silently skipped;
// malformed record lines are counted but do not fail the batch.
func ParseFeed(text string) FeedResult {
	var res FeedResult
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "<") {
			res.Skipped++
			continue
		}
		fields, err := ParseLine(line)
		if err != nil {
			res.Malformed++
			continue
		}
		res.Records = append(res.Records, fields)
	}
	return res
}
