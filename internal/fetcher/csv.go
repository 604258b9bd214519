package fetcher

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	Delimiter rune // default ','
	Latin1    bool // decode ISO-8859-1 input before parsing
}

// ReadCSV parses delimited text into rows. The municipal open-data portal
// publishes its CSV exports in ISO-8859-1 with ';' separators, so the
// routes ingester reads with {Delimiter: ';', Latin1: true}.
func ReadCSV(r io.Reader, opts CSVOptions) ([][]string, error) {
	if opts.Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse csv")
	}
	return rows, nil
}

// NormalizeHeader lowercases a header cell and replaces separators with
// underscores, matching the column naming used by the Silver tables.
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	for _, sep := range []string{" ", "-", ".", "/"} {
		h = strings.ReplaceAll(h, sep, "_")
	}
	return h
}
