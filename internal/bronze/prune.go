package bronze

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Prune removes Bronze day partitions of a dataset older than cutoff.
// Returns the number of partitions removed. A missing dataset directory is
// not an error; retention simply has nothing to do yet.
func Prune(root, dataset string, cutoff time.Time) (int, error) {
	base := filepath.Join(root, dataset)
	removed := 0

	years, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "bronze: read dataset dir %s", base)
	}

	limit := cutoff.UTC().Truncate(24 * time.Hour)
	for _, y := range years {
		if !y.IsDir() {
			continue
		}
		months, err := os.ReadDir(filepath.Join(base, y.Name()))
		if err != nil {
			return removed, eris.Wrap(err, "bronze: read year dir")
		}
		for _, m := range months {
			if !m.IsDir() {
				continue
			}
			days, err := os.ReadDir(filepath.Join(base, y.Name(), m.Name()))
			if err != nil {
				return removed, eris.Wrap(err, "bronze: read month dir")
			}
			for _, d := range days {
				if !d.IsDir() {
					continue
				}
				date, ok := partitionDate(y.Name(), m.Name(), d.Name())
				if !ok || !date.Before(limit) {
					continue
				}
				dir := filepath.Join(base, y.Name(), m.Name(), d.Name())
				if err := os.RemoveAll(dir); err != nil {
					return removed, eris.Wrapf(err, "bronze: remove partition %s", dir)
				}
				removed++
				zap.L().Info("bronze partition pruned",
					zap.String("dataset", dataset),
					zap.String("partition", dir),
				)
			}
		}
	}
	return removed, nil
}

// partitionDate parses year=YYYY/month=MM/day=DD directory names.
func partitionDate(year, month, day string) (time.Time, bool) {
	strip := func(s, prefix string) (string, bool) {
		if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
			return "", false
		}
		return s[len(prefix):], true
	}
	y, okY := strip(year, "year=")
	m, okM := strip(month, "month=")
	d, okD := strip(day, "day=")
	if !okY || !okM || !okD {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", y+"-"+m+"-"+d)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
