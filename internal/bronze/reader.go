package bronze

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoSnapshot indicates a dataset has no Bronze partition on disk yet.
var ErrNoSnapshot = errors.New("bronze: no snapshot found")

// LatestPartitionFile returns the most recently written Parquet file for a
// dataset, scanning all date partitions. The Silver layer always processes
// the latest snapshot, matching the overwrite semantics downstream.
func LatestPartitionFile(root, dataset string) (string, error) {
	base := filepath.Join(root, dataset)

	var latest string
	var latestMod time.Time
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".parquet") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = path
			latestMod = info.ModTime()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", eris.Wrapf(ErrNoSnapshot, "dataset %s", dataset)
		}
		return "", eris.Wrapf(err, "bronze: scan partitions for %s", dataset)
	}
	if latest == "" {
		return "", eris.Wrapf(ErrNoSnapshot, "dataset %s", dataset)
	}
	return latest, nil
}
