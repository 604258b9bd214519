package pipeline

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

// summaryFile is the YAML shape of a run summary on disk.
type summaryFile struct {
	RunID       string         `yaml:"run_id"`
	ExecutionID string         `yaml:"execution_id"`
	State       string         `yaml:"state"`
	Requested   []model.Layer  `yaml:"requested"`
	StartedAt   string         `yaml:"started_at"`
	FinishedAt  string         `yaml:"finished_at,omitempty"`
	DurationSec float64        `yaml:"duration_sec"`
	Layers      []summaryLayer `yaml:"layers"`
}

type summaryLayer struct {
	Layer       string         `yaml:"layer"`
	Skipped     bool           `yaml:"skipped,omitempty"`
	Records     int            `yaml:"records"`
	DurationSec float64        `yaml:"duration_sec"`
	Error       string         `yaml:"error,omitempty"`
	Rejections  map[string]int `yaml:"rejections,omitempty"`
}

// WriteSummary writes a human-readable YAML summary of the run into dir,
// named after the execution id. Returns the file path.
func WriteSummary(dir string, run *model.Run) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "pipeline: create summary dir")
	}

	sf := summaryFile{
		RunID:       run.ID,
		ExecutionID: run.ExecutionID,
		State:       string(run.State),
		Requested:   run.Requested,
		StartedAt:   run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		DurationSec: run.Duration().Seconds(),
	}
	if !run.FinishedAt.IsZero() {
		sf.FinishedAt = run.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	for _, lr := range run.Layers {
		sf.Layers = append(sf.Layers, summaryLayer{
			Layer:       string(lr.Layer),
			Skipped:     lr.Skipped,
			Records:     lr.Records,
			DurationSec: lr.Duration.Seconds(),
			Error:       lr.Error,
			Rejections:  lr.Rejections,
		})
	}

	data, err := yaml.Marshal(sf)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: marshal summary")
	}

	path := filepath.Join(dir, "run_"+run.ExecutionID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "pipeline: write summary")
	}
	return path, nil
}
