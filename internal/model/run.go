package model

import "time"

// RunState is the orchestrator state machine position of a pipeline run.
type RunState string

const (
	RunPending       RunState = "pending"
	RunRunningBronze RunState = "running_bronze"
	RunRunningSilver RunState = "running_silver"
	RunRunningGold   RunState = "running_gold"
	RunCompleted     RunState = "completed"
	RunFailed        RunState = "failed"
)

// Layer names the three storage layers in execution order.
type Layer string

const (
	LayerBronze Layer = "bronze"
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// AllLayers returns the layers in pipeline order.
func AllLayers() []Layer {
	return []Layer{LayerBronze, LayerSilver, LayerGold}
}

// LayerResult records the outcome of one layer within a run.
type LayerResult struct {
	Layer      Layer          `json:"layer" yaml:"layer"`
	Skipped    bool           `json:"skipped" yaml:"skipped"`
	Records    int            `json:"records" yaml:"records"`
	Duration   time.Duration  `json:"duration" yaml:"duration"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	Rejections map[string]int `json:"rejections,omitempty" yaml:"rejections,omitempty"`
}

// Run is the transient state of one pipeline invocation, owned by the
// orchestrator and persisted to the run ledger.
type Run struct {
	ID          string        `json:"id" yaml:"id"`
	ExecutionID string        `json:"execution_id" yaml:"execution_id"`
	Requested   []Layer       `json:"requested" yaml:"requested"`
	State       RunState      `json:"state" yaml:"state"`
	Layers      []LayerResult `json:"layers" yaml:"layers"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time     `json:"finished_at" yaml:"finished_at"`
}

// Duration returns the total elapsed time of the run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// LineageEvent is emitted by storage-layer writes for observability: which
// source produced what, how many records, and when.
type LineageEvent struct {
	Source    string         `json:"source" yaml:"source"`
	Operation string         `json:"operation" yaml:"operation"`
	Records   int            `json:"records" yaml:"records"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time      `json:"ended_at" yaml:"ended_at"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
