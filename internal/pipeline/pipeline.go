// Package pipeline orchestrates the Bronze, Silver and Gold stages of a
// run: dependency checks, the run state machine, ledger persistence and
// the per-run summary file.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bhtransit/mobility-pipeline/internal/lineage"
	"github.com/bhtransit/mobility-pipeline/internal/model"
)

// ErrMissingDependency is returned when a requested layer needs an upstream
// snapshot that neither this run nor a previous one produced. The check runs
// before any stage starts, so a doomed run fails fast.
var ErrMissingDependency = errors.New("pipeline: missing upstream snapshot")

// EventRecorder lets a stage emit lineage events attributed to the run.
type EventRecorder func(ev model.LineageEvent)

// StageFn executes one layer and reports its result. Record counts and
// rejection tallies go in the LayerResult; a non-nil error fails the run.
type StageFn func(ctx context.Context, record EventRecorder) (model.LayerResult, error)

// Stages bundles the three layer executors and the snapshot probes the
// dependency checks need.
type Stages struct {
	Bronze StageFn
	Silver StageFn
	Gold   StageFn

	HasBronzeSnapshot func(ctx context.Context) (bool, error)
	HasSilverSnapshot func(ctx context.Context) (bool, error)
}

// Request selects what a run executes.
type Request struct {
	Layers     []model.Layer
	SkipBronze bool
}

// Orchestrator drives runs through the state machine and persists them to
// the ledger.
type Orchestrator struct {
	ledger     lineage.Store
	stages     Stages
	summaryDir string
}

// New creates an Orchestrator. summaryDir may be empty to disable run
// summary files.
func New(ledger lineage.Store, stages Stages, summaryDir string) *Orchestrator {
	return &Orchestrator{ledger: ledger, stages: stages, summaryDir: summaryDir}
}

var runningStates = map[model.Layer]model.RunState{
	model.LayerBronze: model.RunRunningBronze,
	model.LayerSilver: model.RunRunningSilver,
	model.LayerGold:   model.RunRunningGold,
}

// Run executes the requested layers in pipeline order. The returned Run
// carries per-layer results even when the run failed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*model.Run, error) {
	layers := normalizeLayers(req.Layers)
	now := time.Now().UTC()
	run := &model.Run{
		ID:          uuid.New().String(),
		ExecutionID: now.Format("20060102_150405"),
		Requested:   layers,
		State:       model.RunPending,
		StartedAt:   now,
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("execution_id", run.ExecutionID))
	log.Info("pipeline: starting run", zap.Any("layers", layers), zap.Bool("skip_bronze", req.SkipBronze))

	if err := o.ledger.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	if err := o.checkDependencies(ctx, layers, req.SkipBronze); err != nil {
		return run, o.fail(ctx, run, log, err)
	}

	record := func(ev model.LineageEvent) {
		if recErr := o.ledger.RecordEvent(ctx, run.ID, ev); recErr != nil {
			log.Warn("pipeline: failed to record lineage event", zap.Error(recErr))
		}
	}

	for _, layer := range layers {
		if layer == model.LayerBronze && req.SkipBronze {
			run.Layers = append(run.Layers, model.LayerResult{Layer: layer, Skipped: true})
			log.Info("pipeline: skipping bronze, reusing latest snapshot")
			continue
		}

		o.setState(ctx, run, log, runningStates[layer])

		start := time.Now()
		result, err := o.stageFor(layer)(ctx, record)
		result.Layer = layer
		result.Duration = time.Since(start)

		if err != nil {
			result.Error = err.Error()
			run.Layers = append(run.Layers, result)
			log.Error("pipeline: stage failed",
				zap.String("layer", string(layer)),
				zap.Duration("duration", result.Duration),
				zap.Error(err),
			)
			return run, o.fail(ctx, run, log, eris.Wrapf(err, "pipeline: %s stage", layer))
		}

		run.Layers = append(run.Layers, result)
		log.Info("pipeline: stage complete",
			zap.String("layer", string(layer)),
			zap.Int("records", result.Records),
			zap.Duration("duration", result.Duration),
		)
	}

	run.State = model.RunCompleted
	run.FinishedAt = time.Now().UTC()
	if err := o.ledger.CompleteRun(ctx, run); err != nil {
		log.Warn("pipeline: failed to persist completed run", zap.Error(err))
	}
	o.writeSummary(run, log)

	log.Info("pipeline: run complete", zap.Duration("duration", run.Duration()))
	return run, nil
}

// checkDependencies verifies that every requested layer will have its
// upstream data, consulting prior snapshots for layers not run this time.
func (o *Orchestrator) checkDependencies(ctx context.Context, layers []model.Layer, skipBronze bool) error {
	has := func(l model.Layer) bool {
		for _, x := range layers {
			if x == l {
				return true
			}
		}
		return false
	}

	bronzeRuns := has(model.LayerBronze) && !skipBronze
	silverRuns := has(model.LayerSilver)

	if has(model.LayerSilver) && !bronzeRuns {
		ok, err := o.stages.HasBronzeSnapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: probe bronze snapshot")
		}
		if !ok {
			return eris.Wrap(ErrMissingDependency, "silver requires a bronze snapshot")
		}
	}

	if has(model.LayerGold) && !silverRuns {
		ok, err := o.stages.HasSilverSnapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: probe silver snapshot")
		}
		if !ok {
			return eris.Wrap(ErrMissingDependency, "gold requires a silver snapshot")
		}
	}

	return nil
}

func (o *Orchestrator) stageFor(layer model.Layer) StageFn {
	switch layer {
	case model.LayerBronze:
		return o.stages.Bronze
	case model.LayerSilver:
		return o.stages.Silver
	default:
		return o.stages.Gold
	}
}

func (o *Orchestrator) setState(ctx context.Context, run *model.Run, log *zap.Logger, state model.RunState) {
	run.State = state
	if err := o.ledger.UpdateRunState(ctx, run.ID, state); err != nil {
		log.Warn("pipeline: failed to update run state", zap.String("state", string(state)), zap.Error(err))
	}
}

func (o *Orchestrator) fail(ctx context.Context, run *model.Run, log *zap.Logger, err error) error {
	run.State = model.RunFailed
	run.FinishedAt = time.Now().UTC()
	if ledgerErr := o.ledger.CompleteRun(ctx, run); ledgerErr != nil {
		log.Warn("pipeline: failed to persist failed run", zap.Error(ledgerErr))
	}
	o.writeSummary(run, log)
	return err
}

func (o *Orchestrator) writeSummary(run *model.Run, log *zap.Logger) {
	if o.summaryDir == "" {
		return
	}
	path, err := WriteSummary(o.summaryDir, run)
	if err != nil {
		log.Warn("pipeline: failed to write run summary", zap.Error(err))
		return
	}
	log.Info("pipeline: run summary written", zap.String("path", path))
}

// normalizeLayers orders the requested layers bronze, silver, gold and
// defaults to all three.
func normalizeLayers(requested []model.Layer) []model.Layer {
	if len(requested) == 0 {
		return model.AllLayers()
	}
	want := make(map[model.Layer]bool, len(requested))
	for _, l := range requested {
		want[l] = true
	}
	var out []model.Layer
	for _, l := range model.AllLayers() {
		if want[l] {
			out = append(out, l)
		}
	}
	return out
}
