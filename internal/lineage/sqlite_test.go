package lineage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(layers ...model.Layer) *model.Run {
	started := time.Now().UTC().Truncate(time.Second)
	return &model.Run{
		ID:          uuid.New().String(),
		ExecutionID: started.Format("20060102_150405"),
		Requested:   layers,
		State:       model.RunPending,
		StartedAt:   started,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run := newRun(model.LayerBronze, model.LayerSilver, model.LayerGold)
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.ExecutionID, got.ExecutionID)
	assert.Equal(t, model.RunPending, got.State)
	assert.Equal(t, []model.Layer{model.LayerBronze, model.LayerSilver, model.LayerGold}, got.Requested)
	assert.True(t, got.FinishedAt.IsZero())
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestUpdateRunState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run := newRun(model.LayerBronze)
	require.NoError(t, s.CreateRun(ctx, run))

	require.NoError(t, s.UpdateRunState(ctx, run.ID, model.RunRunningBronze))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunRunningBronze, got.State)

	assert.ErrorIs(t, s.UpdateRunState(ctx, "nope", model.RunFailed), ErrRunNotFound)
}

func TestCompleteRunPersistsLayerResults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run := newRun(model.LayerBronze, model.LayerSilver)
	require.NoError(t, s.CreateRun(ctx, run))

	run.State = model.RunCompleted
	run.FinishedAt = run.StartedAt.Add(90 * time.Second)
	run.Layers = []model.LayerResult{
		{Layer: model.LayerBronze, Records: 1200, Duration: 30 * time.Second},
		{Layer: model.LayerSilver, Records: 1100, Duration: 60 * time.Second,
			Rejections: map[string]int{"out_of_bounds": 40, "duplicates": 60}},
	}
	require.NoError(t, s.CompleteRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.State)
	require.Len(t, got.Layers, 2)
	assert.Equal(t, 1100, got.Layers[1].Records)
	assert.Equal(t, 40, got.Layers[1].Rejections["out_of_bounds"])
	assert.Equal(t, 90*time.Second, got.Duration())
}

func TestListRunsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older := newRun(model.LayerBronze)
	older.StartedAt = older.StartedAt.Add(-time.Hour)
	require.NoError(t, s.CreateRun(ctx, older))

	newer := newRun(model.LayerGold)
	require.NoError(t, s.CreateRun(ctx, newer))
	require.NoError(t, s.UpdateRunState(ctx, newer.ID, model.RunFailed))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)

	failed, err := s.ListRuns(ctx, RunFilter{State: model.RunFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, newer.ID, failed[0].ID)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordAndListEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	run := newRun(model.LayerBronze)
	require.NoError(t, s.CreateRun(ctx, run))

	started := time.Now().UTC().Truncate(time.Second)
	ev := model.LineageEvent{
		Source:    string(model.SourceRealtime),
		Operation: "ingest_positions",
		Records:   1200,
		StartedAt: started,
		EndedAt:   started.Add(5 * time.Second),
		Metadata:  map[string]any{"skipped": float64(3)},
	}
	require.NoError(t, s.RecordEvent(ctx, run.ID, ev))

	bare := model.LineageEvent{
		Source:    string(model.SourceRoutes),
		Operation: "ingest_routes",
		Records:   300,
		StartedAt: started.Add(time.Second),
		EndedAt:   started.Add(2 * time.Second),
	}
	require.NoError(t, s.RecordEvent(ctx, run.ID, bare))

	events, err := s.ListEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ingest_positions", events[0].Operation)
	assert.Equal(t, float64(3), events[0].Metadata["skipped"])
	assert.Nil(t, events[1].Metadata)

	none, err := s.ListEvents(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
