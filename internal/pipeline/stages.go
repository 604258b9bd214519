package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bhtransit/mobility-pipeline/internal/bronze"
	"github.com/bhtransit/mobility-pipeline/internal/config"
	"github.com/bhtransit/mobility-pipeline/internal/fetcher"
	"github.com/bhtransit/mobility-pipeline/internal/gold"
	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/silver"
	"github.com/bhtransit/mobility-pipeline/internal/store"
)

// BuildStages wires the concrete layer executors from configuration, the
// HTTP fetcher and the DuckDB handle.
func BuildStages(cfg *config.Config, f fetcher.Fetcher, db *store.DB) (Stages, error) {
	var ingesters []bronze.Ingester
	enabled := map[model.Source]config.SourceConfig{
		model.SourceRealtime: cfg.Sources.RealtimePositions,
		model.SourceRoutes:   cfg.Sources.OperationalRoutes,
	}
	for _, src := range []model.Source{model.SourceRealtime, model.SourceRoutes} {
		sc := enabled[src]
		if !sc.Enabled {
			continue
		}
		ing, err := bronze.NewIngester(src, f, sc.URL)
		if err != nil {
			return Stages{}, err
		}
		ingesters = append(ingesters, ing)
	}
	if len(ingesters) == 0 {
		return Stages{}, eris.New("pipeline: no ingestion sources enabled")
	}

	bronzeRoot := cfg.Storage.BronzePath
	writer := bronze.NewWriter(bronzeRoot)

	return Stages{
		Bronze: bronzeStage(writer, ingesters, bronzeRoot, cfg.Storage.RetentionDays),
		Silver: silverStage(bronzeRoot, db),
		Gold:   goldStage(db),
		HasBronzeSnapshot: func(ctx context.Context) (bool, error) {
			_, err := bronze.LatestPartitionFile(bronzeRoot, bronze.DatasetPositions)
			if eris.Is(err, bronze.ErrNoSnapshot) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return true, nil
		},
		HasSilverSnapshot: func(ctx context.Context) (bool, error) {
			return db.HasTable(ctx, silver.TablePositions)
		},
	}, nil
}

// bronzeStage runs every enabled ingester concurrently against the same
// partition timestamp, then applies the retention window. Any source
// failing fails the stage.
func bronzeStage(w *bronze.Writer, ingesters []bronze.Ingester, root string, retentionDays int) StageFn {
	return func(ctx context.Context, record EventRecorder) (model.LayerResult, error) {
		asOf := time.Now().UTC()

		var mu sync.Mutex
		total := 0

		g, gCtx := errgroup.WithContext(ctx)
		for _, ing := range ingesters {
			g.Go(func() error {
				res, err := ing.Run(gCtx, w, asOf)
				if err != nil {
					return err
				}
				mu.Lock()
				total += res.Records
				mu.Unlock()
				record(res.Lineage)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return model.LayerResult{}, err
		}

		if retentionDays > 0 {
			cutoff := asOf.AddDate(0, 0, -retentionDays)
			for _, dataset := range []string{bronze.DatasetPositions, bronze.DatasetRoutes} {
				if _, err := bronze.Prune(root, dataset, cutoff); err != nil {
					zap.L().Warn("bronze retention prune failed",
						zap.String("dataset", dataset), zap.Error(err))
				}
			}
		}

		return model.LayerResult{Records: total}, nil
	}
}

// silverStage validates and enriches the latest Bronze positions snapshot
// and refreshes the routes dimension when a routes snapshot exists.
func silverStage(bronzeRoot string, db *store.DB) StageFn {
	return func(ctx context.Context, record EventRecorder) (model.LayerResult, error) {
		start := time.Now().UTC()

		path, err := bronze.LatestPartitionFile(bronzeRoot, bronze.DatasetPositions)
		if err != nil {
			return model.LayerResult{}, err
		}

		raw, err := silver.LoadRawPositions(ctx, db, path)
		if err != nil {
			return model.LayerResult{}, err
		}

		clean, report := silver.NewProcessor(silver.MetropolitanBounds).Process(raw)
		n, err := silver.WritePositions(ctx, db, clean)
		if err != nil {
			return model.LayerResult{}, err
		}

		record(model.LineageEvent{
			Source:    string(model.SourceRealtime),
			Operation: "transform_positions",
			Records:   n,
			StartedAt: start,
			EndedAt:   time.Now().UTC(),
			Metadata: map[string]any{
				"input":      len(raw),
				"rejections": report.Total(),
				"path":       path,
			},
		})

		if err := refreshRoutes(ctx, bronzeRoot, db, record); err != nil {
			return model.LayerResult{}, err
		}

		return model.LayerResult{Records: n, Rejections: report.Counts()}, nil
	}
}

func refreshRoutes(ctx context.Context, bronzeRoot string, db *store.DB, record EventRecorder) error {
	start := time.Now().UTC()

	path, err := bronze.LatestPartitionFile(bronzeRoot, bronze.DatasetRoutes)
	if eris.Is(err, bronze.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}

	routes, err := silver.LoadRawRoutes(ctx, db, path)
	if err != nil {
		return err
	}
	n, err := silver.WriteRoutes(ctx, db, routes)
	if err != nil {
		return err
	}

	record(model.LineageEvent{
		Source:    string(model.SourceRoutes),
		Operation: "transform_routes",
		Records:   n,
		StartedAt: start,
		EndedAt:   time.Now().UTC(),
		Metadata:  map[string]any{"path": path},
	})
	return nil
}

// goldStage recomputes all aggregate tables from the Silver snapshot.
func goldStage(db *store.DB) StageFn {
	return func(ctx context.Context, record EventRecorder) (model.LayerResult, error) {
		start := time.Now().UTC()

		positions, err := silver.ReadPositions(ctx, db)
		if err != nil {
			return model.LayerResult{}, err
		}
		if len(positions) == 0 {
			zap.L().Warn("gold stage found empty silver snapshot")
		}

		res, err := gold.Compute(ctx, db, positions)
		if err != nil {
			return model.LayerResult{}, err
		}

		record(model.LineageEvent{
			Source:    string(model.SourceRealtime),
			Operation: "aggregate",
			Records:   res.Total(),
			StartedAt: start,
			EndedAt:   time.Now().UTC(),
			Metadata: map[string]any{
				"speed_by_line":   res.SpeedByLine,
				"active_vehicles": res.ActiveVehicles,
				"geo_coverage":    res.GeoCoverage,
				"critical_points": res.CriticalPoints,
			},
		})

		return model.LayerResult{Records: res.Total()}, nil
	}
}
