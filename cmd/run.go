package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bhtransit/mobility-pipeline/internal/fetcher"
	"github.com/bhtransit/mobility-pipeline/internal/lineage"
	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/pipeline"
	"github.com/bhtransit/mobility-pipeline/internal/store"
)

var (
	runLayers     []string
	runSkipBronze bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a pipeline run",
	Long:  "Runs the requested layers in order. By default all three layers run; --layers selects a subset and --skip-bronze reuses the latest raw snapshot instead of fetching.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		layers, err := parseLayers(runLayers)
		if err != nil {
			return err
		}

		ledger, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		db, err := store.Open(cfg.Storage.Database)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		f := fetcher.NewProfileFetcher(fetcher.Options{
			Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			Referer: cfg.Fetch.Referer,
		})

		stages, err := pipeline.BuildStages(cfg, f, db)
		if err != nil {
			return err
		}

		o := pipeline.New(ledger, stages, cfg.Pipeline.SummaryDir)
		run, err := o.Run(ctx, pipeline.Request{Layers: layers, SkipBronze: runSkipBronze})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "run %s %s in %s\n", run.ExecutionID, run.State, run.Duration().Round(time.Millisecond))
		for _, lr := range run.Layers {
			if lr.Skipped {
				fmt.Fprintf(os.Stdout, "  %-7s skipped\n", lr.Layer)
				continue
			}
			fmt.Fprintf(os.Stdout, "  %-7s %d records in %s\n", lr.Layer, lr.Records, lr.Duration.Round(time.Millisecond))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runLayers, "layers", nil, "layers to run (bronze,silver,gold); default all")
	runCmd.Flags().BoolVar(&runSkipBronze, "skip-bronze", false, "reuse the latest bronze snapshot instead of fetching")
}

func parseLayers(names []string) ([]model.Layer, error) {
	var out []model.Layer
	for _, n := range names {
		switch model.Layer(n) {
		case model.LayerBronze, model.LayerSilver, model.LayerGold:
			out = append(out, model.Layer(n))
		default:
			return nil, eris.Errorf("unknown layer %q (expected bronze, silver or gold)", n)
		}
	}
	return out, nil
}

func initLedger(ctx context.Context) (lineage.Store, error) {
	var (
		st  lineage.Store
		err error
	)
	switch cfg.Ledger.Driver {
	case "sqlite":
		st, err = lineage.NewSQLite(cfg.Ledger.DatabaseURL)
	case "postgres":
		st, err = lineage.NewPostgres(ctx, cfg.Ledger.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported ledger driver: %s", cfg.Ledger.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
