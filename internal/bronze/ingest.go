// Package bronze is the raw ingestion layer: it fetches each configured
// source, decodes the payload into raw records, and appends them as
// timestamp-partitioned Parquet files. Bronze never mutates existing data.
package bronze

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bhtransit/mobility-pipeline/internal/fetcher"
	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/wire"
)

// Datasets written by the bronze layer.
const (
	DatasetPositions = "bus_positions"
	DatasetRoutes    = "operational_routes"
)

// Result summarizes one ingested source.
type Result struct {
	Dataset string
	Records int
	Path    string
	Lineage model.LineageEvent
}

// Ingester is one ingestion variant: it fetches its source, decodes the
// payload, and writes a new Bronze partition through the writer.
type Ingester interface {
	Dataset() string
	Run(ctx context.Context, w *Writer, asOf time.Time) (Result, error)
}

// NewIngester builds the ingester for a configured source variant tag.
func NewIngester(source model.Source, f fetcher.Fetcher, url string) (Ingester, error) {
	switch source {
	case model.SourceRealtime:
		return &RealtimeIngester{fetcher: f, url: url}, nil
	case model.SourceRoutes:
		return &RoutesIngester{fetcher: f, url: url}, nil
	default:
		return nil, eris.Errorf("bronze: unknown source variant %q", source)
	}
}

// RealtimeIngester ingests the real-time vehicle position feed, which
// speaks the <K=V;...> wire protocol, one record per line.
type RealtimeIngester struct {
	fetcher fetcher.Fetcher
	url     string
}

func (i *RealtimeIngester) Dataset() string { return DatasetPositions }

func (i *RealtimeIngester) Run(ctx context.Context, w *Writer, asOf time.Time) (Result, error) {
	log := zap.L().With(zap.String("dataset", i.Dataset()))
	start := time.Now().UTC()

	text, err := i.fetcher.FetchText(ctx, i.url)
	if err != nil {
		return Result{}, eris.Wrap(err, "bronze: fetch realtime feed")
	}

	feed := wire.ParseFeed(text)
	records := make([]model.RawRecord, 0, len(feed.Records))
	for _, fields := range feed.Records {
		records = append(records, wire.MapRecord(fields, model.SourceRealtime, asOf))
	}
	if len(records) == 0 {
		log.Warn("realtime feed returned no records")
	}

	path, err := w.WritePositions(ctx, i.Dataset(), records, asOf)
	if err != nil {
		return Result{}, err
	}

	log.Info("bronze ingest complete",
		zap.Int("records", len(records)),
		zap.Int("skipped_lines", feed.Skipped),
		zap.Int("malformed_lines", feed.Malformed),
		zap.String("path", path),
	)

	return Result{
		Dataset: i.Dataset(),
		Records: len(records),
		Path:    path,
		Lineage: model.LineageEvent{
			Source:    string(model.SourceRealtime),
			Operation: "ingest_positions",
			Records:   len(records),
			StartedAt: start,
			EndedAt:   time.Now().UTC(),
			Metadata: map[string]any{
				"path":            path,
				"skipped_lines":   feed.Skipped,
				"malformed_lines": feed.Malformed,
			},
		},
	}, nil
}

// RoutesIngester ingests the operational routes map, a semicolon-separated
// Latin-1 CSV export from the municipal open-data portal.
type RoutesIngester struct {
	fetcher fetcher.Fetcher
	url     string
}

func (i *RoutesIngester) Dataset() string { return DatasetRoutes }

func (i *RoutesIngester) Run(ctx context.Context, w *Writer, asOf time.Time) (Result, error) {
	start := time.Now().UTC()

	text, err := i.fetcher.FetchText(ctx, i.url)
	if err != nil {
		return Result{}, eris.Wrap(err, "bronze: fetch routes feed")
	}

	records, err := i.parse(text, asOf)
	if err != nil {
		return Result{}, err
	}

	path, err := w.WriteRoutes(ctx, i.Dataset(), records, asOf)
	if err != nil {
		return Result{}, err
	}

	zap.L().Info("bronze ingest complete",
		zap.String("dataset", i.Dataset()),
		zap.Int("records", len(records)),
		zap.String("path", path),
	)

	return Result{
		Dataset: i.Dataset(),
		Records: len(records),
		Path:    path,
		Lineage: model.LineageEvent{
			Source:    string(model.SourceRoutes),
			Operation: "ingest_routes",
			Records:   len(records),
			StartedAt: start,
			EndedAt:   time.Now().UTC(),
			Metadata:  map[string]any{"path": path},
		},
	}, nil
}

// parse decodes the CSV export, which the portal serves as Latin-1 with
// a semicolon separator, and maps it to route records.
func (i *RoutesIngester) parse(text string, asOf time.Time) ([]model.RouteRecord, error) {
	rows, err := fetcher.ReadCSV(strings.NewReader(text), fetcher.CSVOptions{Delimiter: ';', Latin1: true})
	if err != nil {
		return nil, eris.Wrap(err, "bronze: parse routes csv")
	}
	return parseRouteRows(rows, asOf), nil
}

// parseRouteRows maps CSV rows to RouteRecords using the header row to
// locate columns, so column reordering in the export does not break us.
func parseRouteRows(rows [][]string, asOf time.Time) []model.RouteRecord {
	if len(rows) < 2 {
		return nil
	}

	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[fetcher.NormalizeHeader(h)] = i
	}
	cell := func(row []string, names ...string) string {
		for _, n := range names {
			if i, ok := idx[n]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	records := make([]model.RouteRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := model.RouteRecord{
			Line:       cell(row, "linha", "numero_linha"),
			Name:       cell(row, "nome_linha", "nome"),
			DayType:    cell(row, "tipo_dia", "dia"),
			IngestedAt: asOf,
			Source:     model.SourceRoutes,
		}
		if rec.Line == "" {
			continue
		}
		if v, err := strconv.ParseInt(cell(row, "viagens", "total_viagens"), 10, 64); err == nil {
			rec.Trips = &v
		}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(cell(row, "extensao_km", "distancia_km"), ",", "."), 64); err == nil {
			rec.DistanceKM = &v
		}
		records = append(records, rec)
	}
	return records
}
