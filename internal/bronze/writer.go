package bronze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/rotisserie/eris"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

// Writer persists raw records as Snappy-compressed Parquet files under
// <root>/<dataset>/year=YYYY/month=MM/day=DD/. Files are create-only: a
// prior partition file is never reopened or rewritten.
type Writer struct {
	root string
}

// NewWriter creates a Writer rooted at the Bronze storage path.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

var tsType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

var positionsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "event_code", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "ts", Type: tsType, Nullable: true},
	{Name: "latitude", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "longitude", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "vehicle_id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "speed", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "line_id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "heading", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "status", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "odometer", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "ingested_at", Type: tsType, Nullable: false},
	{Name: "source", Type: arrow.BinaryTypes.String, Nullable: false},
}, nil)

var routesSchema = arrow.NewSchema([]arrow.Field{
	{Name: "line", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "day_type", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "trips", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "distance_km", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "ingested_at", Type: tsType, Nullable: false},
	{Name: "source", Type: arrow.BinaryTypes.String, Nullable: false},
}, nil)

// WritePositions writes one batch of position RawRecords to a new
// partition file and returns its path.
func (w *Writer) WritePositions(ctx context.Context, dataset string, records []model.RawRecord, asOf time.Time) (string, error) {
	bld := array.NewRecordBuilder(memory.DefaultAllocator, positionsSchema)
	defer bld.Release()

	for _, r := range records {
		appendInt(bld.Field(0).(*array.Int64Builder), r.EventCode)
		appendTime(bld.Field(1).(*array.TimestampBuilder), r.Timestamp)
		appendFloat(bld.Field(2).(*array.Float64Builder), r.Latitude)
		appendFloat(bld.Field(3).(*array.Float64Builder), r.Longitude)
		appendInt(bld.Field(4).(*array.Int64Builder), r.VehicleID)
		appendFloat(bld.Field(5).(*array.Float64Builder), r.Speed)
		appendInt(bld.Field(6).(*array.Int64Builder), r.LineID)
		appendFloat(bld.Field(7).(*array.Float64Builder), r.Heading)
		appendInt(bld.Field(8).(*array.Int64Builder), r.Status)
		appendFloat(bld.Field(9).(*array.Float64Builder), r.Odometer)
		bld.Field(10).(*array.TimestampBuilder).Append(arrow.Timestamp(r.IngestedAt.UTC().UnixMicro()))
		bld.Field(11).(*array.StringBuilder).Append(string(r.Source))
	}

	return w.writeRecord(ctx, dataset, positionsSchema, bld, asOf)
}

// WriteRoutes writes one batch of RouteRecords to a new partition file.
func (w *Writer) WriteRoutes(ctx context.Context, dataset string, records []model.RouteRecord, asOf time.Time) (string, error) {
	bld := array.NewRecordBuilder(memory.DefaultAllocator, routesSchema)
	defer bld.Release()

	for _, r := range records {
		bld.Field(0).(*array.StringBuilder).Append(r.Line)
		appendString(bld.Field(1).(*array.StringBuilder), r.Name)
		appendString(bld.Field(2).(*array.StringBuilder), r.DayType)
		appendInt(bld.Field(3).(*array.Int64Builder), r.Trips)
		appendFloat(bld.Field(4).(*array.Float64Builder), r.DistanceKM)
		bld.Field(5).(*array.TimestampBuilder).Append(arrow.Timestamp(r.IngestedAt.UTC().UnixMicro()))
		bld.Field(6).(*array.StringBuilder).Append(string(r.Source))
	}

	return w.writeRecord(ctx, dataset, routesSchema, bld, asOf)
}

func (w *Writer) writeRecord(ctx context.Context, dataset string, schema *arrow.Schema, bld *array.RecordBuilder, asOf time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "bronze: write cancelled")
	}

	rec := bld.NewRecord()
	defer rec.Release()

	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	dir := PartitionPath(w.root, dataset, asOf)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "bronze: create partition %s", dir)
	}

	name := fmt.Sprintf("%s_%s.parquet", dataset, asOf.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	// O_EXCL enforces append-only semantics: never rewrite a prior file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", eris.Wrapf(err, "bronze: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	chunk := rec.NumRows()
	if chunk == 0 {
		chunk = 1
	}
	if err := pqarrow.WriteTable(tbl, f, chunk, props, pqarrow.DefaultWriterProps()); err != nil {
		return "", eris.Wrapf(err, "bronze: write parquet %s", path)
	}
	return path, nil
}

// PartitionPath returns the calendar-date partition directory for a dataset.
func PartitionPath(root, dataset string, asOf time.Time) string {
	return filepath.Join(root, dataset,
		fmt.Sprintf("year=%d", asOf.Year()),
		fmt.Sprintf("month=%02d", asOf.Month()),
		fmt.Sprintf("day=%02d", asOf.Day()),
	)
}

func appendFloat(b *array.Float64Builder, v *float64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

func appendInt(b *array.Int64Builder, v *int64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

func appendTime(b *array.TimestampBuilder, v *time.Time) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(arrow.Timestamp(v.UTC().UnixMicro()))
}

func appendString(b *array.StringBuilder, v string) {
	if v == "" {
		b.AppendNull()
		return
	}
	b.Append(v)
}
