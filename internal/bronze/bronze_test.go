package bronze

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) FetchText(ctx context.Context, endpoint string) (string, error) {
	return f.body, f.err
}

var testAsOf = time.Date(2026, 2, 18, 18, 30, 0, 0, time.UTC)

func TestPartitionPath(t *testing.T) {
	p := PartitionPath("/data/bronze", "bus_positions", testAsOf)
	assert.Equal(t, filepath.Join("/data/bronze", "bus_positions", "year=2026", "month=02", "day=18"), p)
}

func TestWritePositions_CreatesPartitionFile(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	lat, lon, speed := -19.9, -44.0, 25.0
	vehicle := int64(31238)
	ts := testAsOf
	recs := []model.RawRecord{{
		Latitude:   &lat,
		Longitude:  &lon,
		Speed:      &speed,
		VehicleID:  &vehicle,
		Timestamp:  &ts,
		IngestedAt: testAsOf,
		Source:     model.SourceRealtime,
	}}

	path, err := w.WritePositions(context.Background(), DatasetPositions, recs, testAsOf)
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join("year=2026", "month=02", "day=18"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWritePositions_NeverRewritesExistingFile(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	_, err := w.WritePositions(context.Background(), DatasetPositions, nil, testAsOf)
	require.NoError(t, err)

	// Same asOf second means same filename: the second write must refuse.
	_, err = w.WritePositions(context.Background(), DatasetPositions, nil, testAsOf)
	require.Error(t, err)
}

func TestLatestPartitionFile(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	older := testAsOf
	newer := testAsOf.Add(24 * time.Hour)
	_, err := w.WritePositions(context.Background(), DatasetPositions, nil, older)
	require.NoError(t, err)
	newest, err := w.WritePositions(context.Background(), DatasetPositions, nil, newer)
	require.NoError(t, err)

	got, err := LatestPartitionFile(root, DatasetPositions)
	require.NoError(t, err)
	assert.Equal(t, newest, got)
}

func TestLatestPartitionFile_NoSnapshot(t *testing.T) {
	_, err := LatestPartitionFile(t.TempDir(), DatasetPositions)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRealtimeIngester_Run(t *testing.T) {
	feed := "<EV=105;HR=20260218181740;LT=-19.939675;LG=-44.007961;NV=31238;VL=25;NL=6016;DG=183;SV=1;DT=25795>\n" +
		"garbage line\n" +
		"<EV=105;HR=20260218181741;LT=-19.94;LG=-44.01;NV=31239;VL=30;NL=6016>\n"

	ing, err := NewIngester(model.SourceRealtime, &fakeFetcher{body: feed}, "https://example.test/posicoes")
	require.NoError(t, err)

	w := NewWriter(t.TempDir())
	res, err := ing.Run(context.Background(), w, testAsOf)
	require.NoError(t, err)

	assert.Equal(t, DatasetPositions, res.Dataset)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, "ingest_positions", res.Lineage.Operation)
	assert.Equal(t, 2, res.Lineage.Records)
	assert.FileExists(t, res.Path)
}

func TestRoutesIngester_Run(t *testing.T) {
	csv := "LINHA;NOME_LINHA;TIPO_DIA;VIAGENS;EXTENSAO_KM\n" +
		"6016;Sao Gabriel/Centro;UTIL;120;23,5\n" +
		";linha sem numero;UTIL;1;1\n"

	ing, err := NewIngester(model.SourceRoutes, &fakeFetcher{body: csv}, "https://example.test/mco.csv")
	require.NoError(t, err)

	w := NewWriter(t.TempDir())
	res, err := ing.Run(context.Background(), w, testAsOf)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Records, "rows without a line number are dropped")
}

func TestRoutesIngester_DecodesLatin1Names(t *testing.T) {
	csv := "LINHA;NOME_LINHA;TIPO_DIA\n" +
		"6016;Esta\xe7\xe3o Central;UTIL\n"

	ing := &RoutesIngester{fetcher: &fakeFetcher{body: csv}, url: "https://example.test/mco.csv"}

	recs, err := ing.parse(csv, testAsOf)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, utf8.ValidString(recs[0].Name))
	assert.Equal(t, "Estação Central", recs[0].Name)

	w := NewWriter(t.TempDir())
	res, err := ing.Run(context.Background(), w, testAsOf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)
}

func TestParseRouteRows_HeaderDriven(t *testing.T) {
	rows := [][]string{
		{"NOME_LINHA", "LINHA", "EXTENSAO_KM"},
		{"Centro/Savassi", "9103", "12,7"},
	}
	recs := parseRouteRows(rows, testAsOf)
	require.Len(t, recs, 1)
	assert.Equal(t, "9103", recs[0].Line)
	assert.Equal(t, "Centro/Savassi", recs[0].Name)
	require.NotNil(t, recs[0].DistanceKM)
	assert.InDelta(t, 12.7, *recs[0].DistanceKM, 1e-9)
}

func TestNewIngester_UnknownVariant(t *testing.T) {
	_, err := NewIngester(model.Source("bogus"), &fakeFetcher{}, "")
	require.Error(t, err)
}
