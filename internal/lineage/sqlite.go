package lineage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	requested    TEXT NOT NULL,
	state        TEXT NOT NULL DEFAULT 'pending',
	layers       TEXT,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME
);

CREATE TABLE IF NOT EXISTS lineage_events (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source     TEXT NOT NULL,
	operation  TEXT NOT NULL,
	records    INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at   DATETIME NOT NULL,
	metadata   TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_lineage_events_run_id ON lineage_events(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	requestedJSON, err := json.Marshal(run.Requested)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal requested layers")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, execution_id, requested, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.ExecutionID, string(requestedJSON), string(run.State), run.StartedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) UpdateRunState(ctx context.Context, runID string, state model.RunState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ? WHERE id = ?`,
		string(state), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run state %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.Run) error {
	layersJSON, err := json.Marshal(run.Layers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal layer results")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, layers = ?, finished_at = ? WHERE id = ?`,
		string(run.State), string(layersJSON), run.FinishedAt.UTC(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	return checkRowsAffected(res, run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, execution_id, requested, state, layers, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, execution_id, requested, state, layers, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, runID string, ev model.LineageEvent) error {
	var metadataJSON []byte
	if ev.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal event metadata")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lineage_events (id, run_id, source, operation, records, started_at, ended_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, ev.Source, ev.Operation, ev.Records,
		ev.StartedAt.UTC(), ev.EndedAt.UTC(), nullableString(metadataJSON),
	)
	return eris.Wrapf(err, "sqlite: insert event for run %s", runID)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]model.LineageEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, operation, records, started_at, ended_at, metadata
		 FROM lineage_events WHERE run_id = ? ORDER BY started_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list events for run %s", runID)
	}
	defer rows.Close()

	var events []model.LineageEvent
	for rows.Next() {
		var (
			ev       model.LineageEvent
			metadata sql.NullString
		)
		if err := rows.Scan(&ev.Source, &ev.Operation, &ev.Records, &ev.StartedAt, &ev.EndedAt, &metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal event metadata")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		r             model.Run
		requestedJSON string
		layersJSON    sql.NullString
		finishedAt    sql.NullTime
		state         string
	)
	err := row.Scan(&r.ID, &r.ExecutionID, &requestedJSON, &state, &layersJSON, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrRunNotFound, "sqlite: get run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.State = model.RunState(state)
	if err := json.Unmarshal([]byte(requestedJSON), &r.Requested); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal requested layers")
	}
	if layersJSON.Valid && layersJSON.String != "" {
		if err := json.Unmarshal([]byte(layersJSON.String), &r.Layers); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal layer results")
		}
	}
	if finishedAt.Valid {
		r.FinishedAt = finishedAt.Time
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "sqlite: run %s", runID)
	}
	return nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
