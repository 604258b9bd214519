package lineage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

// PostgresStore implements Store using pgxpool, for deployments where the
// ledger is shared between scheduler nodes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	requested    JSONB NOT NULL,
	state        TEXT NOT NULL DEFAULT 'pending',
	layers       JSONB,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS lineage_events (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	source     TEXT NOT NULL,
	operation  TEXT NOT NULL,
	records    BIGINT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL,
	metadata   JSONB
);

CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_lineage_events_run_id ON lineage_events(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	requestedJSON, err := json.Marshal(run.Requested)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal requested layers")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, execution_id, requested, state, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.ExecutionID, requestedJSON, string(run.State), run.StartedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) UpdateRunState(ctx context.Context, runID string, state model.RunState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET state = $1 WHERE id = $2`,
		string(state), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run state %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.Run) error {
	layersJSON, err := json.Marshal(run.Layers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal layer results")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET state = $1, layers = $2, finished_at = $3 WHERE id = $4`,
		string(run.State), layersJSON, run.FinishedAt.UTC(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, execution_id, requested, state, layers, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrRunNotFound, "postgres: get run")
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, execution_id, requested, state, layers, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.State != "" {
		args = append(args, string(filter.State))
		query += ` AND state = $1`
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordEvent(ctx context.Context, runID string, ev model.LineageEvent) error {
	var metadataJSON []byte
	if ev.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal event metadata")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO lineage_events (id, run_id, source, operation, records, started_at, ended_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), runID, ev.Source, ev.Operation, ev.Records,
		ev.StartedAt.UTC(), ev.EndedAt.UTC(), metadataJSON,
	)
	return eris.Wrapf(err, "postgres: insert event for run %s", runID)
}

func (s *PostgresStore) ListEvents(ctx context.Context, runID string) ([]model.LineageEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, operation, records, started_at, ended_at, metadata
		 FROM lineage_events WHERE run_id = $1 ORDER BY started_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list events for run %s", runID)
	}
	defer rows.Close()

	var events []model.LineageEvent
	for rows.Next() {
		var (
			ev       model.LineageEvent
			metadata []byte
		)
		if err := rows.Scan(&ev.Source, &ev.Operation, &ev.Records, &ev.StartedAt, &ev.EndedAt, &metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal event metadata")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		r             model.Run
		requestedJSON []byte
		layersJSON    []byte
		finishedAt    sql.NullTime
		state         string
	)
	err := row.Scan(&r.ID, &r.ExecutionID, &requestedJSON, &state, &layersJSON, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	r.State = model.RunState(state)
	if err := json.Unmarshal(requestedJSON, &r.Requested); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal requested layers")
	}
	if len(layersJSON) > 0 {
		if err := json.Unmarshal(layersJSON, &r.Layers); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal layer results")
		}
	}
	if finishedAt.Valid {
		r.FinishedAt = finishedAt.Time
	}
	return &r, nil
}
