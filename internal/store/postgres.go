package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/db"
	"github.com/sells-group/intake-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, source_file, state, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_state":  `UPDATE runs SET state = $1, updated_at = $2 WHERE id = $3`,
	"update_run_result": `UPDATE runs SET result = $1, updated_at = $2 WHERE id = $3`,
	"get_run":           `SELECT id, source_file, state, result, created_at, updated_at FROM runs WHERE id = $1`,
	"get_record":        `SELECT doc FROM records WHERE id = $1`,
	"find_cache_addr":   `SELECT id, normalized_address, normalized_url, run_id, created_at FROM dedup_cache WHERE normalized_address = $1 ORDER BY created_at ASC LIMIT 1`,
	"find_cache_url":    `SELECT id, normalized_address, normalized_url, run_id, created_at FROM dedup_cache WHERE normalized_url = $1 ORDER BY created_at ASC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_file TEXT NOT NULL,
	state       JSONB NOT NULL,
	result      JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	status        TEXT NOT NULL DEFAULT 'raw',
	market_status TEXT NOT NULL DEFAULT 'unknown',
	needs_review  BOOLEAN NOT NULL DEFAULT false,
	source_page   INTEGER NOT NULL DEFAULT 0,
	doc           JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dedup_cache (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	normalized_address TEXT NOT NULL,
	normalized_url     TEXT NOT NULL,
	run_id             TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs((state->>'stage'));
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_dedup_cache_address ON dedup_cache(normalized_address);
CREATE INDEX IF NOT EXISTS idx_dedup_cache_url ON dedup_cache(normalized_url);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, sourceFile string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	state := model.RunState{Stage: model.RunStageQueued}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal state")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, source_file, state, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, sourceFile, stateJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:         id,
		SourceFile: sourceFile,
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) UpdateRunState(ctx context.Context, runID string, state model.RunState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal state")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET state = $1, updated_at = $2 WHERE id = $3`,
		stateJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run state %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, updated_at = $2 WHERE id = $3`,
		resultJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var stateJSON []byte
	var resultJSON *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, source_file, state, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.SourceFile, &stateJSON, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(stateJSON, &r.State); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal state")
	}
	if resultJSON != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source_file, state, result, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Stage != "" {
		query += fmt.Sprintf(` AND state->>'stage' = $%d`, argIdx)
		args = append(args, string(filter.Stage))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var stateJSON []byte
		var resultJSON *[]byte

		if err := rows.Scan(&r.ID, &r.SourceFile, &stateJSON, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(stateJSON, &r.State); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal state")
		}
		if resultJSON != nil {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var recordColumns = []string{"id", "run_id", "status", "market_status", "needs_review", "source_page", "doc", "created_at", "updated_at"}

func (s *PostgresStore) UpsertRecords(ctx context.Context, recs []*model.PropertyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		rec.UpdatedAt = now
		doc, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal record %s", rec.ID)
		}
		rows = append(rows, []any{
			rec.ID, rec.RunID, string(rec.Status), string(rec.MarketStatus),
			rec.NeedsReview, rec.SourcePage, doc, rec.CreatedAt, now,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "records",
		Columns:      recordColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert records")
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.PropertyRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM records WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("record not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return unmarshalRecord(doc)
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.PropertyRecord, error) {
	query := `SELECT doc FROM records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.NeedsReview != nil {
		query += fmt.Sprintf(` AND needs_review = $%d`, argIdx)
		args = append(args, *filter.NeedsReview)
		argIdx++
	}
	query += ` ORDER BY source_page ASC, created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var recs []model.PropertyRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec, err := unmarshalRecord(doc)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) FindCacheByAddress(ctx context.Context, normalizedAddress string) (*model.DedupCacheEntry, error) {
	if normalizedAddress == "" {
		return nil, nil
	}
	return s.findCacheEntry(ctx,
		`SELECT id, normalized_address, normalized_url, run_id, created_at FROM dedup_cache
		 WHERE normalized_address = $1 ORDER BY created_at ASC LIMIT 1`,
		normalizedAddress, "postgres: find cache by address")
}

func (s *PostgresStore) FindCacheByURL(ctx context.Context, normalizedURL string) (*model.DedupCacheEntry, error) {
	if normalizedURL == "" {
		return nil, nil
	}
	return s.findCacheEntry(ctx,
		`SELECT id, normalized_address, normalized_url, run_id, created_at FROM dedup_cache
		 WHERE normalized_url = $1 ORDER BY created_at ASC LIMIT 1`,
		normalizedURL, "postgres: find cache by url")
}

func (s *PostgresStore) findCacheEntry(ctx context.Context, query, key, msg string) (*model.DedupCacheEntry, error) {
	var e model.DedupCacheEntry
	err := s.pool.QueryRow(ctx, query, key).
		Scan(&e.ID, &e.NormalizedAddress, &e.NormalizedURL, &e.RunID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, msg)
	}
	return &e, nil
}

func (s *PostgresStore) InsertCacheEntries(ctx context.Context, entries []model.DedupCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		rows = append(rows, []any{e.ID, e.NormalizedAddress, e.NormalizedURL, e.RunID, e.CreatedAt})
	}

	_, err := db.CopyFrom(ctx, s.pool, "dedup_cache",
		[]string{"id", "normalized_address", "normalized_url", "run_id", "created_at"}, rows)
	return eris.Wrap(err, "postgres: insert cache entries")
}
