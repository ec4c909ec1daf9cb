package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/intake-cli/internal/model"
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
	id          TEXT PRIMARY KEY,
	source_file TEXT NOT NULL,
	state       TEXT NOT NULL,
	result      TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS records (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	status        TEXT NOT NULL DEFAULT 'raw',
	market_status TEXT NOT NULL DEFAULT 'unknown',
	needs_review  INTEGER NOT NULL DEFAULT 0,
	source_page   INTEGER NOT NULL DEFAULT 0,
	doc           TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dedup_cache (
	id                 TEXT PRIMARY KEY,
	normalized_address TEXT NOT NULL,
	normalized_url     TEXT NOT NULL,
	run_id             TEXT NOT NULL,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(json_extract(state, '$.stage'));
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_dedup_cache_address ON dedup_cache(normalized_address);
CREATE INDEX IF NOT EXISTS idx_dedup_cache_url ON dedup_cache(normalized_url);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, sourceFile string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	state := model.RunState{Stage: model.RunStageQueued}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal state")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source_file, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, sourceFile, string(stateJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:         id,
		SourceFile: sourceFile,
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *SQLiteStore) UpdateRunState(ctx context.Context, runID string, state model.RunState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal state")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, updated_at = ? WHERE id = ?`,
		string(stateJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run state %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_file, state, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source_file, state, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND json_extract(state, '$.stage') = ?`
		args = append(args, string(filter.Stage))
	}
	query += ` ORDER BY created_at DESC`

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

func (s *SQLiteStore) UpsertRecords(ctx context.Context, recs []*model.PropertyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, run_id, status, market_status, needs_review, source_page, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   run_id = excluded.run_id, status = excluded.status, market_status = excluded.market_status,
		   needs_review = excluded.needs_review, source_page = excluded.source_page,
		   doc = excluded.doc, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		rec.UpdatedAt = now
		doc, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal record %s", rec.ID)
		}
		_, err = stmt.ExecContext(ctx,
			rec.ID, rec.RunID, string(rec.Status), string(rec.MarketStatus),
			rec.NeedsReview, rec.SourcePage, string(doc), rec.CreatedAt, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert record %s", rec.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert tx")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.PropertyRecord, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE id = ?`, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("record not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	return unmarshalRecord([]byte(doc))
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.PropertyRecord, error) {
	query := `SELECT doc FROM records WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.NeedsReview != nil {
		query += ` AND needs_review = ?`
		args = append(args, *filter.NeedsReview)
	}
	query += ` ORDER BY source_page ASC, created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var recs []model.PropertyRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		rec, err := unmarshalRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) FindCacheByAddress(ctx context.Context, normalizedAddress string) (*model.DedupCacheEntry, error) {
	if normalizedAddress == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, normalized_address, normalized_url, run_id, created_at FROM dedup_cache
		 WHERE normalized_address = ? ORDER BY created_at ASC LIMIT 1`,
		normalizedAddress,
	)
	return scanCacheEntry(row, "sqlite: find cache by address")
}

func (s *SQLiteStore) FindCacheByURL(ctx context.Context, normalizedURL string) (*model.DedupCacheEntry, error) {
	if normalizedURL == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, normalized_address, normalized_url, run_id, created_at FROM dedup_cache
		 WHERE normalized_url = ? ORDER BY created_at ASC LIMIT 1`,
		normalizedURL,
	)
	return scanCacheEntry(row, "sqlite: find cache by url")
}

func (s *SQLiteStore) InsertCacheEntries(ctx context.Context, entries []model.DedupCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin cache tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dedup_cache (id, normalized_address, normalized_url, run_id, created_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare cache insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		_, err = stmt.ExecContext(ctx, e.ID, e.NormalizedAddress, e.NormalizedURL, e.RunID, e.CreatedAt)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert cache entry %s", e.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit cache tx")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var stateJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.SourceFile, &stateJSON, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(stateJSON), &r.State); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal state")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

func scanCacheEntry(row scannable, msg string) (*model.DedupCacheEntry, error) {
	var e model.DedupCacheEntry
	err := row.Scan(&e.ID, &e.NormalizedAddress, &e.NormalizedURL, &e.RunID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, msg)
	}
	return &e, nil
}

func unmarshalRecord(doc []byte) (*model.PropertyRecord, error) {
	var rec model.PropertyRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, eris.Wrap(err, "unmarshal record doc")
	}
	return &rec, nil
}
