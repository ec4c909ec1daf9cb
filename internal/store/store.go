// Package store persists runs, property records, and the cross-run dedup
// cache behind a single interface with SQLite and Postgres backends.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Stage  model.RunStage `json:"stage,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// RecordFilter specifies criteria for listing property records.
type RecordFilter struct {
	RunID       string             `json:"run_id,omitempty"`
	Status      model.RecordStatus `json:"status,omitempty"`
	NeedsReview *bool              `json:"needs_review,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	Offset      int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the intake pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, sourceFile string) (*model.Run, error)
	UpdateRunState(ctx context.Context, runID string, state model.RunState) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Records. UpsertRecords is keyed by record id, so re-running a stage
	// overwrites its own earlier writes instead of duplicating them.
	UpsertRecords(ctx context.Context, recs []*model.PropertyRecord) error
	GetRecord(ctx context.Context, id string) (*model.PropertyRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.PropertyRecord, error)

	// Dedup cache. Lookups ignore run id so duplicates are detected across
	// separate uploads. The cache is append-only; entries are never removed
	// or updated. Empty keys never match.
	FindCacheByAddress(ctx context.Context, normalizedAddress string) (*model.DedupCacheEntry, error)
	FindCacheByURL(ctx context.Context, normalizedURL string) (*model.DedupCacheEntry, error)
	InsertCacheEntries(ctx context.Context, entries []model.DedupCacheEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs the Store named by cfg.Driver and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
