package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRecord(runID string) *model.PropertyRecord {
	return &model.PropertyRecord{
		ID:           uuid.New().String(),
		RunID:        runID,
		Street:       "123 Main St",
		City:         "Cleveland",
		State:        "OH",
		Zip:          "44109",
		AskingPrice:  85000,
		Rent:         950,
		MarketStatus: model.MarketStatusUnknown,
		Status:       model.RecordStatusRaw,
		SourcePage:   3,
		CreatedAt:    time.Now().UTC(),
	}
}

// --- Runs ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "listings-may.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStageQueued, run.State.Stage)

	state := model.RunState{
		Stage:    model.RunStageExtracting,
		Progress: 40,
		Step:     "page 12/30",
		Counters: model.StageCounters{Pages: 30, Extracted: 52},
	}
	require.NoError(t, st.UpdateRunState(ctx, run.ID, state))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "listings-may.pdf", got.SourceFile)
	assert.Equal(t, model.RunStageExtracting, got.State.Stage)
	assert.Equal(t, 52, got.State.Counters.Extracted)
	assert.Nil(t, got.Result)
}

func TestSQLite_UpdateRunResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "batch.pdf")
	require.NoError(t, err)

	result := &model.RunResult{RunID: run.ID, Unique: 40, Dupes: 12, Flagged: 3}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, result))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, 40, got.Result.Unique)
	assert.Equal(t, 12, got.Result.Dupes)
}

func TestSQLite_RunNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.UpdateRunState(ctx, "missing", model.RunState{Stage: model.RunStageFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")

	_, err = st.GetRun(ctx, "missing")
	require.Error(t, err)
}

func TestSQLite_ListRuns_StageFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx, "a.pdf")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "b.pdf")
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunState(ctx, r1.ID, model.RunState{Stage: model.RunStageComplete}))

	complete, err := st.ListRuns(ctx, RunFilter{Stage: model.RunStageComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, r1.ID, complete[0].ID)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Records ---

func TestSQLite_UpsertRecords_InsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "a.pdf")
	require.NoError(t, err)

	rec := testRecord(run.ID)
	require.NoError(t, st.UpsertRecords(ctx, []*model.PropertyRecord{rec}))

	got, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "123 Main St", got.Street)
	assert.Equal(t, 85000, got.AskingPrice)
	assert.Equal(t, model.RecordStatusRaw, got.Status)
}

func TestSQLite_UpsertRecords_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "a.pdf")
	require.NoError(t, err)

	rec := testRecord(run.ID)
	require.NoError(t, st.UpsertRecords(ctx, []*model.PropertyRecord{rec}))

	// Re-upserting the same id overwrites, never duplicates.
	rec.Status = model.RecordStatusDeduped
	rec.MarketStatus = model.MarketStatusActive
	require.NoError(t, st.UpsertRecords(ctx, []*model.PropertyRecord{rec}))

	recs, err := st.ListRecords(ctx, RecordFilter{RunID: run.ID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RecordStatusDeduped, recs[0].Status)
	assert.Equal(t, model.MarketStatusActive, recs[0].MarketStatus)
}

func TestSQLite_ListRecords_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "a.pdf")
	require.NoError(t, err)

	clean := testRecord(run.ID)
	clean.Status = model.RecordStatusDeduped

	flagged := testRecord(run.ID)
	flagged.Street = "456 Oak Ave"
	flagged.Status = model.RecordStatusFiltered
	flagged.NeedsReview = true
	flagged.SourcePage = 1

	require.NoError(t, st.UpsertRecords(ctx, []*model.PropertyRecord{clean, flagged}))

	deduped, err := st.ListRecords(ctx, RecordFilter{RunID: run.ID, Status: model.RecordStatusDeduped})
	require.NoError(t, err)
	require.Len(t, deduped, 1)
	assert.Equal(t, clean.ID, deduped[0].ID)

	review := true
	flaggedList, err := st.ListRecords(ctx, RecordFilter{RunID: run.ID, NeedsReview: &review})
	require.NoError(t, err)
	require.Len(t, flaggedList, 1)
	assert.Equal(t, flagged.ID, flaggedList[0].ID)

	// Ordered by source page.
	all, err := st.ListRecords(ctx, RecordFilter{RunID: run.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].SourcePage)
	assert.Equal(t, 3, all[1].SourcePage)
}

func TestSQLite_GetRecord_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRecord(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")
}

// --- Dedup cache ---

func TestSQLite_DedupCache_FindByAddressAndURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := model.DedupCacheEntry{
		NormalizedAddress: "123 main st cleveland oh 44109",
		NormalizedURL:     "zillow.com/homedetails/123-main-st-cleveland-oh-44109",
		RunID:             "run-1",
	}
	require.NoError(t, st.InsertCacheEntries(ctx, []model.DedupCacheEntry{entry}))

	byAddr, err := st.FindCacheByAddress(ctx, entry.NormalizedAddress)
	require.NoError(t, err)
	require.NotNil(t, byAddr)
	assert.Equal(t, "run-1", byAddr.RunID)

	byURL, err := st.FindCacheByURL(ctx, entry.NormalizedURL)
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, "run-1", byURL.RunID)
}

func TestSQLite_DedupCache_Miss(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := st.FindCacheByAddress(ctx, "789 elm st nowhere oh 44000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_DedupCache_EmptyKeyNeverMatches(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Address-only entries carry an empty URL; a blank lookup must not hit them.
	entry := model.DedupCacheEntry{NormalizedAddress: "123 main st", NormalizedURL: "", RunID: "run-1"}
	require.NoError(t, st.InsertCacheEntries(ctx, []model.DedupCacheEntry{entry}))

	got, err := st.FindCacheByURL(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = st.FindCacheByAddress(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_DedupCache_EarliestEntryWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := model.DedupCacheEntry{
		NormalizedAddress: "42 cedar rd akron oh",
		RunID:             "run-1",
		CreatedAt:         time.Now().UTC().Add(-time.Hour),
	}
	second := model.DedupCacheEntry{
		NormalizedAddress: "42 cedar rd akron oh",
		RunID:             "run-2",
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, st.InsertCacheEntries(ctx, []model.DedupCacheEntry{first, second}))

	got, err := st.FindCacheByAddress(ctx, "42 cedar rd akron oh")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-1", got.RunID)
}

func TestSQLite_DedupCache_CrossRunLookup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := model.DedupCacheEntry{NormalizedAddress: "9 pine ct toledo oh", RunID: "earlier-run"}
	require.NoError(t, st.InsertCacheEntries(ctx, []model.DedupCacheEntry{entry}))

	// A lookup from a later run still sees the earlier run's entry.
	got, err := st.FindCacheByAddress(ctx, "9 pine ct toledo oh")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "earlier-run", got.RunID)
}
