package dedup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func rec(street, city, state, zip, url string) *model.PropertyRecord {
	return &model.PropertyRecord{
		ID:        uuid.New().String(),
		Street:    street,
		City:      city,
		State:     state,
		Zip:       zip,
		MarketURL: url,
		Status:    model.RecordStatusFiltered,
	}
}

func TestDedup_UniqueRecords(t *testing.T) {
	d := New(newTestStore(t))

	recs := []*model.PropertyRecord{
		rec("123 Main St", "Cleveland", "OH", "44109", ""),
		rec("456 Oak Ave", "Cleveland", "OH", "44109", ""),
	}
	unique, dupes, err := d.Dedup(context.Background(), "run-1", recs)
	require.NoError(t, err)
	assert.Equal(t, 2, unique)
	assert.Zero(t, dupes)
	assert.Equal(t, model.RecordStatusDeduped, recs[0].Status)
	assert.Equal(t, model.RecordStatusDeduped, recs[1].Status)
}

func TestDedup_BatchAddressVariants(t *testing.T) {
	d := New(newTestStore(t))

	// Same property with suffix and directional spelled differently.
	recs := []*model.PropertyRecord{
		rec("123 N Main St", "Cleveland", "OH", "44109", ""),
		rec("123 North Main Street", "Cleveland", "OH", "44109", ""),
	}
	unique, dupes, err := d.Dedup(context.Background(), "run-1", recs)
	require.NoError(t, err)
	assert.Equal(t, 1, unique)
	assert.Equal(t, 1, dupes)
	assert.Equal(t, model.RecordStatusDiscarded, recs[1].Status)
	require.NotEmpty(t, recs[1].Notes)
	assert.Contains(t, recs[1].Notes[0], "duplicate address within batch")
}

func TestDedup_BatchURLVariants(t *testing.T) {
	d := New(newTestStore(t))

	recs := []*model.PropertyRecord{
		rec("", "", "", "", "https://www.zillow.com/homedetails/123-Main-St-Cleveland-OH-44109/12345678_zpid/"),
		rec("", "", "", "", "zillow.com/homedetails/123-main-st-cleveland-oh-44109"),
	}
	// Give both usable identities despite the blank addresses.
	recs[0].Street = "123 Main St"
	recs[1].Street = "123 Main Street Apt 2" // different normalized address
	unique, dupes, err := d.Dedup(context.Background(), "run-1", recs)
	require.NoError(t, err)
	assert.Equal(t, 1, unique)
	assert.Equal(t, 1, dupes)
	assert.Contains(t, recs[1].Notes[0], "duplicate listing URL within batch")
}

func TestDedup_CrossRunCacheHit(t *testing.T) {
	st := newTestStore(t)
	d := New(st)
	ctx := context.Background()

	first := []*model.PropertyRecord{rec("42 Cedar Rd", "Akron", "OH", "44301", "")}
	_, _, err := d.Dedup(ctx, "run-1", first)
	require.NoError(t, err)

	second := []*model.PropertyRecord{rec("42 Cedar Road", "Akron", "OH", "44301", "")}
	unique, dupes, err := d.Dedup(ctx, "run-2", second)
	require.NoError(t, err)
	assert.Zero(t, unique)
	assert.Equal(t, 1, dupes)
	assert.Contains(t, second[0].Notes[0], "already seen in run run-1")
}

func TestDedup_RerunSameRunIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	d := New(st)
	ctx := context.Background()

	recs := []*model.PropertyRecord{rec("9 Pine Ct", "Toledo", "OH", "43601", "")}
	unique, _, err := d.Dedup(ctx, "run-1", recs)
	require.NoError(t, err)
	require.Equal(t, 1, unique)

	// A retried stage sees its own cache entries; they must not turn the
	// record into a duplicate of itself.
	retry := []*model.PropertyRecord{rec("9 Pine Ct", "Toledo", "OH", "43601", "")}
	unique, dupes, err := d.Dedup(ctx, "run-1", retry)
	require.NoError(t, err)
	assert.Equal(t, 1, unique)
	assert.Zero(t, dupes)
}

// cacheCountingStore counts identity keys handed to InsertCacheEntries.
type cacheCountingStore struct {
	store.Store
	inserted int
}

func (c *cacheCountingStore) InsertCacheEntries(ctx context.Context, entries []model.DedupCacheEntry) error {
	c.inserted += len(entries)
	return c.Store.InsertCacheEntries(ctx, entries)
}

func TestDedup_RerunDoesNotGrowCache(t *testing.T) {
	st := &cacheCountingStore{Store: newTestStore(t)}
	d := New(st)
	ctx := context.Background()

	recs := []*model.PropertyRecord{rec("9 Pine Ct", "Toledo", "OH", "43601", "")}
	_, _, err := d.Dedup(ctx, "run-1", recs)
	require.NoError(t, err)
	require.Equal(t, 1, st.inserted)

	retry := []*model.PropertyRecord{rec("9 Pine Ct", "Toledo", "OH", "43601", "")}
	_, _, err = d.Dedup(ctx, "run-1", retry)
	require.NoError(t, err)
	assert.Equal(t, 1, st.inserted, "a retried stage re-reads its own keys, it does not re-append them")
}

func TestDedup_NoIdentityKeysPassesThrough(t *testing.T) {
	d := New(newTestStore(t))

	// Too-short street and no URL: no keys to match on either side.
	r := rec("1 St", "", "", "", "")
	unique, dupes, err := d.Dedup(context.Background(), "run-1", []*model.PropertyRecord{r})
	require.NoError(t, err)
	assert.Equal(t, 1, unique)
	assert.Zero(t, dupes)
	assert.Equal(t, model.RecordStatusDeduped, r.Status)
}
