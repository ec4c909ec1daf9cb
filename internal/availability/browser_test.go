package availability

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/model"
)

func newTestBrowserTier(run func(ctx context.Context, engine searchEngine, query string) (string, error)) *BrowserTier {
	t := NewBrowserTier(config.BrowserConfig{TimeoutSecs: 1})
	t.runSearch = run
	return t
}

func TestBrowserTier_FirstEngineHit(t *testing.T) {
	var engines []string
	tier := newTestBrowserTier(func(ctx context.Context, engine searchEngine, query string) (string, error) {
		engines = append(engines, engine.name)
		return "123 Main St, Springfield MO, recently sold", nil
	})

	result, err := tier.Resolve(context.Background(), testRecordWithURL(""))
	require.NoError(t, err)
	assert.Equal(t, model.MarketStatusSold, result.Status)
	assert.Equal(t, model.SourceWebSearch, result.Source)
	assert.Contains(t, result.Detail, "via bing")
	assert.Equal(t, []string{"bing"}, engines)
}

func TestBrowserTier_BlockedEngineSkipped(t *testing.T) {
	tier := newTestBrowserTier(func(ctx context.Context, engine searchEngine, query string) (string, error) {
		if engine.name == "bing" {
			return "please complete the reCAPTCHA to continue", nil
		}
		return "listing is sale pending as of last month", nil
	})

	result, err := tier.Resolve(context.Background(), testRecordWithURL(""))
	require.NoError(t, err)
	assert.Equal(t, model.MarketStatusPending, result.Status)
	assert.Contains(t, result.Detail, "via duckduckgo")
}

func TestBrowserTier_AllEnginesFail(t *testing.T) {
	tier := newTestBrowserTier(func(ctx context.Context, engine searchEngine, query string) (string, error) {
		return "", eris.Errorf("browser: %s search: chrome exited", engine.name)
	})

	_, err := tier.Resolve(context.Background(), testRecordWithURL(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all engines failed")
}

func TestBrowserTier_InconclusiveResultsAreUnknown(t *testing.T) {
	var engines []string
	tier := newTestBrowserTier(func(ctx context.Context, engine searchEngine, query string) (string, error) {
		engines = append(engines, engine.name)
		return "nothing about this address anywhere", nil
	})

	result, err := tier.Resolve(context.Background(), testRecordWithURL(""))
	require.NoError(t, err)
	assert.Equal(t, model.MarketStatusUnknown, result.Status)
	assert.Equal(t, []string{"bing"}, engines,
		"a readable result page settles the record, even an inconclusive one")
	assert.Contains(t, result.Detail, "via bing")
}

func TestBrowserTier_EmptyPageFallsThrough(t *testing.T) {
	tier := newTestBrowserTier(func(ctx context.Context, engine searchEngine, query string) (string, error) {
		if engine.name == "bing" {
			return "   \n", nil
		}
		return "this home sold recently", nil
	})

	result, err := tier.Resolve(context.Background(), testRecordWithURL(""))
	require.NoError(t, err)
	assert.Equal(t, model.MarketStatusSold, result.Status)
	assert.Contains(t, result.Detail, "via duckduckgo")
}

func TestBrowserTier_RequiresAddress(t *testing.T) {
	tier := newTestBrowserTier(nil)
	_, err := tier.Resolve(context.Background(), &model.PropertyRecord{ID: "rec-1"})
	require.Error(t, err)
}

func TestBrowserTier_QueryIncludesFullAddress(t *testing.T) {
	var gotQuery string
	tier := newTestBrowserTier(func(ctx context.Context, engine searchEngine, query string) (string, error) {
		gotQuery = query
		return "days on market: 3", nil
	})

	_, err := tier.Resolve(context.Background(), testRecordWithURL(""))
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "123 Main St, Springfield, MO, 65806")
	assert.Contains(t, gotQuery, "listing status")
}
