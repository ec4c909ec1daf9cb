package acquire

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/model"
)

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractText(context.Context, string) (string, error) {
	return s.text, s.err
}

type stubVision struct {
	recs []*model.PropertyRecord
	err  error
}

func (s *stubVision) ExtractRecords(context.Context, model.PageChunk) ([]*model.PropertyRecord, error) {
	return s.recs, s.err
}

var testCfg = config.AcquireConfig{MinChars: 50, MinWords: 10}

func chunkOnPage(page int) model.PageChunk {
	return model.PageChunk{ID: "c1", RunID: "run-1", FirstPage: page, LastPage: page, Path: "chunk.pdf"}
}

const goodText = `123 Main St Cleveland OH 44109
Asking $85k rent $950 ARV 120k rehab 15k
3 bed 1 bath 1100 sqft built 1952 tenant occupied`

func TestAcquire_TextLayerHit(t *testing.T) {
	a := New(testCfg, &stubExtractor{text: goodText}, nil, nil)

	res, err := a.Acquire(context.Background(), []model.PageChunk{chunkOnPage(3)})
	require.NoError(t, err)
	assert.Equal(t, goodText, res.PageText[3])
	assert.Equal(t, 1, res.TextPages)
	assert.Zero(t, res.EmptyPages)
}

func TestAcquire_ShortTextFallsToVision(t *testing.T) {
	rec := &model.PropertyRecord{ID: "v1", Street: "456 Oak Ave"}
	a := New(testCfg, &stubExtractor{text: "garbage"}, &stubVision{recs: []*model.PropertyRecord{rec}}, nil)

	res, err := a.Acquire(context.Background(), []model.PageChunk{chunkOnPage(1)})
	require.NoError(t, err)
	assert.Empty(t, res.PageText)
	require.Len(t, res.VisionCandidates, 1)
	assert.Equal(t, "456 Oak Ave", res.VisionCandidates[0].Street)
	assert.Equal(t, 1, res.VisionPages)
}

func TestAcquire_VisionFailureFallsToOCR(t *testing.T) {
	a := New(testCfg,
		&stubExtractor{text: ""},
		&stubVision{err: assert.AnError},
		&stubExtractor{text: goodText})

	res, err := a.Acquire(context.Background(), []model.PageChunk{chunkOnPage(2)})
	require.NoError(t, err)
	assert.Equal(t, goodText, res.PageText[2])
	assert.Equal(t, 1, res.OCRPages)
}

func TestAcquire_NoVisionUsesOCR(t *testing.T) {
	a := New(testCfg, &stubExtractor{text: ""}, nil, &stubExtractor{text: goodText})

	res, err := a.Acquire(context.Background(), []model.PageChunk{chunkOnPage(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.OCRPages)
}

func TestAcquire_AllTiersMissIsNotFatal(t *testing.T) {
	a := New(testCfg,
		&stubExtractor{err: assert.AnError},
		&stubVision{err: assert.AnError},
		&stubExtractor{err: assert.AnError})

	res, err := a.Acquire(context.Background(), []model.PageChunk{chunkOnPage(1), chunkOnPage(2)})
	require.NoError(t, err)
	assert.Empty(t, res.PageText)
	assert.Equal(t, 2, res.EmptyPages)
}

func TestUsable_RequiresCharsAndWords(t *testing.T) {
	a := New(testCfg, &stubExtractor{}, nil, nil)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"enough chars too few words", strings.Repeat("x", 80), false},
		{"enough words too few chars", "a b c d e f g h i j", false},
		{"both thresholds met", goodText, true},
		{"whitespace only", strings.Repeat(" \n\t", 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.usable(tt.text))
		})
	}
}

func TestParseVisionListings(t *testing.T) {
	text := "Here are the listings:\n```json\n[{\"street\":\"123 Main St\",\"asking_price\":85000}]\n```"
	listings, err := parseVisionListings(text)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "123 Main St", listings[0].Street)
	assert.Equal(t, 85000, listings[0].AskingPrice)
}

func TestParseVisionListings_NoArray(t *testing.T) {
	_, err := parseVisionListings("no listings found on this page")
	require.Error(t, err)
}

func TestVisionRecord_StampsProvenance(t *testing.T) {
	chunk := model.PageChunk{RunID: "run-9", FirstPage: 7}
	rec := visionRecord(visionListing{Street: "1 Elm St", AskingPrice: 60000}, chunk)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "run-9", rec.RunID)
	assert.Equal(t, 7, rec.SourcePage)
	assert.Equal(t, model.RecordStatusRaw, rec.Status)
	require.Len(t, rec.Notes, 1)
	assert.Contains(t, rec.Notes[0], "vision")
}
