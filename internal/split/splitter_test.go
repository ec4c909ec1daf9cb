package split

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/config"
)

func TestChunkRanges(t *testing.T) {
	tests := []struct {
		name      string
		pages     int
		perChunk  int
		want      []pageRange
	}{
		{"single pages", 3, 1, []pageRange{{1, 1}, {2, 2}, {3, 3}}},
		{"even groups", 4, 2, []pageRange{{1, 2}, {3, 4}}},
		{"ragged tail", 5, 2, []pageRange{{1, 2}, {3, 4}, {5, 5}}},
		{"chunk larger than doc", 2, 10, []pageRange{{1, 2}}},
		{"zero per chunk defaults to one", 2, 0, []pageRange{{1, 1}, {2, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunkRanges(tt.pages, tt.perChunk)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplit_MissingFile(t *testing.T) {
	s := New(config.SplitConfig{WorkDir: t.TempDir()})

	_, err := s.Split(context.Background(), "run-1", filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split: read nope.pdf")
}

func TestSplit_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(srcPath, []byte("this is not a pdf"), 0o644))

	s := New(config.SplitConfig{WorkDir: dir})

	_, err := s.Split(context.Background(), "run-1", srcPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split: read garbage.pdf")
}
