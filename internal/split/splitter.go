// Package split cuts a source PDF into small page chunks so downstream
// acquisition works on bounded units.
package split

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/model"
)

// Splitter writes per-chunk PDFs for a source document using pdfcpu.
type Splitter struct {
	cfg  config.SplitConfig
	conf *pdfmodel.Configuration
}

// New creates a Splitter from config.
func New(cfg config.SplitConfig) *Splitter {
	return &Splitter{cfg: cfg, conf: pdfmodel.NewDefaultConfiguration()}
}

// pageRange is a contiguous run of pages forming one chunk.
type pageRange struct {
	first, last int
}

// Split cuts the document at srcPath into chunk PDFs under the run's work
// dir and returns them in page order. A document that cannot be opened or
// has no pages fails the run.
func (s *Splitter) Split(ctx context.Context, runID, srcPath string) ([]model.PageChunk, error) {
	pdfCtx, err := api.ReadContextFile(srcPath)
	if err != nil {
		return nil, eris.Wrapf(err, "split: read %s", filepath.Base(srcPath))
	}
	if pdfCtx.PageCount == 0 {
		return nil, eris.Errorf("split: %s has no pages", filepath.Base(srcPath))
	}

	workDir := filepath.Join(s.cfg.WorkDir, runID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "split: create work dir")
	}

	ranges := chunkRanges(pdfCtx.PageCount, s.cfg.PagesPerChunk)

	chunks := make([]model.PageChunk, 0, len(ranges))
	for i := 0; i < len(ranges); i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "split: canceled")
		}
		r := ranges[i]

		chunk, err := s.writeChunk(runID, srcPath, workDir, r)
		if err != nil {
			return nil, err
		}

		if s.cfg.MaxChunkBytes > 0 && chunk.Size > s.cfg.MaxChunkBytes {
			if r.last > r.first {
				// Too big as a group: redo this range page by page.
				os.Remove(chunk.Path) //nolint:errcheck
				var single []pageRange
				for p := r.first; p <= r.last; p++ {
					single = append(single, pageRange{p, p})
				}
				ranges = append(ranges[:i], append(single, ranges[i+1:]...)...)
				i--
				continue
			}
			// A single page over the limit is kept; downstream tiers may
			// still handle it.
			zap.L().Warn("split: oversized single-page chunk",
				zap.String("run_id", runID),
				zap.Int("page", r.first),
				zap.Int64("size", chunk.Size),
				zap.Int64("max", s.cfg.MaxChunkBytes))
		}

		chunks = append(chunks, chunk)
	}

	zap.L().Info("split complete",
		zap.String("run_id", runID),
		zap.Int("pages", pdfCtx.PageCount),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func (s *Splitter) writeChunk(runID, srcPath, workDir string, r pageRange) (model.PageChunk, error) {
	outPath := filepath.Join(workDir, fmt.Sprintf("chunk_%04d_%04d.pdf", r.first, r.last))

	sel := fmt.Sprintf("%d-%d", r.first, r.last)
	if r.first == r.last {
		sel = fmt.Sprintf("%d", r.first)
	}
	if err := api.TrimFile(srcPath, outPath, []string{sel}, s.conf); err != nil {
		return model.PageChunk{}, eris.Wrapf(err, "split: extract pages %s", sel)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return model.PageChunk{}, eris.Wrapf(err, "split: stat chunk %s", outPath)
	}

	return model.PageChunk{
		ID:        uuid.New().String(),
		RunID:     runID,
		FirstPage: r.first,
		LastPage:  r.last,
		Path:      outPath,
		Size:      info.Size(),
	}, nil
}

// chunkRanges partitions pages 1..pageCount into runs of perChunk pages.
func chunkRanges(pageCount, perChunk int) []pageRange {
	if perChunk <= 0 {
		perChunk = 1
	}
	var ranges []pageRange
	for first := 1; first <= pageCount; first += perChunk {
		last := first + perChunk - 1
		if last > pageCount {
			last = pageCount
		}
		ranges = append(ranges, pageRange{first, last})
	}
	return ranges
}
