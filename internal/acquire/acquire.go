// Package acquire turns page chunks into text, trying the cheap text layer
// first and falling back to vision inference or OCR per chunk.
package acquire

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/ocr"
)

// Result is the output of acquiring a run's chunks. PageText is keyed by the
// chunk's first page. Vision candidates bypass reconstruction entirely.
type Result struct {
	PageText         map[int]string
	VisionCandidates []*model.PropertyRecord

	TextPages   int
	VisionPages int
	OCRPages    int
	EmptyPages  int
}

// Acquirer runs the per-chunk tier waterfall: text-layer probe, then vision,
// then OCR. Tiers that are not configured are skipped.
type Acquirer struct {
	cfg      config.AcquireConfig
	probe    ocr.Extractor
	vision   VisionExtractor
	fallback ocr.Extractor
}

// New creates an Acquirer. vision and fallback may be nil.
func New(cfg config.AcquireConfig, probe ocr.Extractor, vision VisionExtractor, fallback ocr.Extractor) *Acquirer {
	if probe == nil {
		probe = ocr.NewPdfToText(cfg.PdfToTextPath)
	}
	return &Acquirer{cfg: cfg, probe: probe, vision: vision, fallback: fallback}
}

// Acquire processes every chunk. Per-chunk failures degrade to the next tier
// and are logged; a page that all tiers miss simply contributes nothing.
func (a *Acquirer) Acquire(ctx context.Context, chunks []model.PageChunk) (*Result, error) {
	res := &Result{PageText: make(map[int]string, len(chunks))}

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a.acquireChunk(ctx, chunk, res)
	}

	zap.L().Info("acquisition complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("text", res.TextPages),
		zap.Int("vision", res.VisionPages),
		zap.Int("ocr", res.OCRPages),
		zap.Int("empty", res.EmptyPages))
	return res, nil
}

func (a *Acquirer) acquireChunk(ctx context.Context, chunk model.PageChunk, res *Result) {
	text, err := a.probe.ExtractText(ctx, chunk.Path)
	if err != nil {
		zap.L().Debug("acquire: text probe failed",
			zap.Int("page", chunk.FirstPage), zap.Error(err))
	} else if a.usable(text) {
		res.PageText[chunk.FirstPage] = text
		res.TextPages++
		return
	}

	if a.vision != nil {
		recs, err := a.vision.ExtractRecords(ctx, chunk)
		if err == nil {
			res.VisionCandidates = append(res.VisionCandidates, recs...)
			res.VisionPages++
			return
		}
		zap.L().Warn("acquire: vision extraction failed",
			zap.Int("page", chunk.FirstPage), zap.Error(err))
	}

	if a.fallback != nil {
		text, err := a.fallback.ExtractText(ctx, chunk.Path)
		if err == nil && strings.TrimSpace(text) != "" {
			res.PageText[chunk.FirstPage] = text
			res.OCRPages++
			return
		}
		if err != nil {
			zap.L().Warn("acquire: ocr fallback failed",
				zap.Int("page", chunk.FirstPage), zap.Error(err))
		}
	}

	res.EmptyPages++
	zap.L().Warn("acquire: page yielded no text", zap.Int("page", chunk.FirstPage))
}

// usable reports whether probed text clears both the character and word
// thresholds. Scanned pages often produce a handful of garbage glyphs, so
// either check alone is not enough.
func (a *Acquirer) usable(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < a.cfg.MinChars {
		return false
	}
	return len(strings.Fields(trimmed)) >= a.cfg.MinWords
}
