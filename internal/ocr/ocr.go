// Package ocr provides text extraction from PDF chunks, either via the
// local pdftotext binary or the Mistral OCR API.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates the OCR fallback Extractor based on config. A "none"
// provider returns nil, which disables the OCR tier.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "mistral", "":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.Model), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
