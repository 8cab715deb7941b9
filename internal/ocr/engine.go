// Package ocr provides text recognition engines and the quality-based
// routing gateway in front of them.
package ocr

import (
	"context"
	"image"

	"github.com/invoiceflow/invoiceflow-backend/internal/quality"
)

// Engine identifiers as reported in OCRResult.EngineUsed.
const (
	EngineFast     = "fast"
	EngineAccurate = "accurate"
)

// Input encapsulates a single image submitted for recognition.
type Input struct {
	// Image is the decoded page image.
	Image image.Image
	// Languages is a list of language hints (e.g., "eng", "deu") that
	// engines can use to select trained data.
	Languages []string
}

// Result captures the raw output of one engine invocation.
type Result struct {
	Text       string
	Confidence float64
}

// Engine recognizes text in a page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// OCRResult is the gateway's routed recognition outcome.
type OCRResult struct {
	Text       string          `json:"text"`
	EngineUsed string          `json:"engine_used"`
	Escalated  bool            `json:"escalated"`
	Metrics    quality.Metrics `json:"metrics"`
}
