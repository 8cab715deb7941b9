package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/invoiceflow/invoiceflow-backend/internal/quality"
	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

// Gateway routes page images to the fast or accurate engine based on
// measured image quality. At most two engine invocations happen per
// image: the quality-selected engine plus one fallback.
type Gateway struct {
	fast       Engine
	accurate   Engine
	thresholds quality.Thresholds
	minTextLen int
	languages  []string
	logger     *logger.Logger
}

// NewGateway creates a routing gateway over the two engines.
func NewGateway(fast, accurate Engine, thresholds quality.Thresholds, minTextLen int, languages []string, log *logger.Logger) *Gateway {
	return &Gateway{
		fast:       fast,
		accurate:   accurate,
		thresholds: thresholds,
		minTextLen: minTextLen,
		languages:  languages,
		logger:     log,
	}
}

// Route assesses the image and recognizes its text. Images within the
// quality window go to the fast engine; a fast result shorter than the
// configured minimum escalates once to the accurate engine. Off-window
// images go straight to the accurate engine, with the fast engine as
// the fallback when it is down. Only when both engines fail does Route
// return an error.
func (g *Gateway) Route(ctx context.Context, img image.Image) (*OCRResult, error) {
	metrics := quality.Assess(img)
	in := Input{Image: img, Languages: g.languages}

	if g.thresholds.Acceptable(metrics) {
		return g.routeFastFirst(ctx, in, metrics)
	}

	g.logger.Debug().
		Float64("sharpness", metrics.Sharpness).
		Float64("contrast", metrics.Contrast).
		Float64("brightness", metrics.Brightness).
		Msg("image quality below thresholds, routing to accurate engine")

	return g.routeAccurateFirst(ctx, in, metrics)
}

func (g *Gateway) routeFastFirst(ctx context.Context, in Input, metrics quality.Metrics) (*OCRResult, error) {
	fastRes, fastErr := g.fast.Recognize(ctx, in)
	if fastErr == nil && len(fastRes.Text) >= g.minTextLen {
		return &OCRResult{
			Text:       fastRes.Text,
			EngineUsed: EngineFast,
			Metrics:    metrics,
		}, nil
	}

	if fastErr != nil {
		g.logger.Warn().Err(fastErr).Msg("fast engine failed, escalating")
	} else {
		g.logger.Debug().
			Int("text_length", len(fastRes.Text)).
			Int("min_text_length", g.minTextLen).
			Msg("fast result too short, escalating")
	}

	accRes, accErr := g.accurate.Recognize(ctx, in)
	if accErr == nil {
		return &OCRResult{
			Text:       accRes.Text,
			EngineUsed: EngineAccurate,
			Escalated:  true,
			Metrics:    metrics,
		}, nil
	}

	// Escalation failed but the fast engine produced text: a short
	// result beats no result.
	if fastErr == nil {
		g.logger.Warn().Err(accErr).Msg("escalation failed, keeping short fast result")
		return &OCRResult{
			Text:       fastRes.Text,
			EngineUsed: EngineFast,
			Escalated:  true,
			Metrics:    metrics,
		}, nil
	}

	return nil, errors.OCRUnavailable(joinEngineErrors(fastErr, accErr))
}

func (g *Gateway) routeAccurateFirst(ctx context.Context, in Input, metrics quality.Metrics) (*OCRResult, error) {
	accRes, accErr := g.accurate.Recognize(ctx, in)
	if accErr == nil {
		return &OCRResult{
			Text:       accRes.Text,
			EngineUsed: EngineAccurate,
			Metrics:    metrics,
		}, nil
	}

	g.logger.Warn().Err(accErr).Msg("accurate engine failed, falling back to fast engine")

	fastRes, fastErr := g.fast.Recognize(ctx, in)
	if fastErr == nil {
		return &OCRResult{
			Text:       fastRes.Text,
			EngineUsed: EngineFast,
			Metrics:    metrics,
		}, nil
	}

	return nil, errors.OCRUnavailable(joinEngineErrors(fastErr, accErr))
}

func joinEngineErrors(fastErr, accErr error) error {
	return fmt.Errorf("fast: %v; accurate: %v", fastErr, accErr)
}
