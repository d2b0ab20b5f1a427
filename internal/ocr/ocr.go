// Package ocr runs optical character recognition across a ranked list of
// candidate languages and selects the attempt the engine was most confident
// about. The Engine interface keeps the provider pluggable; the default
// provider is Tesseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrNoText reports that no usable text could be recognized: either every
// language attempt failed, or the best attempt produced only whitespace.
var ErrNoText = errors.New("ocr: no usable text recognized")

// Word is a single recognized token with the engine's confidence in it on a
// 0-100 scale.
type Word struct {
	Text       string
	Confidence float64
}

// Recognition is the raw engine output for one language attempt.
type Recognition struct {
	Text  string
	Words []Word
}

// Engine is the OCR provider contract: one image under one language tag in,
// raw text and per-token confidences out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, lang string) (Recognition, error)
}

// Attempt records one language's recognition outcome.
type Attempt struct {
	Language   string
	Text       string
	Confidence float64
}

// BestResult is the winning attempt across the configured languages.
type BestResult struct {
	Language   string
	Text       string
	Confidence float64
}

// Adapter runs an Engine once per configured language and keeps whichever
// attempt scored highest. It holds no state between calls.
type Adapter struct {
	engine    Engine
	languages []string
	logger    *zap.Logger
}

// NewAdapter constructs an adapter over the given engine. languages is the
// ordered candidate list; earlier entries win confidence ties.
func NewAdapter(engine Engine, languages []string, logger *zap.Logger) *Adapter {
	return &Adapter{
		engine:    engine,
		languages: append([]string(nil), languages...),
		logger:    logger,
	}
}

// Recognize attempts recognition under every configured language and returns
// the attempt with the strictly greatest average confidence; the first-seen
// attempt wins ties. A failure under one language does not abort the loop.
// It returns ErrNoText when every attempt fails or the selected text is
// empty after trimming.
func (a *Adapter) Recognize(ctx context.Context, image []byte) (BestResult, error) {
	var best *Attempt
	for _, lang := range a.languages {
		rec, err := a.engine.Recognize(ctx, image, lang)
		if err != nil {
			a.logger.Warn("ocr attempt failed",
				zap.String("engine", a.engine.Name()),
				zap.String("language", lang),
				zap.Error(err))
			continue
		}
		attempt := Attempt{Language: lang, Text: rec.Text, Confidence: averageConfidence(rec.Words)}
		a.logger.Debug("ocr attempt scored",
			zap.String("language", lang),
			zap.Float64("confidence", attempt.Confidence),
			zap.Int("tokens", len(rec.Words)))
		if best == nil || attempt.Confidence > best.Confidence {
			best = &attempt
		}
	}

	if best == nil {
		return BestResult{}, fmt.Errorf("%w: every language attempt failed", ErrNoText)
	}
	if strings.TrimSpace(best.Text) == "" {
		return BestResult{}, fmt.Errorf("%w: best attempt (%s) produced empty text", ErrNoText, best.Language)
	}
	return BestResult{Language: best.Language, Text: best.Text, Confidence: best.Confidence}, nil
}

// averageConfidence averages token confidences, excluding tokens with
// non-positive confidence. An attempt with no qualifying token scores 0.
func averageConfidence(words []Word) float64 {
	var sum float64
	var n int
	for _, w := range words {
		if w.Confidence > 0 {
			sum += w.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
