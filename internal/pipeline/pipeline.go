// Package pipeline sequences the extraction stages for a single image:
// preprocessing, recognition, structuring. Stages run strictly in order;
// the first failure ends the run with a stage-tagged error.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"recipescan/internal/domain"
	"recipescan/internal/imaging"
	"recipescan/internal/monitoring"
	"recipescan/internal/ocr"
)

// Stage identifies which step of an extraction failed.
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageRecognize  Stage = "recognize"
	StageStructure  Stage = "structure"
)

// StageError tags a component failure with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage an extraction error belongs to, or "" when
// the error did not originate in the pipeline.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Recognizer selects the best OCR attempt for a normalized image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (ocr.BestResult, error)
}

// Structurer converts raw recognized text into the canonical recipe schema.
type Structurer interface {
	Structure(ctx context.Context, rawText string) (domain.StructuredRecipe, error)
}

// Result carries everything downstream consumers need from a successful
// extraction: the validated recipe, the raw OCR text for audit storage, and
// the winning attempt's language and confidence for diagnostics.
type Result struct {
	Recipe     domain.StructuredRecipe
	RawText    string
	Language   string
	Confidence float64
}

// Pipeline runs one extraction end to end. Instances are stateless; a single
// Pipeline may serve concurrent runs.
type Pipeline struct {
	recognizer Recognizer
	structurer Structurer
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func New(recognizer Recognizer, structurer Structurer, m *monitoring.Metrics, l *zap.Logger) *Pipeline {
	return &Pipeline{recognizer: recognizer, structurer: structurer, metrics: m, logger: l}
}

// Run executes preprocess, recognize and structure in order. No stage is
// skipped and none is retried here; only the structurer retries internally.
func (p *Pipeline) Run(ctx context.Context, raw []byte) (*Result, error) {
	normalized, err := imaging.Normalize(raw)
	if err != nil {
		return nil, p.fail(StagePreprocess, err)
	}

	best, err := p.recognizer.Recognize(ctx, normalized.PNG)
	if err != nil {
		return nil, p.fail(StageRecognize, err)
	}
	p.logger.Info("text recognized",
		zap.String("language", best.Language),
		zap.Float64("confidence", best.Confidence))

	recipe, err := p.structurer.Structure(ctx, best.Text)
	if err != nil {
		return nil, p.fail(StageStructure, err)
	}

	return &Result{
		Recipe:     recipe,
		RawText:    best.Text,
		Language:   best.Language,
		Confidence: best.Confidence,
	}, nil
}

func (p *Pipeline) fail(stage Stage, err error) error {
	p.logger.Warn("extraction failed", zap.String("stage", string(stage)), zap.Error(err))
	p.metrics.IncStageError(string(stage))
	return &StageError{Stage: stage, Err: err}
}
