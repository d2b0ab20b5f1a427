package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"recipescan/internal/domain"
	"recipescan/internal/monitoring"
	"recipescan/internal/ocr"
	"recipescan/internal/pipeline"
	"recipescan/internal/structurer"
)

// langEngine serves canned recognitions per language, standing in for
// Tesseract in the full-workflow tests below.
type langEngine struct {
	byLang map[string]ocr.Recognition
}

func (e *langEngine) Name() string { return "canned" }

func (e *langEngine) Recognize(ctx context.Context, image []byte, lang string) (ocr.Recognition, error) {
	return e.byLang[lang], nil
}

type cannedGenerator struct {
	response string
}

func (g *cannedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.response, nil
}

func photoPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 8; i++ {
		img.Set(i, i, color.RGBA{R: 200, G: 100, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode photo: %v", err)
	}
	return buf.Bytes()
}

func tokens(text string, confidence float64) []ocr.Word {
	fields := strings.Fields(text)
	words := make([]ocr.Word, 0, len(fields))
	for _, f := range fields {
		words = append(words, ocr.Word{Text: f, Confidence: confidence})
	}
	return words
}

// A clean French recipe photo with languages [fr, en]: the French attempt
// wins, its text is stored as the audit OCR text, and the ingredients land
// verbatim from the structuring response.
func TestWorkflowFrenchPhotoEndToEnd(t *testing.T) {
	frenchText := "Crêpes\n250 g de farine\n3 œufs"
	engine := &langEngine{byLang: map[string]ocr.Recognition{
		"fr": {Text: frenchText, Words: tokens(frenchText, 82)},
		"en": {Text: "Crepes 250 g de farine", Words: tokens("garbled text here", 40)},
	}}
	generator := &cannedGenerator{response: "```json\n" + `{
		"title": "Crêpes",
		"ingredients": [
			{"amount": "250", "unit": "g", "name": "farine"},
			{"amount": "3", "unit": "", "name": "œufs"}
		],
		"steps": ["Mélanger la farine et les œufs"],
		"equipment": ["Poêle"]
	}` + "\n```"}

	logger := zap.NewNop()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	extractor := pipeline.New(
		ocr.NewAdapter(engine, []string{"fr", "en"}, logger),
		structurer.New(generator, 3, time.Second, logger),
		metrics, logger)

	files, fs := newTestFiles(t)
	records := &fakeRecords{}
	ing := New(testConfig(), extractor, records, files, nil, metrics, logger)

	rec, err := ing.Ingest(context.Background(), domain.Upload{Filename: "crepes.png", Data: photoPNG(t)})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if rec.RawOCRText != frenchText {
		t.Fatalf("stored OCR text = %q, want the French attempt's text", rec.RawOCRText)
	}
	if len(rec.Ingredients) != 2 || rec.Ingredients[0].Name != "farine" || rec.Ingredients[1].Name != "œufs" {
		t.Fatalf("ingredients = %+v, want the service's JSON verbatim", rec.Ingredients)
	}
	if archived := dirEntries(t, fs, "uploads/archive"); len(archived) != 1 {
		t.Fatalf("archive contains %v, want one file", archived)
	}
}

// An unrecognizable image: zero confidence and empty text for every language
// means no record, no staged file, and a failure attributed to OCR.
func TestWorkflowUnrecognizableImage(t *testing.T) {
	engine := &langEngine{byLang: map[string]ocr.Recognition{
		"fr": {Text: "", Words: tokens("x y", 0)},
		"en": {Text: "   ", Words: nil},
	}}
	generator := &cannedGenerator{response: `{"title":"never reached"}`}

	logger := zap.NewNop()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	extractor := pipeline.New(
		ocr.NewAdapter(engine, []string{"fr", "en"}, logger),
		structurer.New(generator, 3, time.Second, logger),
		metrics, logger)

	files, fs := newTestFiles(t)
	records := &fakeRecords{}
	ing := New(testConfig(), extractor, records, files, nil, metrics, logger)

	_, err := ing.Ingest(context.Background(), domain.Upload{Filename: "noise.png", Data: photoPNG(t)})
	if err == nil {
		t.Fatalf("Ingest() succeeded on an unrecognizable image")
	}
	if got := pipeline.FailedStage(err); got != pipeline.StageRecognize {
		t.Fatalf("FailedStage() = %q, want recognize", got)
	}
	if len(records.inserted) != 0 {
		t.Fatalf("a record was created for an unrecognizable image")
	}
	if staged := dirEntries(t, fs, "uploads"); len(staged) != 0 {
		t.Fatalf("staged file survived the failure: %v", staged)
	}
}
