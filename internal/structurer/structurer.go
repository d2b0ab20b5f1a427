// Package structurer converts raw OCR text into the canonical recipe schema
// by prompting an external generative text service and validating its JSON
// response. Transient service and parse failures are retried within a fixed
// attempt budget; a missing credential fails immediately.
package structurer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"recipescan/internal/domain"
)

var (
	// ErrMissingCredential reports that the structuring service cannot be
	// reached because no API credential is configured. Non-retriable.
	ErrMissingCredential = errors.New("structurer: no API credential configured")

	// ErrNotStructurable reports that no valid recipe JSON could be obtained
	// within the attempt budget.
	ErrNotStructurable = errors.New("structurer: response not structurable")
)

// DefaultTitle is substituted when the service response carries no title.
const DefaultTitle = "Unknown Recipe"

const (
	defaultAttempts = 3
	defaultTimeout  = 60 * time.Second
)

// Generator produces text from a prompt. Implemented by GeminiClient and by
// fakes in tests.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const promptTemplate = `I extracted the following text from a photo of a recipe. Analyze the text and
extract the recipe information in a structured JSON format.

Return the result ONLY as JSON in exactly this format:
{
    "title": "Name of the recipe",
    "ingredients": [
        {"amount": "2", "unit": "pieces", "name": "eggs"},
        {"amount": "500", "unit": "grams", "name": "flour"}
    ],
    "steps": [
        "Step 1: description",
        "Step 2: description"
    ],
    "equipment": [
        "Mixing bowl",
        "Whisk"
    ]
}

Here is the raw OCR text:
` + "```\n%s\n```" + `

Return ONLY the JSON output, without any extra text or explanation.`

// Structurer drives the generative service with a bounded retry policy.
type Structurer struct {
	generator Generator
	attempts  int
	timeout   time.Duration
	logger    *zap.Logger
}

// New constructs a Structurer. attempts <= 0 and timeout <= 0 fall back to
// 3 attempts and 60 seconds per attempt.
func New(generator Generator, attempts int, timeout time.Duration, logger *zap.Logger) *Structurer {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Structurer{generator: generator, attempts: attempts, timeout: timeout, logger: logger}
}

// Structure sends rawText to the generative service and parses the response
// into a schema-complete recipe. A service error or an unparsable response
// triggers an immediate retry; after the attempt budget is exhausted the call
// fails with ErrNotStructurable. A missing credential fails immediately
// without consuming the budget.
func (s *Structurer) Structure(ctx context.Context, rawText string) (domain.StructuredRecipe, error) {
	clean := strings.TrimSpace(rawText)
	if clean == "" {
		return domain.StructuredRecipe{}, fmt.Errorf("%w: empty raw text", ErrNotStructurable)
	}
	prompt := fmt.Sprintf(promptTemplate, clean)

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		recipe, err := s.tryOnce(ctx, prompt)
		if err == nil {
			return recipe, nil
		}
		if errors.Is(err, ErrMissingCredential) {
			return domain.StructuredRecipe{}, err
		}
		lastErr = err
		s.logger.Warn("structuring attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return domain.StructuredRecipe{}, fmt.Errorf("%w after %d attempts: %v", ErrNotStructurable, s.attempts, lastErr)
}

func (s *Structurer) tryOnce(ctx context.Context, prompt string) (domain.StructuredRecipe, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.generator.Generate(attemptCtx, prompt)
	if err != nil {
		return domain.StructuredRecipe{}, fmt.Errorf("generate: %w", err)
	}
	return parseResponse(response)
}

// wireRecipe mirrors the JSON object the prompt demands. Absent keys decode
// to zero values and are backfilled by applyDefaults.
type wireRecipe struct {
	Title       string              `json:"title"`
	Ingredients []domain.Ingredient `json:"ingredients"`
	Steps       []string            `json:"steps"`
	Equipment   []string            `json:"equipment"`
}

func parseResponse(response string) (domain.StructuredRecipe, error) {
	cleaned := stripFences(response)
	if cleaned == "" {
		return domain.StructuredRecipe{}, errors.New("empty response text")
	}
	var wire wireRecipe
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return domain.StructuredRecipe{}, fmt.Errorf("parse response json: %w", err)
	}
	return applyDefaults(wire), nil
}

// applyDefaults makes the recipe schema-complete: a blank title becomes
// DefaultTitle and nil sequences become empty ones.
func applyDefaults(wire wireRecipe) domain.StructuredRecipe {
	recipe := domain.StructuredRecipe{
		Title:       strings.TrimSpace(wire.Title),
		Ingredients: wire.Ingredients,
		Steps:       wire.Steps,
		Equipment:   wire.Equipment,
	}
	if recipe.Title == "" {
		recipe.Title = DefaultTitle
	}
	if recipe.Ingredients == nil {
		recipe.Ingredients = []domain.Ingredient{}
	}
	if recipe.Steps == nil {
		recipe.Steps = []string{}
	}
	if recipe.Equipment == nil {
		recipe.Equipment = []string{}
	}
	return recipe
}

// stripFences removes a fenced-code-block wrapper (optionally tagged, e.g.
// ```json) from the response before parsing.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
