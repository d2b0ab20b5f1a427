// Package ingest implements the upload-to-record workflow: validate the
// upload, stage the bytes, run the extraction pipeline, then persist and
// archive on success or clean up on failure.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"recipescan/internal/config"
	"recipescan/internal/domain"
	"recipescan/internal/monitoring"
	"recipescan/internal/pipeline"
)

var (
	// ErrDisallowedType reports an upload whose file extension is not an
	// accepted image type.
	ErrDisallowedType = errors.New("ingest: file type not allowed")

	// ErrTooLarge reports an upload exceeding the configured size limit.
	ErrTooLarge = errors.New("ingest: file exceeds size limit")

	// ErrDuplicate reports an image that was already ingested recently.
	ErrDuplicate = errors.New("ingest: image was already ingested")
)

// Extractor runs the extraction pipeline for one image.
type Extractor interface {
	Run(ctx context.Context, raw []byte) (*pipeline.Result, error)
}

// RecordStore persists recipe records.
type RecordStore interface {
	InsertRecipe(ctx context.Context, rec *domain.RecipeRecord) error
}

// Files is the staging/archive surface the workflow needs.
type Files interface {
	Stage(name string, data []byte) error
	Archive(name string) error
	Discard(name string) error
}

// SeenStore remembers recently ingested image hashes.
type SeenStore interface {
	WasSeen(ctx context.Context, hash string) (bool, error)
	MarkSeen(ctx context.Context, hash string, ttl time.Duration) error
}

var defaultAllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "tiff", "webp"}

// Ingestor drives the ingestion workflow. Each call to Ingest is independent;
// one Ingestor serves concurrent requests.
type Ingestor struct {
	extractor Extractor
	records   RecordStore
	files     Files
	seen      SeenStore // nil disables duplicate suppression
	allowed   map[string]struct{}
	maxBytes  int64
	seenTTL   time.Duration
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func New(cfg *config.Config, ex Extractor, rs RecordStore, fs Files, seen SeenStore, m *monitoring.Metrics, l *zap.Logger) *Ingestor {
	allowed := make(map[string]struct{}, len(defaultAllowedExtensions))
	for _, ext := range defaultAllowedExtensions {
		allowed[ext] = struct{}{}
	}
	return &Ingestor{
		extractor: ex,
		records:   rs,
		files:     fs,
		seen:      seen,
		allowed:   allowed,
		maxBytes:  cfg.MaxUploadBytes(),
		seenTTL:   time.Duration(cfg.DuplicateTTLHours) * time.Hour,
		metrics:   m,
		logger:    l,
		now:       time.Now,
	}
}

// Ingest runs the full workflow for one upload. Precondition violations are
// rejected before any storage side effect. On a successful extraction the
// record insert always happens before the file move; a failed move leaves
// the record without its source image, which is logged and tolerated rather
// than rolled back. On a failed extraction the staged file is deleted and
// nothing is persisted.
func (in *Ingestor) Ingest(ctx context.Context, upload domain.Upload) (*domain.RecipeRecord, error) {
	if err := in.validate(upload); err != nil {
		in.metrics.IncIngests("rejected")
		return nil, err
	}

	hash := hashBytes(upload.Data)
	if in.seen != nil {
		seen, err := in.seen.WasSeen(ctx, hash)
		if err != nil {
			in.logger.Warn("duplicate check unavailable", zap.Error(err))
		} else if seen {
			in.metrics.IncIngests("duplicate")
			return nil, fmt.Errorf("%w (hash %s)", ErrDuplicate, hash[:12])
		}
	}

	name := stagedName(in.now(), upload.Filename)
	if err := in.files.Stage(name, upload.Data); err != nil {
		in.metrics.IncIngests("failed")
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	result, err := in.extractor.Run(ctx, upload.Data)
	if err != nil {
		if derr := in.files.Discard(name); derr != nil {
			in.logger.Error("could not remove staged file", zap.String("file", name), zap.Error(derr))
		}
		in.metrics.IncIngests("failed")
		return nil, describeFailure(err)
	}

	rec := &domain.RecipeRecord{
		StructuredRecipe: result.Recipe,
		OriginalFilename: name,
		RawOCRText:       result.RawText,
	}
	if err := in.records.InsertRecipe(ctx, rec); err != nil {
		if derr := in.files.Discard(name); derr != nil {
			in.logger.Error("could not remove staged file", zap.String("file", name), zap.Error(derr))
		}
		in.metrics.IncIngests("failed")
		return nil, fmt.Errorf("persist record: %w", err)
	}

	if err := in.files.Archive(name); err != nil {
		// Recoverable inconsistency: the record exists without its source
		// image. Surfaced in the log, not rolled back.
		in.logger.Error("archive move failed, record kept without source image",
			zap.Int64("id", rec.ID), zap.String("file", name), zap.Error(err))
	}

	if in.seen != nil {
		if err := in.seen.MarkSeen(ctx, hash, in.seenTTL); err != nil {
			in.logger.Warn("could not record image hash", zap.Error(err))
		}
	}

	in.metrics.IncIngests("succeeded")
	in.logger.Info("recipe ingested",
		zap.Int64("id", rec.ID),
		zap.String("title", rec.Title),
		zap.String("language", result.Language),
		zap.Float64("confidence", result.Confidence))
	return rec, nil
}

func (in *Ingestor) validate(upload domain.Upload) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(upload.Filename), "."))
	if _, ok := in.allowed[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrDisallowedType, ext)
	}
	if int64(len(upload.Data)) > in.maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(upload.Data), in.maxBytes)
	}
	return nil
}

// describeFailure maps a stage-tagged pipeline error onto the user-facing
// distinction between "nothing recognized" and "recognized but not
// structurable". The stage tag stays reachable through the wrap chain.
func describeFailure(err error) error {
	switch pipeline.FailedStage(err) {
	case pipeline.StagePreprocess, pipeline.StageRecognize:
		return fmt.Errorf("no text could be recognized in the image: %w", err)
	case pipeline.StageStructure:
		return fmt.Errorf("no recipe information could be extracted from the image: %w", err)
	default:
		return err
	}
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename strips path components and characters that are unsafe in
// a flat storage namespace, including anything path-traversal related.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		name = "upload"
	}
	return name
}

// stagedName embeds a nanosecond-resolution ingestion timestamp so
// concurrent ingestions of files with the same original name never collide
// in storage.
func stagedName(t time.Time, original string) string {
	return t.Format("20060102_150405.000000000") + "_" + sanitizeFilename(original)
}
