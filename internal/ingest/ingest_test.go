package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"recipescan/internal/config"
	"recipescan/internal/domain"
	"recipescan/internal/monitoring"
	"recipescan/internal/pipeline"
	"recipescan/internal/storage"
)

type fakeExtractor struct {
	result *pipeline.Result
	err    error
	calls  int
}

func (f *fakeExtractor) Run(ctx context.Context, raw []byte) (*pipeline.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeRecords struct {
	inserted []*domain.RecipeRecord
	err      error
}

func (f *fakeRecords) InsertRecipe(ctx context.Context, rec *domain.RecipeRecord) error {
	if f.err != nil {
		return f.err
	}
	rec.ID = int64(len(f.inserted) + 1)
	rec.CreatedAt = time.Now()
	f.inserted = append(f.inserted, rec)
	return nil
}

type fakeSeen struct {
	seen   map[string]bool
	marked []string
}

func (f *fakeSeen) WasSeen(ctx context.Context, hash string) (bool, error) {
	return f.seen[hash], nil
}

func (f *fakeSeen) MarkSeen(ctx context.Context, hash string, ttl time.Duration) error {
	f.marked = append(f.marked, hash)
	return nil
}

// failingArchive wraps a FileStore but fails every move.
type failingArchive struct {
	*storage.FileStore
}

func (f *failingArchive) Archive(name string) error {
	return errors.New("disk full")
}

func testConfig() *config.Config {
	return &config.Config{MaxUploadMB: 16, DuplicateTTLHours: 24}
}

func newTestFiles(t *testing.T) (*storage.FileStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	files, err := storage.NewFileStore(fs, "uploads", "uploads/archive")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return files, fs
}

func newTestIngestor(ex Extractor, rs RecordStore, files Files, seen SeenStore) *Ingestor {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	return New(testConfig(), ex, rs, files, seen, m, zap.NewNop())
}

func dirEntries(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names
}

func successResult() *pipeline.Result {
	return &pipeline.Result{
		Recipe: domain.StructuredRecipe{
			Title:       "Pannenkoeken",
			Ingredients: []domain.Ingredient{{Amount: "500", Unit: "gram", Name: "bloem"}},
			Steps:       []string{"Meng alles"},
			Equipment:   []string{"Mengkom"},
		},
		RawText:    "ruwe ocr tekst",
		Language:   "nld",
		Confidence: 82,
	}
}

func TestIngestSuccessPersistsAndArchives(t *testing.T) {
	files, fs := newTestFiles(t)
	records := &fakeRecords{}
	extractor := &fakeExtractor{result: successResult()}
	ing := newTestIngestor(extractor, records, files, nil)

	rec, err := ing.Ingest(context.Background(), domain.Upload{Filename: "recept foto.png", Data: []byte("imagebytes")})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if rec.ID != 1 {
		t.Fatalf("record id = %d, want assigned identity", rec.ID)
	}
	if rec.Title != "Pannenkoeken" || rec.RawOCRText != "ruwe ocr tekst" {
		t.Fatalf("record fields not carried over: %+v", rec)
	}
	if !strings.HasSuffix(rec.OriginalFilename, "_recept_foto.png") {
		t.Fatalf("stored filename = %q, want timestamped sanitized name", rec.OriginalFilename)
	}

	archived := dirEntries(t, fs, "uploads/archive")
	if len(archived) != 1 || archived[0] != rec.OriginalFilename {
		t.Fatalf("archive contains %v, want the staged file", archived)
	}
	if staged := dirEntries(t, fs, "uploads"); len(staged) != 0 {
		t.Fatalf("staging still contains %v after success", staged)
	}
}

func TestIngestExtractionFailureCleansUp(t *testing.T) {
	files, fs := newTestFiles(t)
	records := &fakeRecords{}
	extractor := &fakeExtractor{err: &pipeline.StageError{Stage: pipeline.StageRecognize, Err: errors.New("no text")}}
	ing := newTestIngestor(extractor, records, files, nil)

	_, err := ing.Ingest(context.Background(), domain.Upload{Filename: "blurry.jpg", Data: []byte("bytes")})
	if err == nil {
		t.Fatalf("Ingest() succeeded on a failed extraction")
	}
	if got := pipeline.FailedStage(err); got != pipeline.StageRecognize {
		t.Fatalf("FailedStage() = %q, want recognize", got)
	}
	if !strings.Contains(err.Error(), "no text could be recognized") {
		t.Fatalf("error %q does not carry the user-facing OCR message", err)
	}
	if len(records.inserted) != 0 {
		t.Fatalf("a record was persisted on failure")
	}
	if staged := dirEntries(t, fs, "uploads"); len(staged) != 0 {
		t.Fatalf("staged file not deleted on failure: %v", staged)
	}
}

func TestIngestStructureFailureMessage(t *testing.T) {
	files, _ := newTestFiles(t)
	extractor := &fakeExtractor{err: &pipeline.StageError{Stage: pipeline.StageStructure, Err: errors.New("budget exhausted")}}
	ing := newTestIngestor(extractor, &fakeRecords{}, files, nil)

	_, err := ing.Ingest(context.Background(), domain.Upload{Filename: "a.png", Data: []byte("b")})
	if err == nil || !strings.Contains(err.Error(), "no recipe information could be extracted") {
		t.Fatalf("error %v does not distinguish the structuring failure", err)
	}
}

func TestIngestRejectsOversizedUpload(t *testing.T) {
	files, fs := newTestFiles(t)
	extractor := &fakeExtractor{result: successResult()}
	ing := newTestIngestor(extractor, &fakeRecords{}, files, nil)

	big := make([]byte, 17<<20)
	_, err := ing.Ingest(context.Background(), domain.Upload{Filename: "huge.png", Data: big})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Ingest() error = %v, want ErrTooLarge", err)
	}
	if extractor.calls != 0 {
		t.Fatalf("pipeline ran for a rejected upload")
	}
	if staged := dirEntries(t, fs, "uploads"); len(staged) != 0 {
		t.Fatalf("rejected upload left files behind: %v", staged)
	}
}

func TestIngestRejectsDisallowedExtension(t *testing.T) {
	files, _ := newTestFiles(t)
	extractor := &fakeExtractor{result: successResult()}
	ing := newTestIngestor(extractor, &fakeRecords{}, files, nil)

	_, err := ing.Ingest(context.Background(), domain.Upload{Filename: "recipe.pdf", Data: []byte("x")})
	if !errors.Is(err, ErrDisallowedType) {
		t.Fatalf("Ingest() error = %v, want ErrDisallowedType", err)
	}
	if extractor.calls != 0 {
		t.Fatalf("pipeline ran for a rejected upload")
	}
}

func TestIngestSuppressesDuplicates(t *testing.T) {
	files, _ := newTestFiles(t)
	extractor := &fakeExtractor{result: successResult()}
	data := []byte("same image bytes")
	seen := &fakeSeen{seen: map[string]bool{hashBytes(data): true}}
	ing := newTestIngestor(extractor, &fakeRecords{}, files, seen)

	_, err := ing.Ingest(context.Background(), domain.Upload{Filename: "again.png", Data: data})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Ingest() error = %v, want ErrDuplicate", err)
	}
	if extractor.calls != 0 {
		t.Fatalf("pipeline ran for a duplicate upload")
	}
}

func TestIngestMarksHashAfterSuccess(t *testing.T) {
	files, _ := newTestFiles(t)
	seen := &fakeSeen{seen: map[string]bool{}}
	ing := newTestIngestor(&fakeExtractor{result: successResult()}, &fakeRecords{}, files, seen)

	if _, err := ing.Ingest(context.Background(), domain.Upload{Filename: "a.png", Data: []byte("x")}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(seen.marked) != 1 {
		t.Fatalf("image hash not recorded after success")
	}
}

func TestIngestToleratesArchiveMoveFailure(t *testing.T) {
	files, fs := newTestFiles(t)
	records := &fakeRecords{}
	ing := newTestIngestor(&fakeExtractor{result: successResult()}, records, &failingArchive{files}, nil)

	rec, err := ing.Ingest(context.Background(), domain.Upload{Filename: "a.png", Data: []byte("x")})
	if err != nil {
		t.Fatalf("Ingest() error = %v, want the move failure tolerated", err)
	}
	if rec == nil || rec.ID == 0 {
		t.Fatalf("record not returned despite successful insert")
	}
	// The record is orphaned from its image; the staged file stays put.
	if staged := dirEntries(t, fs, "uploads"); len(staged) != 1 {
		t.Fatalf("staging contains %v, want the unmoved file", staged)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my recipe.png", "my_recipe.png"},
		{"../../etc/passwd.png", "passwd.png"},
		{"..hidden.png", "hidden.png"},
		{"soep & stamppot!.jpeg", "soep_stamppot_.jpeg"},
		{"", "upload"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStagedNameEmbedsTimestamp(t *testing.T) {
	ts := time.Date(2026, 8, 31, 10, 15, 30, 123456789, time.UTC)
	got := stagedName(ts, "photo.png")
	if got != "20260831_101530.123456789_photo.png" {
		t.Fatalf("stagedName() = %q", got)
	}
}
