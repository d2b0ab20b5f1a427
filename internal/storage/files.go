package storage

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileStore keeps uploaded images in a staging directory while an ingestion
// is in flight, then moves them to the archive on success or removes them on
// failure. Names are generated by the caller and are unique per ingestion,
// so concurrent ingestions never collide.
type FileStore struct {
	fs         afero.Fs
	stagingDir string
	archiveDir string
}

// NewFileStore creates both directories if they do not exist.
func NewFileStore(fs afero.Fs, stagingDir, archiveDir string) (*FileStore, error) {
	if err := fs.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	if err := fs.MkdirAll(archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FileStore{fs: fs, stagingDir: stagingDir, archiveDir: archiveDir}, nil
}

// Stage writes the uploaded bytes to the staging directory under name.
func (f *FileStore) Stage(name string, data []byte) error {
	if err := afero.WriteFile(f.fs, f.StagingPath(name), data, 0o644); err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	return nil
}

// Archive moves a staged file to the archive directory under the same name.
func (f *FileStore) Archive(name string) error {
	if err := f.fs.Rename(f.StagingPath(name), f.ArchivePath(name)); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	return nil
}

// Discard removes a staged file after a failed ingestion.
func (f *FileStore) Discard(name string) error {
	if err := f.fs.Remove(f.StagingPath(name)); err != nil {
		return fmt.Errorf("discard %s: %w", name, err)
	}
	return nil
}

func (f *FileStore) StagingPath(name string) string {
	return filepath.Join(f.stagingDir, name)
}

func (f *FileStore) ArchivePath(name string) string {
	return filepath.Join(f.archiveDir, name)
}
