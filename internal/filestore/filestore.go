package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aspiranek/sim/internal/database/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store keeps internal file bytes on disk at locations derived from their
// database handles. Rows are inserted before bytes are written, so a handle
// is always reserved before use; bytes are removed only by DeleteFile jobs.
// Committed bytes are immutable - new content always gets a new handle.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create internal files directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Reserve inserts an InternalFile row and returns the new handle. It runs in
// the caller's transaction so the handle disappears if the caller rolls back.
func (s *Store) Reserve(tx *gorm.DB) (uint64, error) {
	file := &models.InternalFile{}
	if err := tx.Create(file).Error; err != nil {
		return 0, err
	}
	return file.ID, nil
}

// Path returns the deterministic on-disk location for a handle.
func (s *Store) Path(id uint64) string {
	return filepath.Join(s.dir, strconv.FormatUint(id, 10))
}

// Write stores bytes for a reserved handle. It writes to a staging file and
// renames, so a partially written file is never visible under the handle's
// path.
func (s *Store) Write(id uint64, r io.Reader) error {
	staging := filepath.Join(s.dir, ".staging-"+uuid.New().String())
	f, err := os.Create(staging)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(staging)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(staging)
		return err
	}
	if err := os.Rename(staging, s.Path(id)); err != nil {
		os.Remove(staging)
		return err
	}
	return nil
}

func (s *Store) WriteBytes(id uint64, data []byte) error {
	staging := filepath.Join(s.dir, ".staging-"+uuid.New().String())
	if err := os.WriteFile(staging, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(staging, s.Path(id)); err != nil {
		os.Remove(staging)
		return err
	}
	return nil
}

func (s *Store) Read(id uint64) ([]byte, error) {
	return os.ReadFile(s.Path(id))
}

// Remove deletes the backing bytes for a handle. A missing file is not an
// error: the row-before-bytes deletion order means retries may find the bytes
// already gone.
func (s *Store) Remove(id uint64) error {
	err := os.Remove(s.Path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
