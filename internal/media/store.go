// Package media хранит бинарные блобы изображений на файловой системе
// и собирает мусор среди недостижимых файлов.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/sanitize"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// ErrInvalidFileID means the id fails the charset/extension rules
var ErrInvalidFileID = errors.New("invalid media file id")

// Store keeps media blobs as flat files under a single root directory.
// Ids are opaque: random base plus an extension derived from the MIME type.
type Store struct {
	root string
}

// NewStore creates the media root if needed
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute media root path
func (s *Store) Root() string { return s.root }

// NewFileID mints a random id with the extension for the given MIME type
func NewFileID(mimeType string) (string, error) {
	ext, ok := models.ExtensionForMime(mimeType)
	if !ok {
		return "", fmt.Errorf("unsupported media type %q", mimeType)
	}
	return uuid.New().String() + ext, nil
}

// Path resolves the id to an on-disk path. Id обязан пройти проверку
// алфавита, а результат обязан остаться внутри корня: защита от
// прохода по каталогам двумя независимыми заслонами.
func (s *Store) Path(fileID string) (string, error) {
	if !sanitize.ValidFileID(fileID) {
		return "", ErrInvalidFileID
	}
	p := filepath.Join(s.root, fileID)
	if !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", ErrInvalidFileID
	}
	return p, nil
}

// Save writes blob bytes under the id, atomically
func (s *Store) Save(fileID string, data []byte) error {
	p, err := s.Path(fileID)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to rename media file: %w", err)
	}
	return nil
}

// Read returns blob bytes by id
func (s *Store) Read(fileID string) ([]byte, error) {
	p, err := s.Path(fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	return data, nil
}

// Exists reports whether a blob with the id is stored
func (s *Store) Exists(fileID string) bool {
	p, err := s.Path(fileID)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Delete removes the blob; unknown id is not an error
func (s *Store) Delete(fileID string) error {
	p, err := s.Path(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete media file: %w", err)
	}
	return nil
}

// List returns ids of all stored blobs (непроходящие проверку имена
// игнорируются, чужие файлы в каталоге нас не касаются)
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list media root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !sanitize.ValidFileID(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}
