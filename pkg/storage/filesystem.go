package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidPath is returned for references that would escape the storage root.
	ErrInvalidPath = errors.New("invalid storage path")
	// ErrTooLarge is returned by Save when the body exceeds the limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// LocalStorage keeps uploaded files on disk under a root directory. References are
// slash-separated paths relative to that root.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates the root directory when missing.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = "./uploads"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

// Save copies r into ref and returns the stored reference. At most limit bytes are
// accepted; a larger body removes the partial file and returns ErrTooLarge.
func (s *LocalStorage) Save(ref string, r io.Reader, limit int64) (string, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("write file: %w", copyErr)
	case limit > 0 && written > limit:
		_ = os.Remove(path)
		return "", ErrTooLarge
	case closeErr != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("close file: %w", closeErr)
	}
	return filepath.ToSlash(ref), nil
}

// Open returns a read handle for ref.
func (s *LocalStorage) Open(ref string) (*os.File, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Delete removes ref. A missing file is not an error.
func (s *LocalStorage) Delete(ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Root returns the absolute storage directory.
func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) resolve(ref string) (string, error) {
	if ref == "" || filepath.IsAbs(ref) || strings.Contains(ref, "\\") {
		return "", ErrInvalidPath
	}
	path := filepath.Join(s.root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidPath
	}
	return path, nil
}
