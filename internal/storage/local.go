package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudvault/backend/pkg/logger"
)

// ErrInvalidKey is returned when a storage key would escape the uploads
// root after cleaning.
var ErrInvalidKey = errors.New("storage: invalid key")

// LocalStorage keeps uploaded bytes on the local filesystem under a
// single uploads root. Uploads are staged into a temp directory first
// and only renamed into place once the metadata row exists, so a failed
// request never leaves an orphaned permanent file behind.
type LocalStorage struct {
	root    string
	tempDir string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	tempDir := filepath.Join(absRoot, ".tmp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating uploads directory: %w", err)
	}

	return &LocalStorage{root: absRoot, tempDir: tempDir}, nil
}

// Path resolves a storage key to an absolute path, rejecting keys that
// would climb out of the uploads root.
func (s *LocalStorage) Path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, cleaned), nil
}

// Stage copies the reader into a temp file and returns its path together
// with the number of bytes written.
func (s *LocalStorage) Stage(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(s.tempDir, "upload-*")
	if err != nil {
		return "", 0, err
	}

	written, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, err
	}

	return tmp.Name(), written, nil
}

// Commit moves a staged file to its final key.
func (s *LocalStorage) Commit(tempPath, key string) error {
	dest, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(tempPath, dest); err != nil {
		logger.Error("storage_commit_failed", err, map[string]interface{}{
			"key": key,
		})
		return err
	}
	return nil
}

// Discard removes a staged file. Missing files are not an error.
func (s *LocalStorage) Discard(tempPath string) {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		logger.Error("storage_discard_failed", err, map[string]interface{}{
			"temp_path": tempPath,
		})
	}
}

// Open returns a read handle plus the size of the stored object.
func (s *LocalStorage) Open(key string) (*os.File, int64, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}

	return f, info.Size(), nil
}

// Exists reports whether bytes are present for the key.
func (s *LocalStorage) Exists(key string) bool {
	path, err := s.Path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the stored bytes. Missing files are not an error so a
// purge run can be retried safely.
func (s *LocalStorage) Delete(key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Error("storage_delete_failed", err, map[string]interface{}{
			"key": key,
		})
		return err
	}
	return nil
}
