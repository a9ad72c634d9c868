package docsync

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage resolves the relative file_path of entities under a root
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a storage rooted at root
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

// Path returns the absolute path of rel, which cannot escape the root
func (l *LocalStorage) Path(rel string) string {
	return filepath.Join(l.root, filepath.Clean(string(filepath.Separator)+rel))
}

// Exists reports whether rel is a regular file
func (l *LocalStorage) Exists(rel string) bool {
	info, err := os.Stat(l.Path(rel))
	return err == nil && info.Mode().IsRegular()
}

// Save writes r to rel, creating parent directories
func (l *LocalStorage) Save(rel string, r io.Reader) error {
	dst := l.Path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	file, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return file.Close()
}

// Remove deletes rel, a missing file is not an error
func (l *LocalStorage) Remove(rel string) error {
	if err := os.Remove(l.Path(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
