package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// File stores one file per item inside a directory. Names are path-escaped
// so any cell name maps to a single file.
type File struct {
	dir string
	ext string
}

type FileOption func(*File)

// WithExtension sets the file suffix, ".json" by default.
func WithExtension(ext string) FileOption {
	return func(f *File) { f.ext = ext }
}

func NewFile(dir string, opts ...FileOption) (*File, error) {
	f := &File{dir: dir, ext: ".json"}
	for _, opt := range opts {
		opt(f)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage dir %s: %w", dir, err)
	}
	return f, nil
}

func (f *File) path(name string) string {
	return filepath.Join(f.dir, url.PathEscape(name)+f.ext)
}

func (f *File) GetItem(name string) (string, bool, error) {
	b, err := os.ReadFile(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read item %q: %w", name, err)
	}
	return string(b), true, nil
}

// SetItem writes through a temp file and renames it into place.
func (f *File) SetItem(name, value string) error {
	if name == "" {
		return ErrEmptyName
	}
	tmp, err := os.CreateTemp(f.dir, ".item-*")
	if err != nil {
		return fmt.Errorf("write item %q: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write item %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write item %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), f.path(name)); err != nil {
		return fmt.Errorf("write item %q: %w", name, err)
	}
	return nil
}
