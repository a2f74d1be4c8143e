// Package staging keeps uploaded payloads on local disk between validation
// and the object-storage upload.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Area is a staging directory on an afero filesystem.
type Area struct {
	fs  afero.Fs
	dir string
}

// New creates dir on fs if needed. Pass afero.NewOsFs() in production.
func New(fs afero.Fs, dir string) (*Area, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Area{fs: fs, dir: dir}, nil
}

// Stage copies r into a uniquely named file and returns its path and size.
func (a *Area) Stage(name string, r io.Reader) (string, int64, error) {
	path := filepath.Join(a.dir, uuid.NewString()+"-"+safeName(name))

	f, err := a.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("create staged file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = a.fs.Remove(path)
		return "", 0, fmt.Errorf("write staged file: %w", err)
	}
	return path, n, nil
}

// Open opens a staged file for reading.
func (a *Area) Open(path string) (io.ReadCloser, error) {
	if !a.owns(path) {
		return nil, fmt.Errorf("path %q outside staging dir", path)
	}
	f, err := a.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return f, nil
}

// Remove deletes a staged file. Missing files are not an error.
func (a *Area) Remove(path string) error {
	if !a.owns(path) {
		return fmt.Errorf("path %q outside staging dir", path)
	}
	if err := a.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// Sweep removes staged files older than maxAge, left behind by crashed
// uploads. It returns how many were removed.
func (a *Area) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := afero.ReadDir(a.fs, a.dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || now.Sub(e.ModTime()) < maxAge {
			continue
		}
		if err := a.fs.Remove(filepath.Join(a.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (a *Area) owns(path string) bool {
	rel, err := filepath.Rel(a.dir, filepath.Clean(path))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" || s == "." || s == ".." {
		return "upload"
	}
	if len(s) > 100 {
		s = s[len(s)-100:]
	}
	return s
}
