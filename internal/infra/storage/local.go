// Package storage keeps uploaded media on local disk and serves it under a
// public base URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for object paths that are empty or escape the
// storage root.
var ErrInvalidPath = errors.New("invalid object path")

type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, baseURL string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Local{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Root() string { return l.root }

// clean normalises an object path to slash form without a leading slash.
func clean(p string) (string, error) {
	if strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	c := strings.TrimPrefix(path.Clean("/"+p), "/")
	if c == "" || c != strings.TrimPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	return c, nil
}

func (l *Local) resolve(p string) (string, string, error) {
	c, err := clean(p)
	if err != nil {
		return "", "", err
	}
	full := filepath.Join(l.root, filepath.FromSlash(c))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", ErrInvalidPath
	}
	return c, full, nil
}

// Upload writes r to p and returns its public URL. The file appears
// atomically.
func (l *Local) Upload(ctx context.Context, p string, r io.Reader) (string, error) {
	c, full, err := l.resolve(p)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("store object: %w", err)
	}
	return l.PublicURL(c), nil
}

// PublicURL maps an object path to the URL clients load it from.
func (l *Local) PublicURL(p string) string {
	return l.baseURL + "/" + strings.TrimPrefix(p, "/")
}

// Remove deletes the given objects. Missing objects are not an error.
func (l *Local) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, full, err := l.resolve(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
