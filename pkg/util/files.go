// Package util provides file helpers shared by the input readers and the durable stores.
package util

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// OpenInput opens path for reading and transparently decompresses ".gz" files.
// The returned close func releases every layer and must always be called.
func OpenInput(path string) (io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !IsGzip(path) {
		return f, f.Close, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	return zr, func() error {
		zr.Close()
		return f.Close()
	}, nil
}

// IsGzip reports whether path names a gzip file.
func IsGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// BaseFormat returns the lower-cased extension of path after stripping ".gz".
// e.g. "data.csv.gz" -> ".csv"
func BaseFormat(path string) string {
	if IsGzip(path) {
		path = path[:len(path)-3]
	}
	return strings.ToLower(filepath.Ext(path))
}

// WriteFunc writes the full new content of a file.
type WriteFunc func(w io.Writer) error

// WriteAtomic replaces path with the bytes produced by write.
// The content goes to a temp file in the same directory, is fsynced, then renamed over path.
// On any failure the temp file is removed and path keeps its previous content.
func WriteAtomic(path string, perm os.FileMode, write WriteFunc) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = write(tmp); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
