package util

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseFormat(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"data.csv", ".csv"},
		{"data.CSV.gz", ".csv"},
		{"dir/sheet.xlsx", ".xlsx"},
		{"noext", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseFormat(tt.path))
		})
	}
}

func TestOpenInput_Gzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("a;b\n1;2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	r, closeFn, err := OpenInput(path)
	require.NoError(t, err)
	defer closeFn()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "a;b\n1;2\n", string(data))
}

func TestOpenInput_Missing(t *testing.T) {
	_, _, err := OpenInput(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, err := w.Write([]byte("first"))
		return err
	}))

	err := WriteAtomic(path, 0o644, func(w io.Writer) error {
		w.Write([]byte("half"))
		return errors.New("disk full")
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}
