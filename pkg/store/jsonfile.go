package store

import (
	"context"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
	"github.com/lenardflx/ai-data-migration/pkg/util"
)

// DefaultPath is the output file used when none is configured.
const DefaultPath = "new_data.json"

// JSONFileStore keeps every record in one JSON array document.
// Append reads the whole array, concatenates, and atomically replaces the file.
type JSONFileStore struct {
	path string

	// writeAtomic is swapped in tests to simulate a failing write.
	writeAtomic func(path string, perm os.FileMode, write util.WriteFunc) error
}

// NewJSONFileStore creates a store for path. An empty path means DefaultPath.
func NewJSONFileStore(path string) *JSONFileStore {
	if path == "" {
		path = DefaultPath
	}
	return &JSONFileStore{path: path, writeAtomic: util.WriteAtomic}
}

func (s *JSONFileStore) load() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.CodeWriteFailed, "read %s", s.path)
	}
	return decodeArray(data)
}

// Append implements Store. Existing elements are kept byte for byte apart from indentation.
func (s *JSONFileStore) Append(_ context.Context, records []model.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}

	existing, err := s.load()
	if err != nil {
		return err
	}
	added, err := marshalRecords(records)
	if err != nil {
		return err
	}
	doc, err := encodeArray(append(existing, added...))
	if err != nil {
		return err
	}

	err = s.writeAtomic(s.path, 0o644, func(w io.Writer) error {
		_, err := w.Write(doc)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, errors.CodeWriteFailed, "write %s", s.path)
	}
	return nil
}

// Count implements Store.
func (s *JSONFileStore) Count(_ context.Context) (int, error) {
	items, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Records implements Store.
func (s *JSONFileStore) Records(_ context.Context) ([]model.OutputRecord, error) {
	items, err := s.load()
	if err != nil {
		return nil, err
	}
	return decodeRecords(items)
}

// Name implements Store.
func (s *JSONFileStore) Name() string {
	return "json:" + s.path
}
