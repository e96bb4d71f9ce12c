package store

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// JSONLStore keeps one JSON record per line. Appends never rewrite existing content.
type JSONLStore struct {
	path   string
	logger zerolog.Logger

	// write is swapped in tests to simulate a failing write.
	write func(f *os.File, p []byte) (int, error)
}

// NewJSONLStore creates a line-delimited store for path.
func NewJSONLStore(path string, logger zerolog.Logger) *JSONLStore {
	if path == "" {
		path = "new_data.jsonl"
	}
	return &JSONLStore{
		path:   path,
		logger: logger,
		write:  func(f *os.File, p []byte) (int, error) { return f.Write(p) },
	}
}

// Append implements Store. The batch is written as one buffer and fsynced; on failure the
// file is truncated back to its previous size.
func (s *JSONLStore) Append(_ context.Context, records []model.OutputRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, r := range records {
		line, err := marshalRecord(r)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, errors.CodeWriteFailed, "open %s", s.path)
	}
	defer f.Close()

	size, err := s.repairTail(f)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			if terr := f.Truncate(size); terr != nil {
				s.logger.Error().Err(terr).Str("path", s.path).Msg("truncate after failed append")
			}
		}
	}()

	if _, err = f.Seek(size, io.SeekStart); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "seek to end")
	}
	if _, err = s.write(f, buf.Bytes()); err != nil {
		return errors.Wrapf(err, errors.CodeWriteFailed, "append %s", s.path)
	}
	if err = f.Sync(); err != nil {
		return errors.Wrapf(err, errors.CodeWriteFailed, "sync %s", s.path)
	}
	return nil
}

// repairTail drops a trailing partial line left by a crash and returns the resulting size.
func (s *JSONLStore) repairTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeWriteFailed, "stat output")
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	data, err := io.ReadAll(io.NewSectionReader(f, 0, size))
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeWriteFailed, "read output")
	}
	if data[len(data)-1] == '\n' {
		return size, nil
	}

	keep := int64(bytes.LastIndexByte(data, '\n') + 1)
	s.logger.Warn().Str("path", s.path).Int64("dropped_bytes", size-keep).Msg("dropping partial trailing line")
	if err := f.Truncate(keep); err != nil {
		return 0, errors.Wrap(err, errors.CodeWriteFailed, "truncate partial line")
	}
	return keep, nil
}

func (s *JSONLStore) scan(fn func(line []byte) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.CodeWriteFailed, "open %s", s.path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			// A line without its newline is an unfinished append.
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, errors.CodeWriteFailed, "read %s", s.path)
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

// Count implements Store.
func (s *JSONLStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.scan(func([]byte) error {
		n++
		return nil
	})
	return n, err
}

// Records implements Store.
func (s *JSONLStore) Records(_ context.Context) ([]model.OutputRecord, error) {
	var out []model.OutputRecord
	err := s.scan(func(line []byte) error {
		var r model.OutputRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return errors.Wrapf(err, errors.CodeInvalidFormat, "decode line %d", len(out)+1)
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// Name implements Store.
func (s *JSONLStore) Name() string {
	return "jsonl:" + s.path
}
