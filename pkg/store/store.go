// Package store persists committed output records.
//
// Every backend appends a whole batch or nothing: a failed Append leaves the previously
// persisted collection unchanged and readable.
package store

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// Store is an append-only collection of output records.
type Store interface {
	// Append adds records after the existing content. An empty slice is a no-op.
	Append(ctx context.Context, records []model.OutputRecord) error

	// Count returns the number of persisted records.
	Count(ctx context.Context) (int, error)

	// Records returns every persisted record in order.
	Records(ctx context.Context) ([]model.OutputRecord, error)

	// Name returns the backend name for logging.
	Name() string
}

const indent = "    "

// decodeArray splits a JSON array document into its raw elements.
// An empty or whitespace-only document is an empty array.
func decodeArray(data []byte) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "output is not a JSON array")
	}
	return items, nil
}

// marshalRecord encodes one record without HTML escaping; "<", ">" and "&" are written literally.
func marshalRecord(r model.OutputRecord) (json.RawMessage, error) {
	data, err := json.MarshalWithOption(r, json.DisableHTMLEscape())
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "encode output record")
	}
	return data, nil
}

func marshalRecords(records []model.OutputRecord) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		data, err := marshalRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// encodeArray renders items as a pretty-printed array with four-space indentation.
func encodeArray(items []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if len(items) == 0 {
		buf.WriteString("[]\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("[\n")
	for i, item := range items {
		buf.WriteString(indent)
		if err := json.Indent(&buf, item, indent, indent); err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "element %d is not valid JSON", i)
		}
		if i < len(items)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}

func decodeRecords(items []json.RawMessage) ([]model.OutputRecord, error) {
	out := make([]model.OutputRecord, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &out[i]); err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "decode element %d", i)
		}
	}
	return out, nil
}

// Format values accepted by Config.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatS3    = "s3"
)

// Config selects and configures a backend.
type Config struct {
	// Format is "json", "jsonl" or "s3". Empty infers json or jsonl from the path extension.
	Format string

	// Path is the output file for the local backends.
	Path string

	S3 S3Config
}

// Open creates the configured store.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	format := cfg.Format
	if format == "" {
		format = FormatJSON
		if strings.EqualFold(filepath.Ext(cfg.Path), ".jsonl") {
			format = FormatJSONL
		}
	}

	switch format {
	case FormatJSON:
		return NewJSONFileStore(cfg.Path), nil
	case FormatJSONL:
		return NewJSONLStore(cfg.Path, logger), nil
	case FormatS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
