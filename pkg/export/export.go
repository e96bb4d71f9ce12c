package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/util"
)

// Export formats.
const (
	FormatParquet = "parquet"
	FormatXLSX    = "xlsx"
	FormatJSONL   = "jsonl"
)

// FormatFromPath infers the export format from a file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("cannot infer export format from %q", path)
	}
}

// ToFile writes records to path atomically in the given format.
func ToFile(path, format string, records []model.OutputRecord, opts ParquetOptions) error {
	var write util.WriteFunc
	switch format {
	case FormatParquet:
		write = func(w io.Writer) error { return WriteParquet(w, records, opts) }
	case FormatXLSX:
		write = func(w io.Writer) error { return WriteXLSX(w, records) }
	case FormatJSONL:
		write = func(w io.Writer) error { return WriteJSONL(w, records) }
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	return util.WriteAtomic(path, 0o644, write)
}

// WriteJSONL writes one record per line.
func WriteJSONL(w io.Writer, records []model.OutputRecord) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
