// Package source reads the input dataset into ordered input records.
package source

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
	"github.com/lenardflx/ai-data-migration/pkg/util"
)

// Engines accepted by Options.Engine.
const (
	EngineCSV    = "csv"
	EngineDuckDB = "duckdb"
)

// Options configures how the input is read.
type Options struct {
	Path      string
	Delimiter rune

	// IDColumn and ActiveColumn are split off every row and never sent to the transform step.
	IDColumn     string
	ActiveColumn string

	// Engine selects the CSV reader: "csv" (default) or "duckdb".
	Engine string
}

// DefaultOptions returns the conventional input layout.
func DefaultOptions() Options {
	return Options{
		Path:         "data.csv",
		Delimiter:    ';',
		IDColumn:     "Product_ID",
		ActiveColumn: "is_active",
		Engine:       EngineCSV,
	}
}

// Reader loads an entire dataset.
type Reader interface {
	Read(ctx context.Context) ([]model.InputRecord, error)
	Name() string
}

// Open returns the reader for opts. ".xlsx" files always use the spreadsheet reader.
func Open(opts Options) (Reader, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ';'
	}

	switch {
	case util.BaseFormat(opts.Path) == ".xlsx":
		return NewXLSXReader(opts), nil
	case opts.Engine == EngineDuckDB:
		return NewDuckDBReader(opts), nil
	case opts.Engine == "" || opts.Engine == EngineCSV:
		return NewCSVReader(opts), nil
	default:
		return nil, errors.Newf(errors.CodeInvalidFormat, "unknown input engine %q", opts.Engine)
	}
}

// Load opens and reads the configured input.
func Load(ctx context.Context, opts Options) ([]model.InputRecord, error) {
	r, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return r.Read(ctx)
}

// layout maps header positions to record parts.
type layout struct {
	header    []string
	idIdx     int
	activeIdx int
}

func newLayout(header []string, opts Options) (*layout, error) {
	l := &layout{header: make([]string, len(header)), idIdx: -1, activeIdx: -1}
	for i, h := range header {
		h = normalize(strings.TrimPrefix(h, "\ufeff"))
		h = strings.TrimSpace(h)
		l.header[i] = h
		switch h {
		case opts.IDColumn:
			l.idIdx = i
		case opts.ActiveColumn:
			l.activeIdx = i
		}
	}

	if opts.IDColumn != "" && l.idIdx < 0 {
		return nil, errors.MissingColumn(opts.IDColumn, l.header)
	}
	if opts.ActiveColumn != "" && l.activeIdx < 0 {
		return nil, errors.MissingColumn(opts.ActiveColumn, l.header)
	}
	return l, nil
}

// record builds the record at position row. Short rows are padded with empty cells;
// cells beyond the header are an error.
func (l *layout) record(row int, cells []string) (model.InputRecord, error) {
	if len(cells) > len(l.header) {
		return model.InputRecord{}, errors.Newf(errors.CodeInvalidFormat,
			"row has %d cells, header has %d", len(cells), len(l.header)).WithContext("row", row)
	}

	rec := model.InputRecord{Row: row, Fields: make([]model.Field, 0, len(l.header))}
	for i, name := range l.header {
		var v string
		if i < len(cells) {
			v = normalize(cells[i])
		}
		switch i {
		case l.idIdx:
			rec.ID = v
		case l.activeIdx:
			rec.Active = v
		default:
			rec.Fields = append(rec.Fields, model.Field{Name: name, Value: v})
		}
	}
	return rec, nil
}

// normalize converts text to NFC so composed and decomposed umlauts render identically.
func normalize(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}
