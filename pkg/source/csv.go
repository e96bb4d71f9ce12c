package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
	"github.com/lenardflx/ai-data-migration/pkg/util"
)

// CSVReader reads delimited text with a header row. ".gz" input is decompressed.
type CSVReader struct {
	opts Options
}

// NewCSVReader creates a delimited-text reader.
func NewCSVReader(opts Options) *CSVReader {
	return &CSVReader{opts: opts}
}

// Name returns the reader name.
func (r *CSVReader) Name() string {
	return "csv"
}

// Read implements Reader.
func (r *CSVReader) Read(ctx context.Context) ([]model.InputRecord, error) {
	in, closeFn, err := util.OpenInput(r.opts.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(r.opts.Path)
		}
		return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "open %s", r.opts.Path)
	}
	defer closeFn()

	return r.decode(ctx, in)
}

func (r *CSVReader) decode(ctx context.Context, in io.Reader) ([]model.InputRecord, error) {
	cr := csv.NewReader(in)
	cr.Comma = r.opts.Delimiter
	cr.FieldsPerRecord = -1
	// A quote inside an unquoted cell, e.g. 24" Monitor, is kept as text.
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.CodeInvalidFormat, "input has no header row").WithContext("path", r.opts.Path)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "read header")
	}

	l, err := newLayout(header, r.opts)
	if err != nil {
		return nil, err
	}

	var records []model.InputRecord
	for row := 0; ; row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cells, err := cr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "read row %d", row)
		}

		rec, err := l.record(row, cells)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}
