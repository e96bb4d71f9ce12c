package source

import (
	"context"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// XLSXReader reads the first sheet of an Excel workbook. The first row is the header.
type XLSXReader struct {
	opts Options
}

// NewXLSXReader creates a workbook reader.
func NewXLSXReader(opts Options) *XLSXReader {
	return &XLSXReader{opts: opts}
}

// Name returns the reader name.
func (r *XLSXReader) Name() string {
	return "xlsx"
}

// Read implements Reader.
func (r *XLSXReader) Read(ctx context.Context) ([]model.InputRecord, error) {
	if _, err := os.Stat(r.opts.Path); os.IsNotExist(err) {
		return nil, errors.FileNotFound(r.opts.Path)
	}

	f, err := excelize.OpenFile(r.opts.Path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "open %s", r.opts.Path)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New(errors.CodeInvalidFormat, "workbook has no sheets").WithContext("path", r.opts.Path)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "read sheet %s", sheet)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.New(errors.CodeInvalidFormat, "sheet is empty").WithContext("sheet", sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "read header")
	}

	l, err := newLayout(header, r.opts)
	if err != nil {
		return nil, err
	}

	var records []model.InputRecord
	for row := 0; rows.Next(); row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells, err := rows.Columns()
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "read row %d", row)
		}
		rec, err := l.record(row, cells)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Error(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "iterate rows")
	}
	return records, nil
}
