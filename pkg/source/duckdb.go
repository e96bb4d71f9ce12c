package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// DuckDBReader reads delimited text through DuckDB's read_csv_auto. Every column is read as
// text, so values reach the transform step exactly as written.
type DuckDBReader struct {
	opts Options
}

// NewDuckDBReader creates a DuckDB-backed reader.
func NewDuckDBReader(opts Options) *DuckDBReader {
	return &DuckDBReader{opts: opts}
}

// Name returns the reader name.
func (r *DuckDBReader) Name() string {
	return "duckdb"
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func (r *DuckDBReader) query() string {
	delim := string(r.opts.Delimiter)
	if r.opts.Delimiter == '\t' {
		delim = `\t`
	}
	return fmt.Sprintf(
		`SELECT * FROM read_csv_auto('%s', delim='%s', header=true, all_varchar=true)`,
		escapeLiteral(r.opts.Path), escapeLiteral(delim),
	)
}

// Read implements Reader.
func (r *DuckDBReader) Read(ctx context.Context) ([]model.InputRecord, error) {
	if _, err := os.Stat(r.opts.Path); os.IsNotExist(err) {
		return nil, errors.FileNotFound(r.opts.Path)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	defer db.Close()

	// Row order must match the file.
	if _, err := db.ExecContext(ctx, "SET preserve_insertion_order=true"); err != nil {
		return nil, fmt.Errorf("configure DuckDB: %w", err)
	}

	rows, err := db.QueryContext(ctx, r.query())
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "read %s", r.opts.Path)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "read header")
	}
	l, err := newLayout(header, r.opts)
	if err != nil {
		return nil, err
	}

	values := make([]sql.NullString, len(header))
	dest := make([]interface{}, len(header))
	for i := range values {
		dest[i] = &values[i]
	}

	var records []model.InputRecord
	for row := 0; rows.Next(); row++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidFormat, "scan row %d", row)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			if v.Valid {
				cells[i] = v.String
			}
		}
		rec, err := l.record(row, cells)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "iterate rows")
	}
	return records, nil
}
