// Package transform defines the transform step and its clients.
//
// A client receives a batch of input records with the identifier and active-flag columns
// stripped and returns one transformed record per input, in order. Callers must still check
// the returned length; clients do not pad or trim responses.
package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// Client transforms a batch of input records.
type Client interface {
	Transform(ctx context.Context, records []model.InputRecord) ([]model.TransformedRecord, error)
}

// Func adapts a function to Client.
type Func func(ctx context.Context, records []model.InputRecord) ([]model.TransformedRecord, error)

// Transform implements Client.
func (f Func) Transform(ctx context.Context, records []model.InputRecord) ([]model.TransformedRecord, error) {
	return f(ctx, records)
}

// DefaultSystemPrompt is the instruction sent ahead of every batch.
const DefaultSystemPrompt = "Transform the following data into a structured product format..."

// RenderOptions controls how a batch is rendered for the request.
type RenderOptions struct {
	// Exclude lists additional columns that are never sent.
	Exclude []string

	// Required lists columns every row must carry with a non-empty value.
	Required []string
}

// Render formats records as one line per row of comma-joined "column: value" pairs.
// Empty values and excluded columns are omitted. The identifier and active flag are never
// part of InputRecord.Fields, so they cannot leak into the output.
func Render(records []model.InputRecord, opts RenderOptions) (string, error) {
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, col := range opts.Exclude {
		exclude[col] = struct{}{}
	}

	if err := CheckRequired(records, opts.Required); err != nil {
		return "", err
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		pairs := make([]string, 0, len(rec.Fields))
		for _, f := range rec.Fields {
			if _, skip := exclude[f.Name]; skip || f.Value == "" {
				continue
			}
			pairs = append(pairs, f.Name+": "+f.Value)
		}
		lines = append(lines, strings.Join(pairs, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

// CheckRequired fails with a malformed-row error for the first record missing a value in
// one of the required columns.
func CheckRequired(records []model.InputRecord, required []string) error {
	for _, rec := range records {
		for _, col := range required {
			if v, ok := rec.Get(col); !ok || strings.TrimSpace(v) == "" {
				return errors.MalformedRow(rec.Row, "required column is missing or empty").
					WithContext("column", col)
			}
		}
	}
	return nil
}

// UserPrompt is the user message for a rendered batch of n rows.
func UserPrompt(n int, data string) string {
	return fmt.Sprintf("Transform the following %d rows:\n%s", n, data)
}
