package transform

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/lenardflx/ai-data-migration/internal/model"
)

// EchoColumns names the input columns EchoClient copies into the product.
type EchoColumns struct {
	Name        string
	Description string
	Category    string
	Location    string
}

// DefaultEchoColumns returns the conventional column names.
func DefaultEchoColumns() EchoColumns {
	return EchoColumns{
		Name:        "name",
		Description: "description",
		Category:    "category",
		Location:    "location",
	}
}

// EchoClient copies input columns into products without calling any service.
// It is used for dry runs and returns exactly one record per input. Required columns are
// checked the same way the model client checks them.
type EchoClient struct {
	cols     EchoColumns
	required []string
}

// NewEchoClient creates a dry-run client.
func NewEchoClient(cols EchoColumns, required []string) *EchoClient {
	return &EchoClient{cols: cols, required: required}
}

// Transform implements Client.
func (c *EchoClient) Transform(ctx context.Context, records []model.InputRecord) ([]model.TransformedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckRequired(records, c.required); err != nil {
		return nil, err
	}

	out := make([]model.TransformedRecord, len(records))
	for i, rec := range records {
		var lost []string
		for _, f := range rec.Fields {
			switch f.Name {
			case c.cols.Name, c.cols.Description, c.cols.Category, c.cols.Location:
			default:
				if f.Value != "" {
					lost = append(lost, f.Name)
				}
			}
		}

		out[i] = model.TransformedRecord{
			Product: model.Product{
				Name:        c.optional(rec, c.cols.Name),
				Description: c.optional(rec, c.cols.Description),
				Category:    c.optional(rec, c.cols.Category),
				Location:    parseLocation(rec, c.cols.Location),
			},
			Log: model.TransformLog{
				NeedsReview:            len(lost) > 0,
				LostData:               nonNil(lost),
				ModifiedData:           []string{},
				OtherDataModifications: []string{},
				Comment:                "dry run",
			},
		}
	}
	return out, nil
}

func (c *EchoClient) optional(rec model.InputRecord, col string) *string {
	v, ok := rec.Get(col)
	if !ok || v == "" {
		return nil
	}
	return &v
}

// parseLocation extracts every integer from the location cell, e.g. "12, 4" -> [12 4].
func parseLocation(rec model.InputRecord, col string) []int {
	out := []int{}
	v, ok := rec.Get(col)
	if !ok {
		return out
	}
	for _, tok := range strings.FieldsFunc(v, func(r rune) bool { return !unicode.IsDigit(r) && r != '-' }) {
		if n, err := strconv.Atoi(tok); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
