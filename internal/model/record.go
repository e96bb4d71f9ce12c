// Package model defines the records that flow through a migration run.
package model

// Field is one named cell of a source row.
type Field struct {
	Name  string
	Value string
}

// InputRecord is one row of the source dataset.
// Records are immutable once read; Row is the 0-based position in the source.
type InputRecord struct {
	// Row is the position of the record in the original ordered sequence.
	Row int

	// ID is the value of the identifier column. It is never sent to the transform step.
	ID string

	// Active is the raw value of the active-flag column.
	Active string

	// Fields holds every other column in header order.
	Fields []Field
}

// Get returns the value of the named field and whether it was present.
func (r InputRecord) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Batch is a contiguous slice of input records starting at row Start.
type Batch struct {
	Start   int
	Records []InputRecord
}

// End returns the first row index after the batch.
func (b Batch) End() int {
	return b.Start + len(b.Records)
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Records)
}

// TransformLog describes what a single transformation changed, lost, or flags for review.
type TransformLog struct {
	NeedsReview            bool     `json:"needs_review"`
	LostData               []string `json:"lost_data"`
	ModifiedData           []string `json:"modified_data"`
	OtherDataModifications []string `json:"other_data_modifications"`
	Comment                string   `json:"comment"`
}

// Clone returns a deep copy of the log.
func (l TransformLog) Clone() TransformLog {
	return TransformLog{
		NeedsReview:            l.NeedsReview,
		LostData:               cloneStrings(l.LostData),
		ModifiedData:           cloneStrings(l.ModifiedData),
		OtherDataModifications: cloneStrings(l.OtherDataModifications),
		Comment:                l.Comment,
	}
}

// Product holds the domain fields produced by the transform step.
type Product struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Location    []int   `json:"location"`
	Category    *string `json:"category"`
	ID          string  `json:"id"`
	IsActive    bool    `json:"is_active"`
}

// Clone returns a deep copy of the product.
func (p Product) Clone() Product {
	out := Product{
		Name:        cloneString(p.Name),
		Description: cloneString(p.Description),
		Category:    cloneString(p.Category),
		ID:          p.ID,
		IsActive:    p.IsActive,
	}
	if p.Location != nil {
		out.Location = append(make([]int, 0, len(p.Location)), p.Location...)
	}
	return out
}

// TransformedRecord is the structured output of the transform step for one input record.
type TransformedRecord struct {
	Product Product      `json:"product"`
	Log     TransformLog `json:"log"`
}

// OutputRecord is the committed merge of an input record and its transformed record.
type OutputRecord struct {
	Product Product      `json:"product"`
	Log     TransformLog `json:"log"`
}

// ProductList is the response envelope of the transform step.
type ProductList struct {
	Items []TransformedRecord `json:"items"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
