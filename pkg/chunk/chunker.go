// Package chunk splits an ordered record set into fixed-size contiguous batches.
//
// A Chunker is lazy and single-use: batches are sliced from the source on demand,
// starting at an arbitrary row offset, without materialising the rows before it.
package chunk

import (
	"errors"
	"fmt"

	"github.com/lenardflx/ai-data-migration/internal/model"
)

// DefaultSize is the number of records per batch used when none is configured.
const DefaultSize = 15

// ErrInvalidChunkSize is returned for chunk sizes below one.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunker yields batches of at most size records from records[offset:].
type Chunker struct {
	records []model.InputRecord
	size    int
	next    int
}

// New creates a chunker over records starting at offset.
// Offsets outside [0, len(records)] are clamped.
func New(records []model.InputRecord, size, offset int) (*Chunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(records) {
		offset = len(records)
	}
	return &Chunker{records: records, size: size, next: offset}, nil
}

// Next returns the next batch, or false once the records are exhausted.
func (c *Chunker) Next() (model.Batch, bool) {
	if c.next >= len(c.records) {
		return model.Batch{}, false
	}

	start := c.next
	end := start + c.size
	if end > len(c.records) {
		end = len(c.records)
	}
	c.next = end

	// Cap the slice so appends by a consumer can never clobber the next batch.
	return model.Batch{Start: start, Records: c.records[start:end:end]}, true
}

// Offset returns the row index the next batch will start at.
func (c *Chunker) Offset() int {
	return c.next
}

// Remaining returns the number of rows not yet yielded.
func (c *Chunker) Remaining() int {
	return len(c.records) - c.next
}

// TotalBatches returns how many batches are left to yield.
func (c *Chunker) TotalBatches() int {
	remaining := c.Remaining()
	batches := remaining / c.size
	if remaining%c.size > 0 {
		batches++
	}
	return batches
}

// Bounds returns the [start, end) row ranges of the batches left to yield.
func (c *Chunker) Bounds() [][2]int {
	bounds := make([][2]int, 0, c.TotalBatches())
	for start := c.next; start < len(c.records); start += c.size {
		end := start + c.size
		if end > len(c.records) {
			end = len(c.records)
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
