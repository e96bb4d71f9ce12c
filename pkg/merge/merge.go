// Package merge combines input records with their transformed counterparts into output records.
package merge

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/lenardflx/ai-data-migration/internal/model"
	"github.com/lenardflx/ai-data-migration/pkg/errors"
)

// IDGenerator returns a new globally unique identifier on every call.
type IDGenerator func() string

// Identifier schemes accepted by Generator.
const (
	SchemeUUID = "uuid"
	SchemeULID = "ulid"
)

// NewUUID returns a random (version 4) UUID.
func NewUUID() string {
	return uuid.NewString()
}

// NewULIDGenerator returns a generator of time-ordered ULIDs. IDs from one generator are
// strictly increasing, even within the same millisecond.
func NewULIDGenerator() IDGenerator {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	}
}

// Generator returns the generator for scheme. An empty scheme means uuid.
func Generator(scheme string) (IDGenerator, error) {
	switch strings.ToLower(scheme) {
	case "", SchemeUUID:
		return NewUUID, nil
	case SchemeULID:
		return NewULIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown id scheme %q", scheme)
	}
}

// Merger builds output records. It is safe for sequential use only when its generator is.
type Merger struct {
	newID IDGenerator
}

// New creates a merger. A nil generator means NewUUID.
func New(gen IDGenerator) *Merger {
	if gen == nil {
		gen = NewUUID
	}
	return &Merger{newID: gen}
}

// Merge combines one input record with its transformed record.
// The output gets a fresh identifier and the input's active flag; everything else comes from tr.
// Missing list fields become empty lists.
// Neither argument is modified and the output shares no memory with them.
func (m *Merger) Merge(in model.InputRecord, tr model.TransformedRecord) model.OutputRecord {
	product := tr.Product.Clone()
	product.ID = m.newID()
	product.IsActive = CoerceBool(in.Active)
	if product.Location == nil {
		product.Location = []int{}
	}

	log := tr.Log.Clone()
	log.LostData = nonNil(log.LostData)
	log.ModifiedData = nonNil(log.ModifiedData)
	log.OtherDataModifications = nonNil(log.OtherDataModifications)

	return model.OutputRecord{
		Product: product,
		Log:     log,
	}
}

// nonNil keeps list fields serialised as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// MergeBatch merges a batch positionally. The two slices must have the same length.
func (m *Merger) MergeBatch(batch model.Batch, transformed []model.TransformedRecord) ([]model.OutputRecord, error) {
	if len(transformed) != batch.Len() {
		return nil, errors.CardinalityMismatch(batch.Start, batch.End(), len(transformed))
	}

	out := make([]model.OutputRecord, len(transformed))
	for i, in := range batch.Records {
		out[i] = m.Merge(in, transformed[i])
	}
	return out, nil
}

// CoerceBool interprets a raw active-flag cell. Recognised false spellings and the empty string
// are false; every other non-empty value is true.
func CoerceBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "false", "0", "no", "n", "f", "off":
		return false
	default:
		return true
	}
}
