// Package export converts committed output records into analysis formats.
package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/lenardflx/ai-data-migration/internal/model"
)

// Compression codecs accepted by ParquetOptions.
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
)

// ParquetOptions tunes the Parquet writer.
type ParquetOptions struct {
	Compression  string
	RowGroupSize int
}

// DefaultParquetOptions returns snappy compression with 64K-row groups.
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{Compression: CompressionSnappy, RowGroupSize: 64 * 1024}
}

// Column order of the records schema.
const (
	colID = iota
	colName
	colDescription
	colCategory
	colLocation
	colIsActive
	colNeedsReview
	colLostData
	colModifiedData
	colOtherModifications
	colComment
)

// recordSchema flattens product and log into one row per record.
func recordSchema() *arrow.Schema {
	strList := arrow.ListOf(arrow.BinaryTypes.String)
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "description", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "category", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "location", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: true},
		{Name: "is_active", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "needs_review", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "lost_data", Type: strList, Nullable: true},
		{Name: "modified_data", Type: strList, Nullable: true},
		{Name: "other_data_modifications", Type: strList, Nullable: true},
		{Name: "comment", Type: arrow.BinaryTypes.String},
	}, nil)
}

func codec(name string) (compress.Compression, error) {
	switch name {
	case "", CompressionSnappy:
		return compress.Codecs.Snappy, nil
	case CompressionNone:
		return compress.Codecs.Uncompressed, nil
	case CompressionGzip:
		return compress.Codecs.Gzip, nil
	case CompressionZstd:
		return compress.Codecs.Zstd, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported compression %q", name)
	}
}

// WriteParquet writes records to w as a single Parquet file. w is left open.
func WriteParquet(w io.Writer, records []model.OutputRecord, opts ParquetOptions) error {
	c, err := codec(opts.Compression)
	if err != nil {
		return err
	}
	groupSize := opts.RowGroupSize
	if groupSize <= 0 {
		groupSize = DefaultParquetOptions().RowGroupSize
	}

	schema := recordSchema()
	props := parquet.NewWriterProperties(
		parquet.WithCompression(c),
		parquet.WithDictionaryDefault(true),
	)
	// Closing a FileWriter closes its sink when it is an io.Closer; w belongs to the caller.
	fw, err := pqarrow.NewFileWriter(schema, struct{ io.Writer }{w}, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}

	builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer builder.Release()

	for start := 0; start < len(records); start += groupSize {
		end := start + groupSize
		if end > len(records) {
			end = len(records)
		}
		for _, rec := range records[start:end] {
			appendRecord(builder, rec)
		}

		batch := builder.NewRecord()
		err := fw.Write(batch)
		batch.Release()
		if err != nil {
			fw.Close()
			return fmt.Errorf("write record batch: %w", err)
		}
	}

	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func appendRecord(b *array.RecordBuilder, rec model.OutputRecord) {
	p, l := rec.Product, rec.Log

	b.Field(colID).(*array.StringBuilder).Append(p.ID)
	appendOptional(b.Field(colName).(*array.StringBuilder), p.Name)
	appendOptional(b.Field(colDescription).(*array.StringBuilder), p.Description)
	appendOptional(b.Field(colCategory).(*array.StringBuilder), p.Category)

	loc := b.Field(colLocation).(*array.ListBuilder)
	if p.Location == nil {
		loc.AppendNull()
	} else {
		loc.Append(true)
		values := loc.ValueBuilder().(*array.Int64Builder)
		for _, v := range p.Location {
			values.Append(int64(v))
		}
	}

	b.Field(colIsActive).(*array.BooleanBuilder).Append(p.IsActive)
	b.Field(colNeedsReview).(*array.BooleanBuilder).Append(l.NeedsReview)
	appendStrings(b.Field(colLostData).(*array.ListBuilder), l.LostData)
	appendStrings(b.Field(colModifiedData).(*array.ListBuilder), l.ModifiedData)
	appendStrings(b.Field(colOtherModifications).(*array.ListBuilder), l.OtherDataModifications)
	b.Field(colComment).(*array.StringBuilder).Append(l.Comment)
}

func appendOptional(b *array.StringBuilder, s *string) {
	if s == nil {
		b.AppendNull()
		return
	}
	b.Append(*s)
}

func appendStrings(b *array.ListBuilder, values []string) {
	if values == nil {
		b.AppendNull()
		return
	}
	b.Append(true)
	vb := b.ValueBuilder().(*array.StringBuilder)
	for _, v := range values {
		vb.Append(v)
	}
}
