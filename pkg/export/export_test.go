package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lenardflx/ai-data-migration/internal/model"
)

func str(s string) *string { return &s }

func sampleRecords() []model.OutputRecord {
	return []model.OutputRecord{
		{
			Product: model.Product{ID: "a", Name: str("Lamp"), Location: []int{1, 2}, IsActive: true},
			Log:     model.TransformLog{LostData: []string{"color"}, Comment: "ok"},
		},
		{
			Product: model.Product{ID: "b", Description: str("Wooden chair")},
			Log:     model.TransformLog{NeedsReview: true, Comment: "ambiguous location"},
		},
		{
			Product: model.Product{ID: "c", Name: str("Desk"), IsActive: true},
			Log:     model.TransformLog{},
		},
	}
}

func TestWriteParquet(t *testing.T) {
	tests := []struct {
		name string
		opts ParquetOptions
	}{
		{"defaults", DefaultParquetOptions()},
		{"small row groups", ParquetOptions{Compression: CompressionZstd, RowGroupSize: 2}},
		{"uncompressed", ParquetOptions{Compression: CompressionNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteParquet(&buf, sampleRecords(), tt.opts))

			table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
				parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
			require.NoError(t, err)
			defer table.Release()

			assert.EqualValues(t, 3, table.NumRows())
			assert.EqualValues(t, len(recordSchema().Fields()), table.NumCols())
			assert.Equal(t, "id", table.Schema().Field(colID).Name)

			ids := table.Column(colID).Data().Chunk(0).(*array.String)
			assert.Equal(t, "a", ids.Value(0))

			names := table.Column(colName).Data().Chunk(0).(*array.String)
			assert.True(t, names.IsNull(1))
		})
	}
}

func TestWriteParquet_BadCompression(t *testing.T) {
	err := WriteParquet(&bytes.Buffer{}, sampleRecords(), ParquetOptions{Compression: "brotli9"})
	assert.Error(t, err)
}

func TestWriteParquet_LeavesWriterOpen(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "records-*.parquet")
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, WriteParquet(f, sampleRecords(), DefaultParquetOptions()))
	require.NoError(t, f.Chmod(0o644))
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	info, err := os.Stat(f.Name())
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestToFile_ParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.parquet")
	require.NoError(t, ToFile(path, FormatParquet, sampleRecords()[:1], DefaultParquetOptions()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer table.Release()
	assert.EqualValues(t, 1, table.NumRows())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRecords()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	products, err := f.GetRows(SheetProducts)
	require.NoError(t, err)
	require.Len(t, products, 4)
	assert.Equal(t, "id", products[0][0])
	assert.Equal(t, "1,2", products[1][4])

	review, err := f.GetRows(SheetReview)
	require.NoError(t, err)
	require.Len(t, review, 2)
	assert.Equal(t, "b", review[1][0])
	assert.Equal(t, "ambiguous location", review[1][10])
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.parquet", "out.xlsx", "out.jsonl"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			format, err := FormatFromPath(path)
			require.NoError(t, err)
			require.NoError(t, ToFile(path, format, sampleRecords(), DefaultParquetOptions()))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.NotZero(t, info.Size())
		})
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.jsonl"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)

	_, err = FormatFromPath("out.txt")
	assert.Error(t, err)
	assert.Error(t, ToFile(filepath.Join(dir, "x"), "xml", nil, DefaultParquetOptions()))
}
