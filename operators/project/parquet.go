package project

import (
	"context"
	"errors"
	"io"

	"table-projection-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

var (
	_ = (operators.Operator)(&ParquetSource{})
)

// ParquetSource streams the row groups of a parquet file as batches.
// Columns written without semantic metadata get one inferred from their
// arrow type.
type ParquetSource struct {
	schema *arrow.Schema
	file   *file.Reader
	reader pqarrow.RecordReader
	done   bool // if set to true always return io.EOF
}

func NewParquetSource(r parquet.ReaderAtSeeker, batchSize int64) (*ParquetSource, error) {
	return newParquetSource(r, batchSize, nil)
}

// NewParquetSourcePushDown reads only the named columns, in the given order.
func NewParquetSourcePushDown(r parquet.ReaderAtSeeker, batchSize int64, columns []string) (*ParquetSource, error) {
	if len(columns) == 0 {
		return nil, errors.New("no columns were provided for projection push down")
	}
	return newParquetSource(r, batchSize, columns)
}

func newParquetSource(r parquet.ReaderAtSeeker, batchSize int64, columns []string) (*ParquetSource, error) {
	if batchSize <= 0 {
		batchSize = 1024
	}
	fileReader, err := file.NewParquetReader(r)
	if err != nil {
		return nil, err
	}
	arrowReader, err := pqarrow.NewFileReader(
		fileReader,
		pqarrow.ArrowReadProperties{Parallel: true, BatchSize: batchSize},
		memory.NewGoAllocator(),
	)
	if err != nil {
		fileReader.Close()
		return nil, err
	}
	var wanted []int
	if len(columns) > 0 {
		s, err := arrowReader.Schema()
		if err != nil {
			fileReader.Close()
			return nil, err
		}
		for _, col := range columns {
			idx := s.FieldIndices(col)
			if len(idx) == 0 {
				fileReader.Close()
				return nil, ErrProjectColumnNotFound
			}
			wanted = append(wanted, idx[0])
		}
	}
	rdr, err := arrowReader.GetRecordReader(context.TODO(), wanted, nil)
	if err != nil {
		fileReader.Close()
		return nil, err
	}
	return &ParquetSource{
		schema: withSemantics(rdr.Schema()),
		file:   fileReader,
		reader: rdr,
	}, nil
}

// Next returns the next record of the underlying reader; n is ignored
// because pqarrow already batches by the configured batch size.
func (ps *ParquetSource) Next(_ uint16) (*operators.RecordBatch, error) {
	if ps.reader == nil || ps.done {
		return nil, io.EOF
	}
	if !ps.reader.Next() {
		ps.done = true
		if err := ps.reader.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, io.EOF
	}
	record := ps.reader.Record()
	columns := make([]arrow.Array, record.NumCols())
	for i := range columns {
		col := record.Column(i)
		col.Retain()
		columns[i] = col
	}
	return &operators.RecordBatch{
		Schema:   ps.schema,
		Columns:  columns,
		RowCount: uint64(record.NumRows()),
	}, nil
}

func (ps *ParquetSource) Close() error {
	if ps.reader != nil {
		ps.reader.Release()
		ps.reader = nil
	}
	if ps.file != nil {
		err := ps.file.Close()
		ps.file = nil
		return err
	}
	return nil
}

func (ps *ParquetSource) Schema() *arrow.Schema {
	return ps.schema
}

func withSemantics(s *arrow.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Fields()))
	for i, f := range s.Fields() {
		meta := operators.MetaFromField(f)
		if meta.Semantic == operators.SemanticNone {
			meta.Semantic = operators.InferSemantic(f.Type)
		}
		fields[i] = meta.Field()
	}
	return arrow.NewSchema(fields, nil)
}
