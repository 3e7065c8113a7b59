package project

import (
	"fmt"
	"io"

	"table-projection-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&InMemorySource{})
)

var (
	ErrInvalidInMemoryDataType = func(Type any) error {
		return fmt.Errorf("%T is not a supported in memory dataType for InMemorySource", Type)
	}
)

// InMemorySource serves Go slices as arrow batches. Handy for tests and for
// callers that already hold their data in memory.
type InMemorySource struct {
	schema  *arrow.Schema
	columns []arrow.Array
	pos     int
}

// NewInMemorySource builds a source from one Go slice per column. Column
// semantics are inferred from the slice type; use NewInMemorySourceWithMetas
// to set them explicitly.
func NewInMemorySource(names []string, columns []any) (*InMemorySource, error) {
	metas := make([]operators.ColumnMeta, len(names))
	for i, n := range names {
		metas[i] = operators.ColumnMeta{Name: n}
	}
	return NewInMemorySourceWithMetas(metas, columns)
}

// NewInMemorySourceWithMetas is NewInMemorySource with caller supplied column
// metadata. A meta's Type is ignored; it always comes from the slice.
func NewInMemorySourceWithMetas(metas []operators.ColumnMeta, columns []any) (*InMemorySource, error) {
	if len(metas) != len(columns) {
		return nil, operators.ErrInvalidSchema("number of column names and columns do not match")
	}
	fields := make([]arrow.Field, 0, len(metas))
	arrays := make([]arrow.Array, 0, len(metas))
	for i, col := range columns {
		arr, err := unpackColumn(col)
		if err != nil {
			operators.ReleaseArrays(arrays)
			return nil, operators.ErrInvalidSchema(fmt.Sprintf("column %s: %v", metas[i].Name, err))
		}
		meta := metas[i]
		meta.Type = arr.DataType()
		if meta.Semantic == operators.SemanticNone {
			meta.Semantic = operators.InferSemantic(meta.Type)
		}
		fields = append(fields, meta.Field())
		arrays = append(arrays, arr)
	}
	schema := arrow.NewSchema(fields, nil)
	// same length check a dataset does
	check, err := operators.NewDataset(schema, arrays)
	if err != nil {
		operators.ReleaseArrays(arrays)
		return nil, err
	}
	check.Release()
	return &InMemorySource{
		schema:  schema,
		columns: arrays,
	}, nil
}

func (ms *InMemorySource) Next(n uint16) (*operators.RecordBatch, error) {
	if len(ms.columns) == 0 || ms.pos >= ms.columns[0].Len() {
		return nil, io.EOF
	}
	end := ms.pos + int(n)
	if total := ms.columns[0].Len(); end > total {
		end = total
	}
	out := make([]arrow.Array, len(ms.columns))
	for i, col := range ms.columns {
		out[i] = array.NewSlice(col, int64(ms.pos), int64(end))
	}
	rows := end - ms.pos
	ms.pos = end
	return &operators.RecordBatch{
		Schema:   ms.schema,
		Columns:  out,
		RowCount: uint64(rows),
	}, nil
}

func (ms *InMemorySource) Close() error {
	operators.ReleaseArrays(ms.columns)
	ms.columns = nil
	return nil
}

func (ms *InMemorySource) Schema() *arrow.Schema {
	return ms.schema
}

func unpackColumn(col any) (arrow.Array, error) {
	switch data := col.(type) {
	case []int:
		b := array.NewInt64Builder(memory.DefaultAllocator)
		defer b.Release()
		for _, v := range data {
			b.Append(int64(v))
		}
		return b.NewArray(), nil
	case []int32:
		b := array.NewInt32Builder(memory.DefaultAllocator)
		defer b.Release()
		b.AppendValues(data, nil)
		return b.NewArray(), nil
	case []int64:
		b := array.NewInt64Builder(memory.DefaultAllocator)
		defer b.Release()
		b.AppendValues(data, nil)
		return b.NewArray(), nil
	case []float64:
		b := array.NewFloat64Builder(memory.DefaultAllocator)
		defer b.Release()
		b.AppendValues(data, nil)
		return b.NewArray(), nil
	case []string:
		b := array.NewStringBuilder(memory.DefaultAllocator)
		defer b.Release()
		b.AppendValues(data, nil)
		return b.NewArray(), nil
	case []bool:
		b := array.NewBooleanBuilder(memory.DefaultAllocator)
		defer b.Release()
		b.AppendValues(data, nil)
		return b.NewArray(), nil
	// pointer slices carry nulls
	case []*int64:
		b := array.NewInt64Builder(memory.DefaultAllocator)
		defer b.Release()
		for _, v := range data {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(*v)
			}
		}
		return b.NewArray(), nil
	case []*float64:
		b := array.NewFloat64Builder(memory.DefaultAllocator)
		defer b.Release()
		for _, v := range data {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(*v)
			}
		}
		return b.NewArray(), nil
	case []*string:
		b := array.NewStringBuilder(memory.DefaultAllocator)
		defer b.Release()
		for _, v := range data {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(*v)
			}
		}
		return b.NewArray(), nil
	}
	return nil, ErrInvalidInMemoryDataType(col)
}
