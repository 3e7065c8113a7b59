package operators

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Dataset is a fully materialized table: one arrow array per column, all of
// the same length. It owns a reference to every column; call Release when
// done with it.
type Dataset struct {
	schema  *arrow.Schema
	columns []arrow.Array
	rows    int
}

// NewDataset validates that columns line up with schema and retains them.
func NewDataset(schema *arrow.Schema, columns []arrow.Array) (*Dataset, error) {
	if schema == nil {
		return nil, ErrInvalidSchema("schema is nil")
	}
	rows, err := validateColumns(schema, columns)
	if err != nil {
		return nil, err
	}
	cols := make([]arrow.Array, len(columns))
	for i, c := range columns {
		c.Retain()
		cols[i] = c
	}
	return &Dataset{
		schema:  schema,
		columns: cols,
		rows:    rows,
	}, nil
}

// NewDatasetFromRows builds a dataset from row-major Go values. Every row
// must have exactly len(metas) cells; nil is a null cell.
func NewDatasetFromRows(mem memory.Allocator, metas []ColumnMeta, rows [][]any) (*Dataset, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	for _, m := range metas {
		if m.Type == nil {
			return nil, ErrInvalidSchema(fmt.Sprintf("column '%s' has no type", m.Name))
		}
	}
	for i, row := range rows {
		if len(row) != len(metas) {
			return nil, ErrRowLengthMismatch(i, len(row), len(metas))
		}
	}
	schema := SchemaFromMetas(metas)
	columns := make([]arrow.Array, len(metas))
	defer ReleaseArrays(columns)
	for c, m := range metas {
		b := array.NewBuilder(mem, m.Type)
		for r, row := range rows {
			if err := appendValue(b, row[c]); err != nil {
				b.Release()
				return nil, ErrInvalidSchema(fmt.Sprintf("row %d column '%s': %v", r, m.Name, err))
			}
		}
		columns[c] = b.NewArray()
		b.Release()
	}
	return NewDataset(schema, columns)
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bb := b.(type) {
	case *array.Int64Builder:
		switch x := v.(type) {
		case int:
			bb.Append(int64(x))
		case int32:
			bb.Append(int64(x))
		case int64:
			bb.Append(x)
		default:
			return fmt.Errorf("%v of type %T is not an int64 cell", v, v)
		}
	case *array.Int32Builder:
		switch x := v.(type) {
		case int:
			bb.Append(int32(x))
		case int32:
			bb.Append(x)
		default:
			return fmt.Errorf("%v of type %T is not an int32 cell", v, v)
		}
	case *array.Float64Builder:
		switch x := v.(type) {
		case float64:
			bb.Append(x)
		case float32:
			bb.Append(float64(x))
		case int:
			bb.Append(float64(x))
		case int64:
			bb.Append(float64(x))
		default:
			return fmt.Errorf("%v of type %T is not a float64 cell", v, v)
		}
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%v of type %T is not a string cell", v, v)
		}
		bb.Append(s)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%v of type %T is not a bool cell", v, v)
		}
		bb.Append(x)
	case *array.Date32Builder:
		switch x := v.(type) {
		case time.Time:
			bb.Append(arrow.Date32FromTime(x))
		case arrow.Date32:
			bb.Append(x)
		default:
			return fmt.Errorf("%v of type %T is not a date cell", v, v)
		}
	case *array.TimestampBuilder:
		x, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("%v of type %T is not a timestamp cell", v, v)
		}
		unit := bb.Type().(*arrow.TimestampType).Unit
		ts, err := arrow.TimestampFromTime(x, unit)
		if err != nil {
			return err
		}
		bb.Append(ts)
	default:
		return fmt.Errorf("unsupported arrow type %s", b.Type())
	}
	return nil
}

func (d *Dataset) Schema() *arrow.Schema    { return d.schema }
func (d *Dataset) Columns() []arrow.Array   { return d.columns }
func (d *Dataset) Column(i int) arrow.Array { return d.columns[i] }
func (d *Dataset) NumColumns() int          { return len(d.columns) }
func (d *Dataset) NumRows() int             { return d.rows }

func (d *Dataset) ColumnMeta(i int) ColumnMeta {
	return MetaFromField(d.schema.Field(i))
}

func (d *Dataset) Metas() []ColumnMeta {
	metas := make([]ColumnMeta, len(d.columns))
	for i := range d.columns {
		metas[i] = d.ColumnMeta(i)
	}
	return metas
}

// Cell returns the Go value at (row, col); nil for null.
func (d *Dataset) Cell(row, col int) any {
	return CellValue(d.columns[col], row)
}

// Row materializes one row in column order.
func (d *Dataset) Row(row int) []any {
	out := make([]any, len(d.columns))
	for c := range d.columns {
		out[c] = d.Cell(row, c)
	}
	return out
}

func (d *Dataset) Release() {
	ReleaseArrays(d.columns)
	d.columns = nil
}

// CellValue reads a single element of arr as a plain Go value.
func CellValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	default:
		return arr.ValueStr(i)
	}
}
