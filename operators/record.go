package operators

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrInvalidSchema = func(info string) error {
		return fmt.Errorf("invalid schema was provided. context: %s", info)
	}
	ErrRowLengthMismatch = func(row, got, want int) error {
		return fmt.Errorf("row %d has %d cells but the dataset has %d columns", row, got, want)
	}
	ErrNilOperator = errors.New("operator is nil")
)

// Operator is a batch producer. Sources implement it so they can be drained
// into a Dataset with Collect.
type Operator interface {
	Next(uint16) (*RecordBatch, error)
	Schema() *arrow.Schema
	// Call Operator.Close() after Next returns an io.EOF to clean up resources
	Close() error
}

type RecordBatch struct {
	Schema   *arrow.Schema
	Columns  []arrow.Array
	RowCount uint64
}

func ReleaseArrays(arrs []arrow.Array) {
	for _, a := range arrs {
		if a != nil {
			a.Release()
		}
	}
}

// schema is always right in case of type mismatches
func validateColumns(schema *arrow.Schema, columns []arrow.Array) (int, error) {
	if len(schema.Fields()) != len(columns) {
		return 0, ErrInvalidSchema("schema fields and column count do not match")
	}
	rows := 0
	var errs []string
	for i := 0; i < len(columns); i++ {
		field := schema.Field(i)
		if columns[i] == nil {
			errs = append(errs, fmt.Sprintf("column '%s' at position %d is nil.", field.Name, i))
			continue
		}
		colType := columns[i].DataType()
		if !arrow.TypeEqual(colType, field.Type) {
			errs = append(errs,
				fmt.Sprintf("Type mismatch at position %d: column '%s' has type '%s', but schema expects '%s'.",
					i, field.Name, colType, field.Type))
		}
		if i == 0 {
			rows = columns[i].Len()
		} else if columns[i].Len() != rows {
			errs = append(errs,
				fmt.Sprintf("Length mismatch at position %d: column '%s' has %d rows, expected %d.",
					i, field.Name, columns[i].Len(), rows))
		}
	}
	if len(errs) > 0 {
		return 0, ErrInvalidSchema(strings.Join(errs, " "))
	}
	return rows, nil
}

// Collect drains op into a single Dataset and closes it. Batches are
// concatenated column by column.
func Collect(op Operator, batchSize uint16) (*Dataset, error) {
	if op == nil {
		return nil, ErrNilOperator
	}
	defer op.Close()
	if batchSize == 0 {
		batchSize = 1024
	}
	schema := op.Schema()
	parts := make([][]arrow.Array, len(schema.Fields()))
	defer func() {
		for _, p := range parts {
			ReleaseArrays(p)
		}
	}()
	for {
		batch, err := op.Next(batchSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if len(batch.Columns) != len(parts) {
			ReleaseArrays(batch.Columns)
			return nil, ErrInvalidSchema("batch column count does not match operator schema")
		}
		for i, col := range batch.Columns {
			parts[i] = append(parts[i], col)
		}
	}

	mem := memory.NewGoAllocator()
	columns := make([]arrow.Array, len(parts))
	for i, p := range parts {
		switch len(p) {
		case 0:
			b := array.NewBuilder(mem, schema.Field(i).Type)
			columns[i] = b.NewArray()
			b.Release()
		case 1:
			p[0].Retain()
			columns[i] = p[0]
		default:
			combined, err := array.Concatenate(p, mem)
			if err != nil {
				ReleaseArrays(columns[:i])
				return nil, err
			}
			columns[i] = combined
		}
	}
	ds, err := NewDataset(schema, columns)
	ReleaseArrays(columns)
	return ds, err
}
