package project

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"table-projection-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	_ = (operators.Operator)(&CSVSource{})
)

const csvDateLayout = "2006-01-02"

var defaultNullTokens = []string{"", "NULL"}

// CSVSource reads a headered CSV stream. Column types are inferred from the
// first data row; numeric columns are tagged as metrics and the rest as
// dimensions.
type CSVSource struct {
	r            rowReader
	schema       *arrow.Schema
	colPosition  map[string]int
	firstDataRow []string
	nullTokens   map[string]struct{}
	done         bool // if this is set in Next, we have reached EOF
}

// rowReader is the part of csv.Reader the source needs; the xlsx source
// feeds sheet rows through the same path.
type rowReader interface {
	Read() ([]string, error)
}

func NewCSVSource(source io.Reader, nullTokens ...string) (*CSVSource, error) {
	return newRowSource(csv.NewReader(source), nullTokens)
}

func newRowSource(rr rowReader, nullTokens []string) (*CSVSource, error) {
	if len(nullTokens) == 0 {
		nullTokens = defaultNullTokens
	}
	tokens := make(map[string]struct{}, len(nullTokens))
	for _, t := range nullTokens {
		tokens[t] = struct{}{}
	}
	proj := &CSVSource{
		r:           rr,
		colPosition: make(map[string]int),
		nullTokens:  tokens,
	}
	var err error
	// construct the schema from the header
	proj.schema, err = proj.parseHeader()
	if err != nil {
		return nil, err
	}
	return proj, nil
}

func (csvS *CSVSource) Next(n uint16) (*operators.RecordBatch, error) {
	if csvS.done {
		return nil, io.EOF
	}

	builders := csvS.initBuilders()
	rowsRead := uint16(0)

	// stored first row from parseHeader
	if csvS.firstDataRow != nil && rowsRead < n {
		if err := csvS.processRow(csvS.firstDataRow, builders); err != nil {
			releaseBuilders(builders)
			return nil, err
		}
		csvS.firstDataRow = nil
		rowsRead++
	}

	for rowsRead < n {
		row, err := csvS.r.Read()
		if err == io.EOF {
			csvS.done = true
			if rowsRead == 0 {
				releaseBuilders(builders)
				return nil, io.EOF
			}
			break
		}
		if err != nil {
			releaseBuilders(builders)
			return nil, err
		}
		if err := csvS.processRow(row, builders); err != nil {
			releaseBuilders(builders)
			return nil, err
		}
		rowsRead++
	}

	return &operators.RecordBatch{
		Schema:   csvS.schema,
		Columns:  finalizeBuilders(builders),
		RowCount: uint64(rowsRead),
	}, nil
}

func (csvS *CSVSource) Close() error {
	csvS.r = nil
	csvS.done = true
	return nil
}

func (csvS *CSVSource) Schema() *arrow.Schema {
	return csvS.schema
}

func (csvS *CSVSource) initBuilders() []array.Builder {
	fields := csvS.schema.Fields()
	builders := make([]array.Builder, len(fields))
	for i, f := range fields {
		builders[i] = array.NewBuilder(memory.DefaultAllocator, f.Type)
	}
	return builders
}

func (csvS *CSVSource) isNull(cell string) bool {
	_, ok := csvS.nullTokens[cell]
	return ok
}

// cells that fail to parse as the inferred type become null
func (csvS *CSVSource) processRow(content []string, builders []array.Builder) error {
	fields := csvS.schema.Fields()
	for i, f := range fields {
		colIdx := csvS.colPosition[f.Name]
		if colIdx >= len(content) {
			return operators.ErrRowLengthMismatch(-1, len(content), len(fields))
		}
		cell := content[colIdx]
		if csvS.isNull(cell) {
			builders[i].AppendNull()
			continue
		}

		switch b := builders[i].(type) {
		case *array.Int64Builder:
			v, err := strconv.ParseInt(cell, 10, 64)
			if err != nil {
				b.AppendNull()
			} else {
				b.Append(v)
			}
		case *array.Float64Builder:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				b.AppendNull()
			} else {
				b.Append(v)
			}
		case *array.Date32Builder:
			v, err := time.Parse(csvDateLayout, strings.TrimSpace(cell))
			if err != nil {
				b.AppendNull()
			} else {
				b.Append(arrow.Date32FromTime(v))
			}
		case *array.StringBuilder:
			b.Append(cell)
		case *array.BooleanBuilder:
			b.Append(cell == "true")
		default:
			return fmt.Errorf("unsupported Arrow type: %s", f.Type)
		}
	}
	return nil
}

func finalizeBuilders(builders []array.Builder) []arrow.Array {
	columns := make([]arrow.Array, len(builders))
	for i, b := range builders {
		columns[i] = b.NewArray()
		b.Release()
	}
	return columns
}

func releaseBuilders(builders []array.Builder) {
	for _, b := range builders {
		b.Release()
	}
}

// first call to csv.Reader
func (csvS *CSVSource) parseHeader() (*arrow.Schema, error) {
	header, err := csvS.r.Read()
	if err != nil {
		return nil, err
	}
	firstDataRow, err := csvS.r.Read()
	if err != nil && err != io.EOF {
		return nil, err
	}
	if err == io.EOF {
		// header only, every column is a string
		firstDataRow = nil
		csvS.done = true
	}
	csvS.firstDataRow = firstDataRow
	newFields := make([]arrow.Field, 0, len(header))
	for i, colName := range header {
		dt := arrow.DataType(arrow.BinaryTypes.String)
		if firstDataRow != nil {
			dt = csvS.parseDataType(firstDataRow[i])
		}
		newFields = append(newFields, operators.ColumnMeta{
			Name:     colName,
			Semantic: operators.InferSemantic(dt),
			Type:     dt,
		}.Field())
		csvS.colPosition[colName] = i
	}
	return arrow.NewSchema(newFields, nil), nil
}

func (csvS *CSVSource) parseDataType(sample string) arrow.DataType {
	sample = strings.TrimSpace(sample)

	// nulls tell us nothing, fall back to string
	if csvS.isNull(sample) {
		return arrow.BinaryTypes.String
	}
	if sample == "true" || sample == "false" {
		return arrow.FixedWidthTypes.Boolean
	}
	if _, err := strconv.ParseInt(sample, 10, 64); err == nil {
		return arrow.PrimitiveTypes.Int64
	}
	if _, err := strconv.ParseFloat(sample, 64); err == nil {
		return arrow.PrimitiveTypes.Float64
	}
	if _, err := time.Parse(csvDateLayout, sample); err == nil {
		return arrow.FixedWidthTypes.Date32
	}
	return arrow.BinaryTypes.String
}
