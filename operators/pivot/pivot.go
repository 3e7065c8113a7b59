package pivot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"table-projection-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/compute"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var (
	ErrInvalidPivotIndex   = errors.New("invalid pivot column index")
	ErrTooManyPivotColumns = errors.New("too many distinct pivot values")
	ErrNilDataset          = errors.New("dataset is nil")
)

// FieldRefPrefix prefixes the field ref of every pivoted-out column, followed
// by its position among the pivot values.
const FieldRefPrefix = "pivot:"

type Options struct {
	Allocator memory.Allocator
	// MaxPivotColumns caps the number of distinct pivot values; 0 is no cap.
	MaxPivotColumns int
}

// Pivot turns ds into a cross tab. Column 0 of the result is the row
// dimension; every distinct value of the pivot dimension becomes a column,
// in first-seen order, holding the metric for that (row, pivot) pair or null
// when no input row has it. Rows come out in first-seen order of the row
// dimension. If several input rows share a (row, pivot) pair the last one
// wins; values are never aggregated or converted.
func Pivot(ctx context.Context, ds *operators.Dataset, rowDim, pivotDim, metric int, opts Options) (*operators.Dataset, error) {
	if ds == nil {
		return nil, ErrNilDataset
	}
	if err := checkIndexes(ds.NumColumns(), rowDim, pivotDim, metric); err != nil {
		return nil, err
	}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	rowCol := ds.Column(rowDim)
	pivotCol := ds.Column(pivotDim)
	n := ds.NumRows()

	// pass 1: distinct keys in first-seen order, and the slot of every row
	rowSlots := make([]int, n)
	pivotSlots := make([]int, n)
	rowFirst := make([]int64, 0)
	pivotFirst := make([]int64, 0)
	rowSeen := make(map[operators.CellKey]int)
	pivotSeen := make(map[operators.CellKey]int)
	for i := 0; i < n; i++ {
		rk := operators.KeyAt(rowCol, i)
		slot, ok := rowSeen[rk]
		if !ok {
			slot = len(rowFirst)
			rowSeen[rk] = slot
			rowFirst = append(rowFirst, int64(i))
		}
		rowSlots[i] = slot

		pk := operators.KeyAt(pivotCol, i)
		slot, ok = pivotSeen[pk]
		if !ok {
			slot = len(pivotFirst)
			pivotSeen[pk] = slot
			pivotFirst = append(pivotFirst, int64(i))
		}
		pivotSlots[i] = slot
	}
	if opts.MaxPivotColumns > 0 && len(pivotFirst) > opts.MaxPivotColumns {
		return nil, fmt.Errorf("%w: %d distinct values, limit is %d",
			ErrTooManyPivotColumns, len(pivotFirst), opts.MaxPivotColumns)
	}

	// pass 2: source row for every output cell, later rows overwrite
	width := len(pivotFirst)
	cells := make([]int64, len(rowFirst)*width)
	for i := range cells {
		cells[i] = -1
	}
	for i := 0; i < n; i++ {
		cells[rowSlots[i]*width+pivotSlots[i]] = int64(i)
	}

	ctx = compute.WithAllocator(ctx, mem)
	columns := make([]arrow.Array, 0, width+1)
	defer func() { operators.ReleaseArrays(columns) }()

	rowOut, err := take(ctx, mem, rowCol, rowFirst, nil)
	if err != nil {
		return nil, err
	}
	columns = append(columns, rowOut)

	metricCol := ds.Column(metric)
	metricMeta := ds.ColumnMeta(metric)
	fields := make([]arrow.Field, 0, width+1)
	fields = append(fields, ds.Schema().Field(rowDim))
	picks := make([]int64, len(rowFirst))
	for p := 0; p < width; p++ {
		for r := range rowFirst {
			picks[r] = cells[r*width+p]
		}
		out, err := take(ctx, mem, metricCol, picks, func(v int64) bool { return v < 0 })
		if err != nil {
			return nil, err
		}
		columns = append(columns, out)
		fields = append(fields, pivotField(pivotCol, int(pivotFirst[p]), p, metricMeta))
	}

	return operators.NewDataset(arrow.NewSchema(fields, nil), columns)
}

func checkIndexes(width, rowDim, pivotDim, metric int) error {
	for _, idx := range []int{rowDim, pivotDim, metric} {
		if idx < 0 || idx >= width {
			return fmt.Errorf("%w: %d is outside [0, %d)", ErrInvalidPivotIndex, idx, width)
		}
	}
	if rowDim == pivotDim || rowDim == metric || pivotDim == metric {
		return fmt.Errorf("%w: row=%d pivot=%d metric=%d must be distinct", ErrInvalidPivotIndex, rowDim, pivotDim, metric)
	}
	return nil
}

// take gathers values at idx; positions where missing reports true become
// null.
func take(ctx context.Context, mem memory.Allocator, values arrow.Array, idx []int64, missing func(int64) bool) (arrow.Array, error) {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.Reserve(len(idx))
	for _, v := range idx {
		if missing != nil && missing(v) {
			b.AppendNull()
			continue
		}
		b.Append(v)
	}
	indices := b.NewArray()
	defer indices.Release()
	return compute.TakeArray(ctx, values, indices)
}

func pivotField(pivotCol arrow.Array, row, position int, metric operators.ColumnMeta) arrow.Field {
	title := ""
	if !pivotCol.IsNull(row) {
		title = pivotCol.ValueStr(row)
	}
	return operators.ColumnMeta{
		Name:        title,
		DisplayName: title,
		Semantic:    metric.Semantic,
		FieldRef:    FieldRefPrefix + strconv.Itoa(position),
		Type:        metric.Type,
	}.Field()
}
