package pivot

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"table-projection-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var salesMetas = []operators.ColumnMeta{
	{Name: "Category", Semantic: operators.SemanticDimension, Type: arrow.BinaryTypes.String},
	{Name: "Month", Semantic: operators.SemanticDimension, Type: arrow.BinaryTypes.String},
	{Name: "Total", Semantic: operators.SemanticMetric, Type: arrow.PrimitiveTypes.Int64},
}

func dataset(t *testing.T, mem memory.Allocator, rows [][]any) *operators.Dataset {
	t.Helper()
	ds, err := operators.NewDatasetFromRows(mem, salesMetas, rows)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	return ds
}

func names(ds *operators.Dataset) []string {
	out := make([]string, ds.NumColumns())
	for i, f := range ds.Schema().Fields() {
		out[i] = f.Name
	}
	return out
}

func rows(ds *operators.Dataset) [][]any {
	out := make([][]any, ds.NumRows())
	for r := range out {
		out[r] = ds.Row(r)
	}
	return out
}

func TestPivotExample(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ds := dataset(t, mem, [][]any{
		{"A", "Jan", 5},
		{"B", "Jan", 7},
		{"A", "Feb", 3},
	})
	defer ds.Release()

	out, err := Pivot(context.Background(), ds, 0, 1, 2, Options{Allocator: mem})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Release()

	if got := names(out); !reflect.DeepEqual(got, []string{"Category", "Jan", "Feb"}) {
		t.Fatalf("expected [Category Jan Feb], got %v", got)
	}
	want := [][]any{
		{"A", int64(5), int64(3)},
		{"B", int64(7), nil},
	}
	if got := rows(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	jan := out.ColumnMeta(1)
	if !jan.IsMetric() || jan.FieldRef != FieldRefPrefix+"0" || jan.Title() != "Jan" {
		t.Fatalf("unexpected pivot column meta %+v", jan)
	}
	if !arrow.TypeEqual(jan.Type, arrow.PrimitiveTypes.Int64) {
		t.Fatalf("pivot column should keep the metric type, got %s", jan.Type)
	}
	if out.ColumnMeta(0).Name != "Category" || !out.ColumnMeta(0).IsDimension() {
		t.Fatalf("row dimension should keep its meta, got %+v", out.ColumnMeta(0))
	}
}

func TestPivotFirstSeenOrder(t *testing.T) {
	ds := dataset(t, nil, [][]any{
		{"r1", "B", 1},
		{"r2", "A", 2},
		{"r1", "B", 3},
		{"r3", "C", 4},
	})
	defer ds.Release()
	out, err := Pivot(context.Background(), ds, 0, 1, 2, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Release()
	if got := names(out); !reflect.DeepEqual(got, []string{"Category", "B", "A", "C"}) {
		t.Fatalf("expected first-seen order [B A C], got %v", got)
	}
	var firstCol []any
	for r := 0; r < out.NumRows(); r++ {
		firstCol = append(firstCol, out.Cell(r, 0))
	}
	if !reflect.DeepEqual(firstCol, []any{"r1", "r2", "r3"}) {
		t.Fatalf("expected rows in first-seen order, got %v", firstCol)
	}
}

func TestPivotLastWriteWins(t *testing.T) {
	ds := dataset(t, nil, [][]any{
		{"1", "B", 10},
		{"1", "B", 20},
	})
	defer ds.Release()
	out, err := Pivot(context.Background(), ds, 0, 1, 2, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Release()
	if out.NumRows() != 1 || out.Cell(0, 1) != int64(20) {
		t.Fatalf("expected single row with 20, got %v", rows(out))
	}
}

func TestPivotMissingCells(t *testing.T) {
	ds := dataset(t, nil, [][]any{
		{"A", "Jan", 1},
		{"B", "Feb", 2},
		{"C", "Mar", nil},
	})
	defer ds.Release()
	out, err := Pivot(context.Background(), ds, 0, 1, 2, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Release()
	want := [][]any{
		{"A", int64(1), nil, nil},
		{"B", nil, int64(2), nil},
		{"C", nil, nil, nil},
	}
	if got := rows(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPivotNullKeys(t *testing.T) {
	ds := dataset(t, nil, [][]any{
		{nil, "Jan", 1},
		{"A", nil, 2},
		{nil, nil, 3},
	})
	defer ds.Release()
	out, err := Pivot(context.Background(), ds, 0, 1, 2, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Release()
	if got := names(out); !reflect.DeepEqual(got, []string{"Category", "Jan", ""}) {
		t.Fatalf("null pivot value should get an empty title, got %v", got)
	}
	want := [][]any{
		{nil, int64(1), int64(3)},
		{"A", nil, int64(2)},
	}
	if got := rows(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPivotDeterminism(t *testing.T) {
	ds := dataset(t, nil, [][]any{
		{"A", "Jan", 5},
		{"B", "Feb", 7},
		{"C", "Jan", 3},
		{"A", "Mar", 1},
		{"B", "Jan", 9},
	})
	defer ds.Release()
	first, err := Pivot(context.Background(), ds, 0, 1, 2, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer first.Release()
	for i := 0; i < 10; i++ {
		again, err := Pivot(context.Background(), ds, 0, 1, 2, Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.Schema().Equal(first.Schema()) {
			t.Fatalf("schema differs on run %d", i)
		}
		if !reflect.DeepEqual(rows(again), rows(first)) {
			t.Fatalf("rows differ on run %d", i)
		}
		again.Release()
	}
}

// any row order keeping A before B and Jan before Feb pivots to the same table
func TestPivotReorderedRows(t *testing.T) {
	orders := map[string][][]any{
		"base": {
			{"A", "Jan", 5}, {"B", "Jan", 7}, {"A", "Feb", 3}, {"B", "Feb", 4},
		},
		"by category": {
			{"A", "Jan", 5}, {"A", "Feb", 3}, {"B", "Feb", 4}, {"B", "Jan", 7},
		},
		"interleaved": {
			{"A", "Jan", 5}, {"B", "Feb", 4}, {"B", "Jan", 7}, {"A", "Feb", 3},
		},
	}
	want := [][]any{
		{"A", int64(5), int64(3)},
		{"B", int64(7), int64(4)},
	}
	for name, input := range orders {
		t.Run(name, func(t *testing.T) {
			ds := dataset(t, nil, input)
			defer ds.Release()
			out, err := Pivot(context.Background(), ds, 0, 1, 2, Options{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer out.Release()
			if got := names(out); !reflect.DeepEqual(got, []string{"Category", "Jan", "Feb"}) {
				t.Fatalf("expected [Category Jan Feb], got %v", got)
			}
			if got := rows(out); !reflect.DeepEqual(got, want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestPivotErrors(t *testing.T) {
	ds := dataset(t, nil, [][]any{
		{"A", "Jan", 5},
		{"A", "Feb", 6},
		{"A", "Mar", 7},
	})
	defer ds.Release()

	cases := []struct {
		name                   string
		rowDim, pivotDim, metr int
	}{
		{"negative", -1, 1, 2},
		{"out of range", 0, 1, 3},
		{"row equals pivot", 0, 0, 2},
		{"pivot equals metric", 0, 2, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Pivot(context.Background(), ds, tc.rowDim, tc.pivotDim, tc.metr, Options{})
			if !errors.Is(err, ErrInvalidPivotIndex) {
				t.Fatalf("expected ErrInvalidPivotIndex, got %v", err)
			}
		})
	}

	t.Run("nil dataset", func(t *testing.T) {
		if _, err := Pivot(context.Background(), nil, 0, 1, 2, Options{}); !errors.Is(err, ErrNilDataset) {
			t.Fatalf("expected ErrNilDataset, got %v", err)
		}
	})

	t.Run("too many pivot values", func(t *testing.T) {
		_, err := Pivot(context.Background(), ds, 0, 1, 2, Options{MaxPivotColumns: 2})
		if !errors.Is(err, ErrTooManyPivotColumns) {
			t.Fatalf("expected ErrTooManyPivotColumns, got %v", err)
		}
		out, err := Pivot(context.Background(), ds, 0, 1, 2, Options{MaxPivotColumns: 3})
		if err != nil {
			t.Fatalf("a cap equal to the distinct count should pass: %v", err)
		}
		out.Release()
	})
}

func TestPivotEmpty(t *testing.T) {
	ds := dataset(t, nil, nil)
	defer ds.Release()
	out, err := Pivot(context.Background(), ds, 0, 1, 2, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Release()
	if out.NumRows() != 0 || out.NumColumns() != 1 {
		t.Fatalf("expected only the row dimension column, got %dx%d", out.NumRows(), out.NumColumns())
	}
}
