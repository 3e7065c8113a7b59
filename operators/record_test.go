package operators

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

func int64Array(mem memory.Allocator, vals ...int64) arrow.Array {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

func stringArray(mem memory.Allocator, vals ...string) arrow.Array {
	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

// sliceOperator hands out pre-built batches.
type sliceOperator struct {
	schema  *arrow.Schema
	batches []*RecordBatch
	closed  bool
}

func (s *sliceOperator) Next(uint16) (*RecordBatch, error) {
	if len(s.batches) == 0 {
		return nil, io.EOF
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}
func (s *sliceOperator) Schema() *arrow.Schema { return s.schema }
func (s *sliceOperator) Close() error {
	s.closed = true
	return nil
}

func TestNewDataset(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := SchemaFromMetas([]ColumnMeta{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
	})

	t.Run("valid", func(t *testing.T) {
		ids := int64Array(mem, 1, 2, 3)
		names := stringArray(mem, "a", "b", "c")
		ds, err := NewDataset(schema, []arrow.Array{ids, names})
		ids.Release()
		names.Release()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer ds.Release()
		if ds.NumRows() != 3 || ds.NumColumns() != 2 {
			t.Fatalf("expected 3x2 dataset, got %dx%d", ds.NumRows(), ds.NumColumns())
		}
		if got := ds.Cell(1, 1); got != "b" {
			t.Fatalf("expected cell (1,1) = b, got %v", got)
		}
	})

	t.Run("column count mismatch", func(t *testing.T) {
		ids := int64Array(mem, 1)
		defer ids.Release()
		if _, err := NewDataset(schema, []arrow.Array{ids}); err == nil {
			t.Fatalf("expected error for missing column")
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		a := stringArray(mem, "x")
		b := stringArray(mem, "y")
		defer a.Release()
		defer b.Release()
		if _, err := NewDataset(schema, []arrow.Array{a, b}); err == nil {
			t.Fatalf("expected error for string in int64 column")
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		ids := int64Array(mem, 1, 2)
		names := stringArray(mem, "a")
		defer ids.Release()
		defer names.Release()
		_, err := NewDataset(schema, []arrow.Array{ids, names})
		if err == nil || !strings.Contains(err.Error(), "Length mismatch") {
			t.Fatalf("expected length mismatch error, got %v", err)
		}
	})

	t.Run("nil schema", func(t *testing.T) {
		if _, err := NewDataset(nil, nil); err == nil {
			t.Fatalf("expected error for nil schema")
		}
	})
}

func TestNewDatasetFromRows(t *testing.T) {
	metas := []ColumnMeta{
		{Name: "Category", Semantic: SemanticDimension, Type: arrow.BinaryTypes.String},
		{Name: "Day", Semantic: SemanticDimension, Type: arrow.FixedWidthTypes.Date32},
		{Name: "Total", Semantic: SemanticMetric, Type: arrow.PrimitiveTypes.Int64},
	}
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("values and nulls", func(t *testing.T) {
		ds, err := NewDatasetFromRows(nil, metas, [][]any{
			{"Widget", day, 10},
			{nil, nil, nil},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer ds.Release()
		if got := ds.Cell(0, 2); got != int64(10) {
			t.Fatalf("expected 10, got %v (%T)", got, got)
		}
		if got, ok := ds.Cell(0, 1).(time.Time); !ok || !got.Equal(day) {
			t.Fatalf("expected %v, got %v", day, ds.Cell(0, 1))
		}
		for c := 0; c < 3; c++ {
			if ds.Cell(1, c) != nil {
				t.Fatalf("expected null at (1,%d), got %v", c, ds.Cell(1, c))
			}
		}
	})

	t.Run("short row", func(t *testing.T) {
		_, err := NewDatasetFromRows(nil, metas, [][]any{{"Widget", day}})
		if err == nil || !strings.Contains(err.Error(), "row 0 has 2 cells") {
			t.Fatalf("expected row length error, got %v", err)
		}
	})

	t.Run("wrong cell type", func(t *testing.T) {
		if _, err := NewDatasetFromRows(nil, metas, [][]any{{"Widget", day, "ten"}}); err == nil {
			t.Fatalf("expected error for string in int64 column")
		}
	})

	t.Run("missing type", func(t *testing.T) {
		untyped := []ColumnMeta{{Name: "a", Type: arrow.BinaryTypes.String}, {Name: "x"}}
		for _, rows := range [][][]any{{{"v", 1}}, nil} {
			_, err := NewDatasetFromRows(nil, untyped, rows)
			if err == nil || !strings.Contains(err.Error(), "column 'x' has no type") {
				t.Fatalf("expected error for untyped column, got %v", err)
			}
		}
	})

	t.Run("metas survive", func(t *testing.T) {
		ds, err := NewDatasetFromRows(nil, metas, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer ds.Release()
		if ds.NumRows() != 0 {
			t.Fatalf("expected empty dataset, got %d rows", ds.NumRows())
		}
		got := ds.Metas()
		for i := range metas {
			if got[i].Name != metas[i].Name || got[i].Semantic != metas[i].Semantic {
				t.Fatalf("meta %d: expected %+v, got %+v", i, metas[i], got[i])
			}
		}
	})
}

func TestColumnMetaField(t *testing.T) {
	m := ColumnMeta{
		Name:        "sum",
		DisplayName: "Sum of Total",
		Semantic:    SemanticMetric,
		Visibility:  VisibilityDetailsOnly,
		FieldRef:    "aggregation:0",
		Type:        arrow.PrimitiveTypes.Float64,
	}
	got := MetaFromField(m.Field())
	if got.Name != m.Name || got.DisplayName != m.DisplayName || got.Semantic != m.Semantic ||
		got.Visibility != m.Visibility || got.FieldRef != m.FieldRef || !arrow.TypeEqual(got.Type, m.Type) {
		t.Fatalf("expected %+v, got %+v", m, got)
	}
	if got.Title() != "Sum of Total" {
		t.Fatalf("expected display name as title, got %s", got.Title())
	}

	bare := MetaFromField(arrow.Field{Name: "x", Type: arrow.BinaryTypes.String})
	if bare.Semantic != SemanticNone || bare.Title() != "x" {
		t.Fatalf("expected bare meta, got %+v", bare)
	}
}

func TestParseSemanticAndVisibility(t *testing.T) {
	for _, s := range []string{"", "metric", "dimension"} {
		if got, err := ParseSemantic(s); err != nil || string(got) != s {
			t.Fatalf("ParseSemantic(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseSemantic("measure"); err == nil {
		t.Fatalf("expected error for unknown semantic")
	}
	for _, v := range []string{"", "normal", "details-only"} {
		if got, err := ParseVisibility(v); err != nil || string(got) != v {
			t.Fatalf("ParseVisibility(%q) = %q, %v", v, got, err)
		}
	}
	if _, err := ParseVisibility("hidden"); err == nil {
		t.Fatalf("expected error for unknown visibility")
	}
}

func TestInferSemantic(t *testing.T) {
	cases := []struct {
		dt   arrow.DataType
		want SemanticType
	}{
		{arrow.PrimitiveTypes.Int64, SemanticMetric},
		{arrow.PrimitiveTypes.Float32, SemanticMetric},
		{arrow.BinaryTypes.String, SemanticDimension},
		{arrow.FixedWidthTypes.Date32, SemanticDimension},
		{arrow.FixedWidthTypes.Boolean, SemanticDimension},
	}
	for _, tc := range cases {
		t.Run(tc.dt.String(), func(t *testing.T) {
			if got := InferSemantic(tc.dt); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestArrowTypeFromString(t *testing.T) {
	cases := []struct {
		name      string
		want      arrow.Type
		expectErr bool
	}{
		{"bool", arrow.BOOL, false},
		{"int32", arrow.INT32, false},
		{"int64", arrow.INT64, false},
		{"float64", arrow.FLOAT64, false},
		{"string", arrow.STRING, false},
		{"date", arrow.DATE32, false},
		{"timestamp", arrow.TIMESTAMP, false},
		{"not_a_type", arrow.Type(0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dt, err := ArrowTypeFromString(tc.name)
			if tc.expectErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dt.ID() != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, dt.ID())
			}
			if back, _ := ArrowTypeFromString(TypeName(dt)); back.ID() != dt.ID() {
				t.Fatalf("TypeName(%s) does not parse back", dt)
			}
		})
	}
}

func TestKeysAndCardinality(t *testing.T) {
	b := array.NewStringBuilder(memory.DefaultAllocator)
	b.AppendValues([]string{"a", "b", "a"}, nil)
	b.AppendNull()
	b.Append("(null)")
	arr := b.NewArray()
	b.Release()
	defer arr.Release()

	if got := Cardinality(arr); got != 4 {
		t.Fatalf("expected 4 distinct values (null counted once), got %d", got)
	}
	if KeyAt(arr, 3) == KeyAt(arr, 4) {
		t.Fatalf("null must not collide with the string (null)")
	}
	if KeyAt(arr, 0) != KeyAt(arr, 2) {
		t.Fatalf("equal values must share a key")
	}
}

func TestCollect(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	schema := SchemaFromMetas([]ColumnMeta{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
	})

	t.Run("concatenates batches", func(t *testing.T) {
		op := &sliceOperator{
			schema: schema,
			batches: []*RecordBatch{
				{Schema: schema, Columns: []arrow.Array{int64Array(mem, 1, 2), stringArray(mem, "a", "b")}, RowCount: 2},
				{Schema: schema, Columns: []arrow.Array{int64Array(mem, 3), stringArray(mem, "c")}, RowCount: 1},
			},
		}
		ds, err := Collect(op, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer ds.Release()
		if !op.closed {
			t.Fatalf("expected Collect to close the operator")
		}
		if ds.NumRows() != 3 {
			t.Fatalf("expected 3 rows, got %d", ds.NumRows())
		}
		want := [][]any{{int64(1), "a"}, {int64(2), "b"}, {int64(3), "c"}}
		for r, row := range want {
			for c, v := range row {
				if got := ds.Cell(r, c); got != v {
					t.Fatalf("cell (%d,%d): expected %v, got %v", r, c, v, got)
				}
			}
		}
	})

	t.Run("no batches", func(t *testing.T) {
		ds, err := Collect(&sliceOperator{schema: schema}, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer ds.Release()
		if ds.NumRows() != 0 || ds.NumColumns() != 2 {
			t.Fatalf("expected empty 2 column dataset, got %dx%d", ds.NumRows(), ds.NumColumns())
		}
	})

	t.Run("nil operator", func(t *testing.T) {
		if _, err := Collect(nil, 1); !errors.Is(err, ErrNilOperator) {
			t.Fatalf("expected ErrNilOperator, got %v", err)
		}
	})
}
