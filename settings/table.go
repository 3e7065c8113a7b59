package settings

import (
	"table-projection-go/Expr"
	"table-projection-go/operators"
)

// TableDefinitions are the projection settings of the table visualization.
func TableDefinitions() []Definition {
	return []Definition{
		{
			ID: KeyPivot,
			Hidden: func(in Input, _ Values) bool {
				return in.Data.NumColumns() != 3
			},
			Default: func(in Input, _ Values) any {
				metas := in.Data.Metas()
				return len(metas) == 3 &&
					in.Structured &&
					countMetas(metas, operators.ColumnMeta.IsMetric) == 1 &&
					countMetas(metas, operators.ColumnMeta.IsDimension) == 2
			},
		},
		{
			ID:        KeyPivotColumn,
			DependsOn: []string{KeyPivot},
			Default: func(in Input, _ Values) any {
				best, bestCard := -1, 0
				for i, m := range in.Data.Metas() {
					if !m.IsDimension() {
						continue
					}
					card := operators.Cardinality(in.Data.Column(i))
					if best < 0 || card < bestCard {
						best, bestCard = i, card
					}
				}
				if best < 0 {
					return nil
				}
				return in.Data.ColumnMeta(best).Name
			},
			Hidden: func(_ Input, resolved Values) bool {
				return !resolved.Bool(KeyPivot)
			},
		},
		{
			ID:        KeyCellColumn,
			DependsOn: []string{KeyPivot, KeyPivotColumn},
			Default: func(in Input, _ Values) any {
				for _, m := range in.Data.Metas() {
					if m.IsMetric() {
						return m.Name
					}
				}
				return nil
			},
			Hidden: func(in Input, resolved Values) bool {
				return !resolved.Bool(KeyPivot) ||
					countMetas(in.Data.Metas(), operators.ColumnMeta.IsMetric) < 2
			},
		},
		{
			ID:        KeyColumns,
			DependsOn: []string{KeyPivot},
			Default: func(in Input, _ Values) any {
				metas := in.Data.Metas()
				cols := make([]ColumnSetting, 0, len(metas))
				for _, m := range metas {
					cols = append(cols, ColumnSetting{
						Name:     m.Name,
						FieldRef: m.FieldRef,
						Enabled:  m.Visibility != operators.VisibilityDetailsOnly,
					})
				}
				return cols
			},
			Valid: func(in Input, stored any) bool {
				cols, ok := stored.([]ColumnSetting)
				if !ok || cols == nil {
					return false
				}
				refs := make([]Expr.ColumnRef, 0, len(cols))
				for _, c := range cols {
					refs = append(refs, c.Ref())
				}
				return Expr.NewResolver(in.Data.Schema()).AllResolve(refs...)
			},
			Hidden: func(_ Input, resolved Values) bool {
				return resolved.Bool(KeyPivot)
			},
		},
	}
}

// TableGraph is the graph over TableDefinitions.
func TableGraph() *Graph {
	g, err := NewGraph(TableDefinitions()...)
	if err != nil {
		// the table definitions are static
		panic(err)
	}
	return g
}

// FromResolved converts resolved values into the engine snapshot.
func FromResolved(res *Resolved) ProjectionSettings {
	out := ProjectionSettings{
		PivotEnabled: res.Values.Bool(KeyPivot),
	}
	if s, ok := res.Values.String(KeyPivotColumn); ok {
		out.PivotColumn = StringPtr(s)
	}
	if s, ok := res.Values.String(KeyCellColumn); ok {
		out.CellColumn = StringPtr(s)
	}
	if cols := res.Values.Columns(KeyColumns); cols != nil {
		out.VisibleColumns = make([]ColumnSetting, len(cols))
		copy(out.VisibleColumns, cols)
	}
	return out
}

func countMetas(metas []operators.ColumnMeta, pred func(operators.ColumnMeta) bool) int {
	n := 0
	for _, m := range metas {
		if pred(m) {
			n++
		}
	}
	return n
}
