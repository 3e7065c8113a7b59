package project

import (
	"errors"
	"fmt"

	"table-projection-go/Expr"
	"table-projection-go/operators"
	"table-projection-go/settings"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	ErrEmptyVisibleSet       = errors.New("every column is hidden")
	ErrNilDataset            = errors.New("dataset is nil")
	ErrProjectIndex          = errors.New("projection index out of range")
	ErrEmptyColumnsToProject = errors.New("no columns passed in")
	ErrProjectColumnNotFound = errors.New("invalid column passed in to be pruned")
)

// ProjectColumns keeps the enabled entries of visible, in settings order.
// Entries that no longer resolve against ds are dropped. The same column may
// appear more than once if it is enabled more than once. Columns are shared
// with ds, not copied.
//
// When nothing survives, ErrEmptyVisibleSet is returned.
func ProjectColumns(ds *operators.Dataset, visible []settings.ColumnSetting) (*operators.Dataset, error) {
	if ds == nil {
		return nil, ErrNilDataset
	}
	resolver := Expr.NewResolver(ds.Schema())
	indexes := make([]int, 0, len(visible))
	for _, cs := range visible {
		if !cs.Enabled {
			continue
		}
		idx, ok := resolver.Resolve(cs.Ref())
		if !ok {
			continue
		}
		indexes = append(indexes, idx)
	}
	if len(indexes) == 0 {
		return nil, ErrEmptyVisibleSet
	}
	return ProjectIndexes(ds, indexes)
}

// ProjectIndexes builds a dataset from the given source positions. Output
// order follows indexes.
func ProjectIndexes(ds *operators.Dataset, indexes []int) (*operators.Dataset, error) {
	if ds == nil {
		return nil, ErrNilDataset
	}
	fields := make([]arrow.Field, 0, len(indexes))
	cols := make([]arrow.Array, 0, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= ds.NumColumns() {
			return nil, ErrProjectIndex
		}
		fields = append(fields, ds.Schema().Field(idx))
		cols = append(cols, ds.Column(idx))
	}
	// NewDataset retains every column, so duplicates get one reference each
	return operators.NewDataset(arrow.NewSchema(fields, nil), cols)
}

// ProjectSchemaFilterDown keeps only the named columns, in keepCols order.
// Unlike ProjectColumns it fails on an unknown name, since the names come
// straight from the caller rather than from stored settings.
func ProjectSchemaFilterDown(ds *operators.Dataset, keepCols ...string) (*operators.Dataset, error) {
	if len(keepCols) == 0 {
		return nil, ErrEmptyColumnsToProject
	}
	resolver := Expr.NewResolver(ds.Schema())
	indexes := make([]int, 0, len(keepCols))
	for _, name := range keepCols {
		idx, ok := resolver.ResolveName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrProjectColumnNotFound, Expr.ErrUnresolvedColumn(Expr.NewColumnRef(name)))
		}
		indexes = append(indexes, idx)
	}
	return ProjectIndexes(ds, indexes)
}
