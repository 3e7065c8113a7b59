package settings

import (
	"fmt"

	"table-projection-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
)

var ErrInvalidOverride = func(column, info string) error {
	return fmt.Errorf("column override %q: %s", column, info)
}

// ApplyOverrides returns ds with the per-column overrides of a settings file
// applied to its metadata. Columns are shared, not copied. Overrides naming
// a column the dataset does not have are ignored.
func ApplyOverrides(ds *operators.Dataset, overrides map[string]ColumnOverride) (*operators.Dataset, error) {
	if ds == nil {
		return nil, ErrNoDataset
	}
	fields := make([]arrow.Field, ds.NumColumns())
	for i, meta := range ds.Metas() {
		if o, ok := overrides[meta.Name]; ok {
			var err error
			if meta, err = o.apply(meta); err != nil {
				return nil, err
			}
		}
		fields[i] = meta.Field()
	}
	return operators.NewDataset(arrow.NewSchema(fields, nil), ds.Columns())
}

func (o ColumnOverride) apply(meta operators.ColumnMeta) (operators.ColumnMeta, error) {
	semantic, err := operators.ParseSemantic(o.Semantic)
	if err != nil {
		return meta, ErrInvalidOverride(meta.Name, err.Error())
	}
	if semantic != operators.SemanticNone {
		meta.Semantic = semantic
	}
	visibility, err := operators.ParseVisibility(o.Visibility)
	if err != nil {
		return meta, ErrInvalidOverride(meta.Name, err.Error())
	}
	if visibility != "" {
		meta.Visibility = visibility
	}
	if o.DisplayName != "" {
		meta.DisplayName = o.DisplayName
	}
	if o.FieldRef != "" {
		meta.FieldRef = o.FieldRef
	}
	return meta, nil
}
