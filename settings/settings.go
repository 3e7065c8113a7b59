package settings

import (
	"fmt"
	"io"
	"reflect"

	"table-projection-go/Expr"

	"gopkg.in/yaml.v3"
)

// setting ids, same keys the visualization settings use
const (
	KeyPivot       = "table.pivot"
	KeyPivotColumn = "table.pivot_column"
	KeyCellColumn  = "table.cell_column"
	KeyColumns     = "table.columns"
)

// ColumnSetting is one entry of the visible column list.
type ColumnSetting struct {
	Name     string `yaml:"name" json:"name"`
	FieldRef string `yaml:"field_ref,omitempty" json:"field_ref,omitempty"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
}

func (c ColumnSetting) Ref() Expr.ColumnRef {
	return Expr.ColumnRef{Name: c.Name, FieldRef: c.FieldRef}
}

// ProjectionSettings is the resolved snapshot the engine consumes.
type ProjectionSettings struct {
	PivotEnabled   bool            `yaml:"table.pivot" json:"table.pivot"`
	PivotColumn    *string         `yaml:"table.pivot_column,omitempty" json:"table.pivot_column,omitempty"`
	CellColumn     *string         `yaml:"table.cell_column,omitempty" json:"table.cell_column,omitempty"`
	VisibleColumns []ColumnSetting `yaml:"table.columns,omitempty" json:"table.columns,omitempty"`
}

func StringPtr(s string) *string { return &s }

// Clone returns a deep copy so a cached snapshot cannot be mutated by the
// caller that produced it.
func (s ProjectionSettings) Clone() ProjectionSettings {
	out := ProjectionSettings{PivotEnabled: s.PivotEnabled}
	if s.PivotColumn != nil {
		out.PivotColumn = StringPtr(*s.PivotColumn)
	}
	if s.CellColumn != nil {
		out.CellColumn = StringPtr(*s.CellColumn)
	}
	if s.VisibleColumns != nil {
		out.VisibleColumns = make([]ColumnSetting, len(s.VisibleColumns))
		copy(out.VisibleColumns, s.VisibleColumns)
	}
	return out
}

// Equal is value equality over the whole snapshot.
func (s ProjectionSettings) Equal(other ProjectionSettings) bool {
	return reflect.DeepEqual(s, other)
}

// EnabledCount is the number of enabled entries in the visible column list.
func (s ProjectionSettings) EnabledCount() int {
	n := 0
	for _, c := range s.VisibleColumns {
		if c.Enabled {
			n++
		}
	}
	return n
}

func (s ProjectionSettings) String() string {
	deref := func(p *string) string {
		if p == nil {
			return "<nil>"
		}
		return *p
	}
	return fmt.Sprintf("ProjectionSettings(pivot=%t, pivot_column=%s, cell_column=%s, columns=%d/%d)",
		s.PivotEnabled, deref(s.PivotColumn), deref(s.CellColumn), s.EnabledCount(), len(s.VisibleColumns))
}

// File is the on-disk settings document: stored setting values plus optional
// per-column semantic overrides for sources that carry no metadata.
type File struct {
	Structured bool                      `yaml:"structured"`
	Columns    map[string]ColumnOverride `yaml:"columns"`
	Stored     map[string]yaml.Node      `yaml:"settings"`
}

type ColumnOverride struct {
	Semantic    string `yaml:"semantic"`
	DisplayName string `yaml:"display_name"`
	Visibility  string `yaml:"visibility"`
	FieldRef    string `yaml:"field_ref"`
}

// Decode reads a settings document. Stored values are decoded into the
// types the table definitions expect; unknown keys are kept as-is.
func Decode(r io.Reader) (*File, Values, error) {
	var f File
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&f); err != nil {
		if err == io.EOF {
			return &File{}, Values{}, nil
		}
		return nil, nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	stored := make(Values, len(f.Stored))
	for key, node := range f.Stored {
		node := node
		var err error
		switch key {
		case KeyPivot:
			var v bool
			err = node.Decode(&v)
			stored[key] = v
		case KeyPivotColumn, KeyCellColumn:
			var v string
			err = node.Decode(&v)
			stored[key] = v
		case KeyColumns:
			var v []ColumnSetting
			err = node.Decode(&v)
			stored[key] = v
		default:
			var v any
			err = node.Decode(&v)
			stored[key] = v
		}
		if err != nil {
			return nil, nil, fmt.Errorf("setting %q: %w", key, err)
		}
	}
	return &f, stored, nil
}
