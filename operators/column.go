package operators

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
)

// SemanticType classifies a column for the settings defaults.
type SemanticType string

const (
	SemanticNone      SemanticType = ""
	SemanticMetric    SemanticType = "metric"
	SemanticDimension SemanticType = "dimension"
)

// Visibility mirrors the column visibility type reported by the query layer.
type Visibility string

const (
	VisibilityNormal      Visibility = "normal"
	VisibilityDetailsOnly Visibility = "details-only"
)

var (
	ErrUnknownSemantic = func(s string) error {
		return fmt.Errorf("unknown semantic %q", s)
	}
	ErrUnknownVisibility = func(s string) error {
		return fmt.Errorf("unknown visibility %q", s)
	}
)

// ParseSemantic accepts "", "metric" and "dimension".
func ParseSemantic(s string) (SemanticType, error) {
	switch t := SemanticType(s); t {
	case SemanticNone, SemanticMetric, SemanticDimension:
		return t, nil
	default:
		return SemanticNone, ErrUnknownSemantic(s)
	}
}

// ParseVisibility accepts "", "normal" and "details-only".
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(s); v {
	case "", VisibilityNormal, VisibilityDetailsOnly:
		return v, nil
	default:
		return "", ErrUnknownVisibility(s)
	}
}

// field metadata keys
const (
	metaDisplayName = "tableproj.display_name"
	metaSemantic    = "tableproj.semantic"
	metaVisibility  = "tableproj.visibility"
	metaFieldRef    = "tableproj.field_ref"
)

// ColumnMeta describes one dataset column. Name is the stable identifier used
// by settings; FieldRef is the optional qualified reference (for example
// "aggregation:0") used when the name alone is ambiguous.
type ColumnMeta struct {
	Name        string
	DisplayName string
	Semantic    SemanticType
	Visibility  Visibility
	FieldRef    string
	Type        arrow.DataType
}

func (c ColumnMeta) IsMetric() bool    { return c.Semantic == SemanticMetric }
func (c ColumnMeta) IsDimension() bool { return c.Semantic == SemanticDimension }

// Title is what a renderer shows in the header.
func (c ColumnMeta) Title() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// Field encodes the meta as an arrow field; the non-arrow attributes travel
// in the field metadata.
func (c ColumnMeta) Field() arrow.Field {
	keys := make([]string, 0, 4)
	vals := make([]string, 0, 4)
	add := func(k, v string) {
		if v != "" {
			keys = append(keys, k)
			vals = append(vals, v)
		}
	}
	add(metaDisplayName, c.DisplayName)
	add(metaSemantic, string(c.Semantic))
	add(metaVisibility, string(c.Visibility))
	add(metaFieldRef, c.FieldRef)
	f := arrow.Field{
		Name:     c.Name,
		Type:     c.Type,
		Nullable: true,
	}
	if len(keys) > 0 {
		f.Metadata = arrow.NewMetadata(keys, vals)
	}
	return f
}

// MetaFromField is the inverse of ColumnMeta.Field.
func MetaFromField(f arrow.Field) ColumnMeta {
	c := ColumnMeta{
		Name: f.Name,
		Type: f.Type,
	}
	lookup := func(k string) string {
		if idx := f.Metadata.FindKey(k); idx >= 0 {
			return f.Metadata.Values()[idx]
		}
		return ""
	}
	c.DisplayName = lookup(metaDisplayName)
	c.Semantic = SemanticType(lookup(metaSemantic))
	c.Visibility = Visibility(lookup(metaVisibility))
	c.FieldRef = lookup(metaFieldRef)
	return c
}

// InferSemantic is used by file sources that carry no semantic information:
// numeric columns are metrics and everything else is a dimension.
func InferSemantic(dt arrow.DataType) SemanticType {
	if IsNumeric(dt) {
		return SemanticMetric
	}
	return SemanticDimension
}

func IsNumeric(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64,
		arrow.DECIMAL128, arrow.DECIMAL256:
		return true
	default:
		return false
	}
}

// SchemaFromMetas builds the arrow schema for a list of column metas.
func SchemaFromMetas(metas []ColumnMeta) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(metas))
	for _, m := range metas {
		fields = append(fields, m.Field())
	}
	return arrow.NewSchema(fields, nil)
}
