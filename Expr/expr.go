package Expr

import (
	"fmt"

	"table-projection-go/operators"

	"github.com/apache/arrow/go/v17/arrow"
)

var (
	ErrUnresolvedColumn = func(ref ColumnRef) error {
		return fmt.Errorf("column %s not found", ref)
	}
)

// ColumnRef is how settings point at a column. Name is matched exactly;
// FieldRef is the qualified fallback ("aggregation:0", "field:12") used when
// the column name itself is not stable.
type ColumnRef struct {
	Name     string `yaml:"name" json:"name"`
	FieldRef string `yaml:"field_ref,omitempty" json:"field_ref,omitempty"`
}

func NewColumnRef(name string) ColumnRef {
	return ColumnRef{Name: name}
}

func (c ColumnRef) String() string {
	if c.FieldRef != "" {
		return fmt.Sprintf("Column(%s, ref=%s)", c.Name, c.FieldRef)
	}
	return fmt.Sprintf("Column(%s)", c.Name)
}

// Resolver maps column references to positions in one schema. Build it once
// per dataset; lookups are O(1).
type Resolver struct {
	width     int
	byName    map[string]int
	byFieldRf map[string]int
}

func NewResolver(schema *arrow.Schema) *Resolver {
	fields := schema.Fields()
	r := &Resolver{
		width:     len(fields),
		byName:    make(map[string]int, len(fields)),
		byFieldRf: make(map[string]int),
	}
	// first occurrence wins for both maps
	for i, f := range fields {
		if _, ok := r.byName[f.Name]; !ok {
			r.byName[f.Name] = i
		}
		ref := operators.MetaFromField(f).FieldRef
		if ref == "" {
			continue
		}
		if _, ok := r.byFieldRf[ref]; !ok {
			r.byFieldRf[ref] = i
		}
	}
	return r
}

// Resolve returns the column index for ref, or false when nothing in range
// matches.
func (r *Resolver) Resolve(ref ColumnRef) (int, bool) {
	idx, ok := r.byName[ref.Name]
	if !ok && ref.FieldRef != "" {
		idx, ok = r.byFieldRf[ref.FieldRef]
	}
	if !ok || idx < 0 || idx >= r.width {
		return -1, false
	}
	return idx, true
}

// ResolveName is Resolve for a bare column name.
func (r *Resolver) ResolveName(name string) (int, bool) {
	return r.Resolve(ColumnRef{Name: name})
}

// AllResolve reports whether every reference resolves. Used to decide if a
// stored column list is still valid for the dataset.
func (r *Resolver) AllResolve(refs ...ColumnRef) bool {
	for _, ref := range refs {
		if _, ok := r.Resolve(ref); !ok {
			return false
		}
	}
	return true
}

func (r *Resolver) Width() int { return r.width }
