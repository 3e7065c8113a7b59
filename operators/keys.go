package operators

import (
	"github.com/apache/arrow/go/v17/arrow"
)

// CellKey identifies a distinct value within one column. Null is its own key
// and never collides with a string that happens to read "(null)".
type CellKey struct {
	Valid bool
	Value string
}

func KeyAt(arr arrow.Array, i int) CellKey {
	if arr.IsNull(i) {
		return CellKey{}
	}
	return CellKey{Valid: true, Value: arr.ValueStr(i)}
}

// Cardinality is the number of distinct values in arr, null included.
func Cardinality(arr arrow.Array) int {
	seen := make(map[CellKey]struct{})
	for i := 0; i < arr.Len(); i++ {
		seen[KeyAt(arr, i)] = struct{}{}
	}
	return len(seen)
}
