package operators

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
)

// ArrowTypeFromString maps the type names used by the wire format and the
// settings file to the arrow types NewDatasetFromRows can build.
func ArrowTypeFromString(s string) (arrow.DataType, error) {
	switch s {
	case "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	case "int32":
		return arrow.PrimitiveTypes.Int32, nil
	case "int64", "int":
		return arrow.PrimitiveTypes.Int64, nil
	case "float64", "float":
		return arrow.PrimitiveTypes.Float64, nil
	case "string", "utf8":
		return arrow.BinaryTypes.String, nil
	case "date", "date32":
		return arrow.FixedWidthTypes.Date32, nil
	case "timestamp":
		return arrow.FixedWidthTypes.Timestamp_us, nil
	}
	return nil, fmt.Errorf("unsupported arrow type: %s", s)
}

// TypeName is the inverse of ArrowTypeFromString. Types it has no name for
// fall back to the arrow name.
func TypeName(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.BOOL:
		return "bool"
	case arrow.INT32:
		return "int32"
	case arrow.INT64:
		return "int64"
	case arrow.FLOAT64:
		return "float64"
	case arrow.STRING:
		return "string"
	case arrow.DATE32:
		return "date"
	case arrow.TIMESTAMP:
		return "timestamp"
	}
	return dt.Name()
}
