package rpc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"table-projection-go/engine"
	"table-projection-go/operators"
	"table-projection-go/settings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"google.golang.org/protobuf/types/known/structpb"
)

const dateLayout = "2006-01-02"

// request and response field names
const (
	fieldColumns    = "columns"
	fieldRows       = "rows"
	fieldSettings   = "settings"
	fieldStructured = "structured"
	fieldRequestID  = "request_id"
	fieldOutcome    = "outcome"
	fieldPivot      = "pivot"
	fieldReason     = "reason"
)

var (
	ErrMalformedRequest = func(info string) error {
		return fmt.Errorf("malformed projection request: %s", info)
	}
	errNotIntegral = errors.New("number is not integral")
	errOutOfRange  = errors.New("number is out of range for the column type")
)

// Request is the decoded form of a Project call.
type Request struct {
	Data       *operators.Dataset
	Structured bool
	Stored     settings.Values
}

// DecodeRequest builds the dataset and stored settings of a request. The
// caller owns the returned dataset.
func DecodeRequest(mem memory.Allocator, msg *structpb.Struct) (*Request, error) {
	fields := msg.GetFields()
	metas, err := decodeColumns(fields[fieldColumns].GetListValue())
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(metas, fields[fieldRows].GetListValue())
	if err != nil {
		return nil, err
	}
	stored, err := decodeSettings(fields[fieldSettings].GetStructValue())
	if err != nil {
		return nil, err
	}
	ds, err := operators.NewDatasetFromRows(mem, metas, rows)
	if err != nil {
		return nil, err
	}
	return &Request{
		Data:       ds,
		Structured: fields[fieldStructured].GetBoolValue(),
		Stored:     stored,
	}, nil
}

func decodeColumns(list *structpb.ListValue) ([]operators.ColumnMeta, error) {
	if list == nil || len(list.GetValues()) == 0 {
		return nil, ErrMalformedRequest("no columns")
	}
	metas := make([]operators.ColumnMeta, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		col := v.GetStructValue()
		if col == nil {
			return nil, ErrMalformedRequest(fmt.Sprintf("column %d is not an object", i))
		}
		str := func(k string) string { return col.GetFields()[k].GetStringValue() }
		name := str("name")
		if name == "" {
			return nil, ErrMalformedRequest(fmt.Sprintf("column %d has no name", i))
		}
		dt, err := operators.ArrowTypeFromString(str("type"))
		if err != nil {
			return nil, ErrMalformedRequest(fmt.Sprintf("column %s: %v", name, err))
		}
		semantic, err := operators.ParseSemantic(str("semantic"))
		if err != nil {
			return nil, ErrMalformedRequest(fmt.Sprintf("column %s: %v", name, err))
		}
		visibility, err := operators.ParseVisibility(str("visibility"))
		if err != nil {
			return nil, ErrMalformedRequest(fmt.Sprintf("column %s: %v", name, err))
		}
		meta := operators.ColumnMeta{
			Name:        name,
			DisplayName: str("display_name"),
			Semantic:    semantic,
			Visibility:  visibility,
			FieldRef:    str("field_ref"),
			Type:        dt,
		}
		if meta.Semantic == operators.SemanticNone {
			meta.Semantic = operators.InferSemantic(dt)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func decodeRows(metas []operators.ColumnMeta, list *structpb.ListValue) ([][]any, error) {
	rows := make([][]any, 0, len(list.GetValues()))
	for r, v := range list.GetValues() {
		cells := v.GetListValue().GetValues()
		if len(cells) != len(metas) {
			return nil, operators.ErrRowLengthMismatch(r, len(cells), len(metas))
		}
		row := make([]any, len(cells))
		for c, cell := range cells {
			val, err := cellFromValue(metas[c], cell)
			if err != nil {
				return nil, ErrMalformedRequest(fmt.Sprintf("row %d column %s: %v", r, metas[c].Name, err))
			}
			row[c] = val
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// structpb carries every number as a float64. Cells are never coerced: a
// value of the wrong kind for its column is rejected.
func cellFromValue(meta operators.ColumnMeta, v *structpb.Value) (any, error) {
	switch kind := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		switch meta.Type.ID() {
		case arrow.INT32:
			if err := checkIntegral(f, math.MinInt32, math.MaxInt32+1); err != nil {
				return nil, err
			}
			return int32(f), nil
		case arrow.INT64:
			// float64 cannot hold MaxInt64, 1<<63 is the first value out of range
			if err := checkIntegral(f, math.MinInt64, 1<<63); err != nil {
				return nil, err
			}
			return int64(f), nil
		case arrow.FLOAT64:
			return f, nil
		}
	case *structpb.Value_BoolValue:
		if meta.Type.ID() == arrow.BOOL {
			return kind.BoolValue, nil
		}
	case *structpb.Value_StringValue:
		switch meta.Type.ID() {
		case arrow.STRING:
			return kind.StringValue, nil
		case arrow.DATE32:
			return time.Parse(dateLayout, kind.StringValue)
		case arrow.TIMESTAMP:
			return time.Parse(time.RFC3339Nano, kind.StringValue)
		}
	}
	return nil, errWrongKind(v, meta.Type)
}

// checkIntegral accepts whole numbers in [lo, hi).
func checkIntegral(f, lo, hi float64) error {
	if f != math.Trunc(f) {
		return errNotIntegral
	}
	if f < lo || f >= hi {
		return errOutOfRange
	}
	return nil
}

func errWrongKind(v *structpb.Value, dt arrow.DataType) error {
	var got string
	switch v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		got = "number"
	case *structpb.Value_BoolValue:
		got = "bool"
	case *structpb.Value_StringValue:
		got = "string"
	case *structpb.Value_ListValue:
		got = "list"
	case *structpb.Value_StructValue:
		got = "object"
	}
	return fmt.Errorf("a %s cannot be stored in a %s column", got, operators.TypeName(dt))
}

func decodeSettings(s *structpb.Struct) (settings.Values, error) {
	stored := settings.Values{}
	if s == nil {
		return stored, nil
	}
	for key, v := range s.GetFields() {
		switch key {
		case settings.KeyPivot:
			b, ok := v.GetKind().(*structpb.Value_BoolValue)
			if !ok {
				return nil, ErrMalformedRequest(key + " is not a bool")
			}
			stored[key] = b.BoolValue
		case settings.KeyPivotColumn, settings.KeyCellColumn:
			str, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return nil, ErrMalformedRequest(key + " is not a string")
			}
			stored[key] = str.StringValue
		case settings.KeyColumns:
			list := v.GetListValue()
			if list == nil {
				return nil, ErrMalformedRequest(key + " is not a list")
			}
			cols := make([]settings.ColumnSetting, 0, len(list.GetValues()))
			for _, entry := range list.GetValues() {
				f := entry.GetStructValue().GetFields()
				cols = append(cols, settings.ColumnSetting{
					Name:     f["name"].GetStringValue(),
					FieldRef: f["field_ref"].GetStringValue(),
					Enabled:  f["enabled"].GetBoolValue(),
				})
			}
			stored[key] = cols
		default:
			stored[key] = v.AsInterface()
		}
	}
	return stored, nil
}

// EncodeOutcome renders an outcome as the response message.
func EncodeOutcome(requestID string, out engine.Outcome) (*structpb.Struct, error) {
	resp := map[string]any{
		fieldRequestID: requestID,
		fieldOutcome:   out.Kind.String(),
		fieldPivot:     out.Pivot,
	}
	if out.Reason != nil {
		resp[fieldReason] = out.Reason.Error()
	}
	if out.Data != nil {
		metas := out.Data.Metas()
		columns := make([]any, 0, len(metas))
		for _, m := range metas {
			columns = append(columns, map[string]any{
				"name":         m.Name,
				"display_name": m.Title(),
				"semantic":     string(m.Semantic),
				"field_ref":    m.FieldRef,
				"type":         operators.TypeName(m.Type),
			})
		}
		rows := make([]any, 0, out.Data.NumRows())
		for r := 0; r < out.Data.NumRows(); r++ {
			row := out.Data.Row(r)
			cells := make([]any, len(row))
			for c, v := range row {
				cells[c] = wireValue(v, metas[c].Type)
			}
			rows = append(rows, cells)
		}
		resp[fieldColumns] = columns
		resp[fieldRows] = rows
	}
	return structpb.NewStruct(resp)
}

// wireValue picks the layout of a time cell from its column type, so a
// midnight timestamp stays a timestamp.
func wireValue(v any, dt arrow.DataType) any {
	switch x := v.(type) {
	case time.Time:
		if dt.ID() == arrow.DATE32 {
			return x.Format(dateLayout)
		}
		return x.Format(time.RFC3339Nano)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return v
	}
}
