package engine

import (
	"errors"
	"fmt"

	"table-projection-go/operators"
	"table-projection-go/operators/project"
)

// Conditions a caller is expected to hit during interactive editing. They
// are carried in Outcome.Reason, never returned as the error of Compute.
var (
	ErrUnresolvableColumnReference = errors.New("column reference does not resolve")
	ErrAmbiguousRowDimension       = errors.New("no column is left for the row dimension")
	ErrEmptyVisibleSet             = project.ErrEmptyVisibleSet
)

type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeAllColumnsHidden
	OutcomeCannotPivot
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeAllColumnsHidden:
		return "all_columns_hidden"
	case OutcomeCannotPivot:
		return "cannot_pivot"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is what the rendering layer switches on. Data is set only for
// OutcomeOK; Reason only for OutcomeCannotPivot and OutcomeAllColumnsHidden.
type Outcome struct {
	Kind   OutcomeKind
	Data   *operators.Dataset
	Pivot  bool
	Reason error
}

func ok(data *operators.Dataset, pivoted bool) Outcome {
	return Outcome{Kind: OutcomeOK, Data: data, Pivot: pivoted}
}

func allColumnsHidden() Outcome {
	return Outcome{Kind: OutcomeAllColumnsHidden, Reason: ErrEmptyVisibleSet}
}

func cannotPivot(reason error) Outcome {
	return Outcome{Kind: OutcomeCannotPivot, Reason: reason}
}

func (o Outcome) OK() bool { return o.Kind == OutcomeOK }

// Release frees the projected data, if any.
func (o Outcome) Release() {
	if o.Data != nil {
		o.Data.Release()
	}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeOK:
		return fmt.Sprintf("ok(%d columns, %d rows, pivot=%t)", o.Data.NumColumns(), o.Data.NumRows(), o.Pivot)
	case OutcomeCannotPivot:
		return fmt.Sprintf("cannot_pivot(%v)", o.Reason)
	default:
		return o.Kind.String()
	}
}
