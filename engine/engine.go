package engine

import (
	"context"
	"errors"
	"fmt"

	"table-projection-go/Expr"
	"table-projection-go/operators"
	"table-projection-go/operators/pivot"
	"table-projection-go/operators/project"
	"table-projection-go/settings"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var ErrNilDataset = errors.New("engine: dataset is nil")

type Options struct {
	Allocator memory.Allocator
	// MaxPivotColumns is handed to pivot.Options; 0 is no cap.
	MaxPivotColumns int
	Logger          log.Logger
}

// Engine derives the dataset to display from a dataset and a settings
// snapshot. It keeps no state between calls.
type Engine struct {
	opts   Options
	logger log.Logger
}

func New(opts Options) *Engine {
	if opts.Allocator == nil {
		opts.Allocator = memory.DefaultAllocator
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Engine{opts: opts, logger: log.With(logger, "component", "engine")}
}

// Compute returns the display outcome. The error is reserved for contract
// violations (nil dataset, context already done, internal arrow failures);
// stale or incomplete settings are reported through the Outcome.
func (e *Engine) Compute(ctx context.Context, ds *operators.Dataset, s settings.ProjectionSettings) (Outcome, error) {
	if ds == nil {
		return Outcome{}, ErrNilDataset
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if s.PivotEnabled {
		return e.pivot(ctx, ds, s)
	}
	out, err := project.ProjectColumns(ds, s.VisibleColumns)
	if err != nil {
		if errors.Is(err, project.ErrEmptyVisibleSet) {
			level.Debug(e.logger).Log("msg", "all columns hidden", "entries", len(s.VisibleColumns))
			return allColumnsHidden(), nil
		}
		return Outcome{}, err
	}
	level.Debug(e.logger).Log("msg", "projected columns", "columns", out.NumColumns(), "rows", out.NumRows())
	return ok(out, false), nil
}

func (e *Engine) pivot(ctx context.Context, ds *operators.Dataset, s settings.ProjectionSettings) (Outcome, error) {
	rowDim, pivotDim, metric, reason := PivotRoles(ds, s)
	if reason != nil {
		level.Info(e.logger).Log("msg", "cannot pivot", "reason", reason)
		return cannotPivot(reason), nil
	}
	out, err := pivot.Pivot(ctx, ds, rowDim, pivotDim, metric, pivot.Options{
		Allocator:       e.opts.Allocator,
		MaxPivotColumns: e.opts.MaxPivotColumns,
	})
	if err != nil {
		if errors.Is(err, pivot.ErrTooManyPivotColumns) {
			level.Info(e.logger).Log("msg", "cannot pivot", "reason", err)
			return cannotPivot(err), nil
		}
		return Outcome{}, err
	}
	level.Debug(e.logger).Log("msg", "pivoted", "columns", out.NumColumns(), "rows", out.NumRows())
	return ok(out, true), nil
}

// PivotRoles works out the row dimension, pivot dimension and metric column
// positions for s. The row dimension is the first column that plays neither
// of the other two roles. A non-nil reason means the dataset cannot be
// pivoted with these settings.
func PivotRoles(ds *operators.Dataset, s settings.ProjectionSettings) (rowDim, pivotDim, metric int, reason error) {
	resolver := Expr.NewResolver(ds.Schema())
	lookup := func(role string, name *string) (int, error) {
		if name == nil {
			return -1, fmt.Errorf("%w: no %s configured", ErrUnresolvableColumnReference, role)
		}
		idx, found := resolver.ResolveName(*name)
		if !found {
			return -1, fmt.Errorf("%w: %s %q", ErrUnresolvableColumnReference, role, *name)
		}
		return idx, nil
	}
	var err error
	if pivotDim, err = lookup("pivot column", s.PivotColumn); err != nil {
		return -1, -1, -1, err
	}
	if metric, err = lookup("cell column", s.CellColumn); err != nil {
		return -1, -1, -1, err
	}
	if pivotDim == metric {
		return -1, -1, -1, fmt.Errorf("%w: pivot and cell column are both %q", pivot.ErrInvalidPivotIndex, *s.PivotColumn)
	}
	rowDim = -1
	for i := 0; i < ds.NumColumns(); i++ {
		if i != pivotDim && i != metric {
			rowDim = i
			break
		}
	}
	if rowDim < 0 {
		return -1, -1, -1, ErrAmbiguousRowDimension
	}
	return rowDim, pivotDim, metric, nil
}
