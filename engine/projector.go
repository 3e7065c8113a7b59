package engine

import (
	"context"

	"table-projection-go/operators"
	"table-projection-go/settings"
)

// Projector remembers the last dataset and settings it computed for and
// recomputes only when the dataset pointer changes or the settings are no
// longer deep-equal to the previous snapshot. Settings are compared by value
// because callers usually rebuild them on every render.
//
// A Projector is not safe for concurrent use.
type Projector struct {
	engine *Engine

	data     *operators.Dataset
	snapshot settings.ProjectionSettings
	outcome  Outcome
	primed   bool
	computes int
}

func NewProjector(e *Engine) *Projector {
	return &Projector{engine: e}
}

// Update returns the outcome for (ds, s) and whether it had to be computed.
// The returned outcome is owned by the Projector; it stays valid until the
// next recompute or Close.
func (p *Projector) Update(ctx context.Context, ds *operators.Dataset, s settings.ProjectionSettings) (Outcome, bool, error) {
	if p.primed && ds == p.data && s.Equal(p.snapshot) {
		return p.outcome, false, nil
	}
	out, err := p.engine.Compute(ctx, ds, s)
	if err != nil {
		return Outcome{}, false, err
	}
	p.outcome.Release()
	p.data = ds
	p.snapshot = s.Clone()
	p.outcome = out
	p.primed = true
	p.computes++
	return out, true, nil
}

// Computes is the number of recomputations so far.
func (p *Projector) Computes() int { return p.computes }

func (p *Projector) Close() {
	p.outcome.Release()
	p.outcome = Outcome{}
	p.data = nil
	p.primed = false
}
