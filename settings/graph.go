package settings

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"table-projection-go/operators"
)

var (
	ErrDuplicateSetting  = func(id string) error { return fmt.Errorf("setting %q is defined twice", id) }
	ErrUnknownDependency = func(id, dep string) error {
		return fmt.Errorf("setting %q depends on unknown setting %q", id, dep)
	}
	ErrDependencyCycle = func(ids []string) error {
		return fmt.Errorf("settings dependency cycle between: %s", strings.Join(ids, ", "))
	}
	ErrNoDataset = errors.New("settings input has no dataset")
)

// Values maps setting ids to their values.
type Values map[string]any

func (v Values) Bool(id string) bool {
	b, _ := v[id].(bool)
	return b
}

// String returns the value as a string and whether it was set.
func (v Values) String(id string) (string, bool) {
	s, ok := v[id].(string)
	return s, ok
}

func (v Values) Columns(id string) []ColumnSetting {
	cs, _ := v[id].([]ColumnSetting)
	return cs
}

// Input is what the setting functions read besides other settings.
type Input struct {
	Data *operators.Dataset
	// Structured is true when the dataset comes from a structured (GUI built)
	// query rather than native SQL.
	Structured bool
}

// Definition declares one setting. Every function receives the values of
// the settings resolved so far, which always include everything listed in
// DependsOn.
type Definition struct {
	ID        string
	DependsOn []string
	Default   func(in Input, resolved Values) any
	Hidden    func(in Input, resolved Values) bool
	// Valid decides whether a stored value is still usable. A nil Valid
	// accepts any stored value.
	Valid func(in Input, stored any) bool
}

// Graph is an evaluation order over a set of definitions.
type Graph struct {
	defs  map[string]Definition
	order []string
}

// NewGraph checks the definitions and topologically orders them. Among
// settings whose dependencies are satisfied, declaration order wins.
func NewGraph(defs ...Definition) (*Graph, error) {
	g := &Graph{defs: make(map[string]Definition, len(defs))}
	position := make(map[string]int, len(defs))
	for i, d := range defs {
		if _, dup := g.defs[d.ID]; dup {
			return nil, ErrDuplicateSetting(d.ID)
		}
		g.defs[d.ID] = d
		position[d.ID] = i
	}

	indegree := make(map[string]int, len(defs))
	dependents := make(map[string][]string, len(defs))
	for _, d := range defs {
		for _, dep := range d.DependsOn {
			if _, ok := g.defs[dep]; !ok {
				return nil, ErrUnknownDependency(d.ID, dep)
			}
			indegree[d.ID]++
			dependents[dep] = append(dependents[dep], d.ID)
		}
	}

	ready := make([]string, 0, len(defs))
	for _, d := range defs {
		if indegree[d.ID] == 0 {
			ready = append(ready, d.ID)
		}
	}
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		g.order = append(g.order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
			}
		}
	}
	if len(g.order) != len(defs) {
		var stuck []string
		for _, d := range defs {
			if indegree[d.ID] > 0 {
				stuck = append(stuck, d.ID)
			}
		}
		return nil, ErrDependencyCycle(stuck)
	}
	return g, nil
}

// Order is the evaluation order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Resolved is the outcome of one Resolve pass.
type Resolved struct {
	Values Values
	Hidden map[string]bool
	// Defaulted lists the settings whose stored value was missing or invalid.
	Defaulted map[string]bool
}

// Resolve evaluates every setting once, in dependency order.
func (g *Graph) Resolve(in Input, stored Values) (*Resolved, error) {
	if in.Data == nil {
		return nil, ErrNoDataset
	}
	res := &Resolved{
		Values:    make(Values, len(g.order)),
		Hidden:    make(map[string]bool, len(g.order)),
		Defaulted: make(map[string]bool, len(g.order)),
	}
	for _, id := range g.order {
		def := g.defs[id]
		value, ok := stored[id]
		if ok && def.Valid != nil && !def.Valid(in, value) {
			ok = false
		}
		if !ok {
			res.Defaulted[id] = true
			value = nil
			if def.Default != nil {
				value = def.Default(in, res.Values)
			}
		}
		if value != nil {
			res.Values[id] = value
		}
		if def.Hidden != nil {
			res.Hidden[id] = def.Hidden(in, res.Values)
		}
	}
	return res, nil
}
