package energysystem

import (
	"fmt"
	"math"
)

// Flow is a directed edge carrying a non-negative quantity per time step.
// Profiles (Fix, Max, Min) are relative to Nominal.
type Flow struct {
	From    *Node
	To      *Node
	Nominal float64
	Cost    []float64
	Fix     []float64
	Max     []float64
	Min     []float64
}

// Name is "from->to".
func (f *Flow) Name() string {
	return f.From.Name() + "->" + f.To.Name()
}

// Bounded reports whether the flow has a finite nominal value.
func (f *Flow) Bounded() bool {
	return !math.IsInf(f.Nominal, 1)
}

// Bounds returns the absolute lower and upper bound at step t.
func (f *Flow) Bounds(t int) (float64, float64) {
	if f.Fix != nil {
		v := f.Fix[t] * f.Nominal
		return v, v
	}
	lower, upper := 0.0, f.Nominal
	if f.Max != nil {
		upper = f.Max[t] * f.Nominal
	}
	if f.Min != nil {
		lower = f.Min[t] * f.Nominal
	}
	return lower, upper
}

// CostAt returns the variable cost per unit at step t.
func (f *Flow) CostAt(t int) float64 {
	if f.Cost == nil {
		return 0
	}
	return f.Cost[t]
}

// FlowOption configures a flow at creation.
type FlowOption func(*Flow)

// WithNominal bounds the flow by v.
func WithNominal(v float64) FlowOption {
	return func(f *Flow) { f.Nominal = v }
}

// WithCost sets the variable cost per time step.
func WithCost(cost []float64) FlowOption {
	return func(f *Flow) { f.Cost = cost }
}

// WithConstantCost sets the same variable cost for every step.
func WithConstantCost(cost float64) FlowOption {
	return func(f *Flow) { f.Cost = []float64{cost} }
}

// WithFix pins the flow to profile * nominal.
func WithFix(profile []float64) FlowOption {
	return func(f *Flow) { f.Fix = profile }
}

// WithMax bounds the flow by profile * nominal.
func WithMax(profile []float64) FlowOption {
	return func(f *Flow) { f.Max = profile }
}

// WithMin bounds the flow from below by profile * nominal.
func WithMin(profile []float64) FlowOption {
	return func(f *Flow) { f.Min = profile }
}

// AddFlow connects from -> to. Without WithNominal the flow is unbounded.
func (g *Graph) AddFlow(from, to *Node, opts ...FlowOption) (*Flow, error) {
	if from == nil || to == nil {
		return nil, fmt.Errorf("flow endpoints must not be nil")
	}
	if _, exists := g.byPID[from.pid]; !exists {
		return nil, fmt.Errorf("start node %s does not exist in graph", from.Name())
	}
	if _, exists := g.byPID[to.pid]; !exists {
		return nil, fmt.Errorf("end node %s does not exist in graph", to.Name())
	}
	if from == to {
		return nil, fmt.Errorf("node %s cannot feed itself", from.Name())
	}
	if from.kind == SinkKind {
		return nil, fmt.Errorf("sink %s cannot have outputs", from.Name())
	}
	if to.kind == SourceKind {
		return nil, fmt.Errorf("source %s cannot have inputs", to.Name())
	}
	if _, exists := g.FlowBetween(from, to); exists {
		return nil, fmt.Errorf("flow %s->%s already exists", from.Name(), to.Name())
	}

	f := &Flow{From: from, To: to, Nominal: math.Inf(1)}
	for _, opt := range opts {
		opt(f)
	}
	if err := g.validateFlow(f); err != nil {
		return nil, fmt.Errorf("flow %s: %w", f.Name(), err)
	}

	g.adjacencyList[from.pid] = append(g.adjacencyList[from.pid], f)
	g.inbound[to.pid] = append(g.inbound[to.pid], f)
	g.flows = append(g.flows, f)
	return f, nil
}

func (g *Graph) validateFlow(f *Flow) error {
	if math.IsNaN(f.Nominal) || f.Nominal < 0 {
		return fmt.Errorf("nominal value %v must be non-negative", f.Nominal)
	}
	if len(f.Cost) == 1 && g.steps > 1 {
		c := f.Cost[0]
		f.Cost = make([]float64, g.steps)
		for i := range f.Cost {
			f.Cost[i] = c
		}
	}
	for name, s := range map[string][]float64{"cost": f.Cost, "fix": f.Fix, "max": f.Max, "min": f.Min} {
		if s != nil && len(s) != g.steps {
			return fmt.Errorf("%s has length %d, expected %d", name, len(s), g.steps)
		}
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s contains non-finite value %v", name, v)
			}
		}
	}
	if (f.Fix != nil || f.Max != nil || f.Min != nil) && !f.Bounded() {
		return fmt.Errorf("relative profiles need a finite nominal value")
	}
	for t := 0; t < g.steps; t++ {
		lo, up := f.Bounds(t)
		if lo < 0 || lo > up {
			return fmt.Errorf("invalid bounds [%v, %v] at step %d", lo, up, t)
		}
	}
	return nil
}
