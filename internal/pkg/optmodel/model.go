// Package optmodel translates an energysystem graph into an lp.Program and
// lets components register auxiliary variables and constraints on top of it.
package optmodel

import (
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/lp"
)

// Model couples a graph with the program generated from it.
type Model struct {
	pid       uuid.UUID
	graph     *energysystem.Graph
	program   *lp.Program
	steps     int
	stepHours float64

	flowVars    map[*energysystem.Flow][]lp.VarID
	contentVars map[*energysystem.Node][]lp.VarID
}

// Option configures Build.
type Option func(*Model)

// WithStepHours sets the length of one time step. Flows are rates; storage
// balances and costs are multiplied by the step length.
func WithStepHours(h float64) Option {
	return func(m *Model) { m.stepHours = h }
}

// WithPID sets the model id, which otherwise is a fresh uuid.
func WithPID(pid uuid.UUID) Option {
	return func(m *Model) { m.pid = pid }
}

// Build creates flow and content variables, bus balances, converter ratios,
// storage balances and the cost objective.
func Build(g *energysystem.Graph, opts ...Option) (*Model, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	m := &Model{
		pid:         pid,
		graph:       g,
		steps:       g.Steps(),
		stepHours:   1,
		flowVars:    make(map[*energysystem.Flow][]lp.VarID),
		contentVars: make(map[*energysystem.Node][]lp.VarID),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !(m.stepHours > 0) {
		return nil, fmt.Errorf("step length must be positive, got %v", m.stepHours)
	}
	m.program = lp.NewProgram("mtress_" + m.pid.String())

	steps := []func() error{m.addFlows, m.addStorages, m.addBalances, m.addConverters, m.addStorageBalances}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) PID() uuid.UUID             { return m.pid }
func (m *Model) Graph() *energysystem.Graph { return m.graph }
func (m *Model) Program() *lp.Program       { return m.program }
func (m *Model) Steps() int                 { return m.steps }
func (m *Model) StepHours() float64         { return m.stepHours }
func (m *Model) WriteLP(w io.Writer) error  { return m.program.WriteLP(w) }

func flowVarName(f *energysystem.Flow, t int) string {
	return fmt.Sprintf("flow(%s,%s,%d)", f.From.Name(), f.To.Name(), t)
}

func (m *Model) addFlows() error {
	for _, f := range m.graph.Flows() {
		ids := make([]lp.VarID, m.steps)
		for t := 0; t < m.steps; t++ {
			lo, up := f.Bounds(t)
			id, err := m.program.AddVar(flowVarName(f, t), lo, up, lp.Continuous)
			if err != nil {
				return err
			}
			if c := f.CostAt(t); c != 0 {
				if err := m.program.AddObjective(id, c*m.stepHours); err != nil {
					return err
				}
			}
			ids[t] = id
		}
		m.flowVars[f] = ids
	}
	return nil
}

func (m *Model) addStorages() error {
	for _, n := range m.graph.Nodes() {
		if n.Kind() != energysystem.StorageKind {
			continue
		}
		p := n.Storage()
		ids := make([]lp.VarID, m.steps+1)
		for t := 0; t <= m.steps; t++ {
			lo, up := p.MinLevel*p.NominalCapacity, p.MaxLevel*p.NominalCapacity
			if t == 0 && p.InitialLevel != nil {
				lo = *p.InitialLevel * p.NominalCapacity
				up = lo
			}
			id, err := m.program.AddVar(fmt.Sprintf("content(%s,%d)", n.Name(), t), lo, up, lp.Continuous)
			if err != nil {
				return err
			}
			ids[t] = id
		}
		m.contentVars[n] = ids
	}
	return nil
}

func (m *Model) addBalances() error {
	for _, n := range m.graph.Nodes() {
		if n.Kind() != energysystem.BusKind {
			continue
		}
		in, out := m.graph.Inputs(n), m.graph.Outputs(n)
		if len(in)+len(out) == 0 {
			continue
		}
		for t := 0; t < m.steps; t++ {
			terms := make([]lp.Term, 0, len(in)+len(out))
			for _, f := range in {
				terms = append(terms, lp.T(m.flowVars[f][t], 1))
			}
			for _, f := range out {
				terms = append(terms, lp.T(m.flowVars[f][t], -1))
			}
			if err := m.program.AddConstraint(fmt.Sprintf("balance(%s,%d)", n.Name(), t), terms, lp.EQ, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// addConverters ties every flow of a converter to a reference flow:
// flow_ref * factor_f == flow_f * factor_ref. The reference is the first
// flow with a nonzero factor at step t.
func (m *Model) addConverters() error {
	for _, n := range m.graph.Nodes() {
		if n.Kind() != energysystem.ConverterKind {
			continue
		}
		type side struct {
			flow     *energysystem.Flow
			neighbor *energysystem.Node
		}
		var all []side
		for _, f := range m.graph.Inputs(n) {
			all = append(all, side{f, f.From})
		}
		for _, f := range m.graph.Outputs(n) {
			all = append(all, side{f, f.To})
		}

		for t := 0; t < m.steps; t++ {
			ref := -1
			for i, s := range all {
				if n.ConversionFactorAt(s.neighbor, t) != 0 {
					ref = i
					break
				}
			}
			if ref < 0 {
				return fmt.Errorf("converter %s has only zero conversion factors at step %d", n.Name(), t)
			}
			refFactor := n.ConversionFactorAt(all[ref].neighbor, t)
			for i, s := range all {
				if i == ref {
					continue
				}
				terms := []lp.Term{
					lp.T(m.flowVars[s.flow][t], refFactor),
					lp.T(m.flowVars[all[ref].flow][t], -n.ConversionFactorAt(s.neighbor, t)),
				}
				name := fmt.Sprintf("conversion(%s,%s,%d)", n.Name(), s.flow.Name(), t)
				if err := m.program.AddConstraint(name, terms, lp.EQ, 0); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Model) addStorageBalances() error {
	for _, n := range m.graph.Nodes() {
		if n.Kind() != energysystem.StorageKind {
			continue
		}
		p := n.Storage()
		content := m.contentVars[n]
		for t := 0; t < m.steps; t++ {
			terms := []lp.Term{
				lp.T(content[t+1], 1),
				lp.T(content[t], -(1 - p.LossRate)),
			}
			for _, f := range m.graph.Inputs(n) {
				terms = append(terms, lp.T(m.flowVars[f][t], -p.InflowEfficiency*m.stepHours))
			}
			for _, f := range m.graph.Outputs(n) {
				terms = append(terms, lp.T(m.flowVars[f][t], m.stepHours/p.OutflowEfficiency))
			}
			rhs := 0.0
			if p.FixedLossesRelative != nil {
				rhs -= p.FixedLossesRelative[t] * p.NominalCapacity * m.stepHours
			}
			if p.FixedLossesAbsolute != nil {
				rhs -= p.FixedLossesAbsolute[t] * m.stepHours
			}
			if err := m.program.AddConstraint(fmt.Sprintf("storage_balance(%s,%d)", n.Name(), t), terms, lp.EQ, rhs); err != nil {
				return err
			}
		}
		if p.Balanced {
			terms := []lp.Term{lp.T(content[m.steps], 1), lp.T(content[0], -1)}
			if err := m.program.AddConstraint(fmt.Sprintf("storage_cycle(%s)", n.Name()), terms, lp.EQ, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlowVar returns the variable of flow from -> to at step t.
func (m *Model) FlowVar(from, to *energysystem.Node, t int) (lp.VarID, error) {
	f, ok := m.graph.FlowBetween(from, to)
	if !ok {
		return 0, fmt.Errorf("no flow %s->%s", from.Name(), to.Name())
	}
	return m.FlowVarOf(f, t)
}

// FlowVarOf returns the variable of f at step t.
func (m *Model) FlowVarOf(f *energysystem.Flow, t int) (lp.VarID, error) {
	ids, ok := m.flowVars[f]
	if !ok {
		return 0, fmt.Errorf("flow %s is not part of the model", f.Name())
	}
	if t < 0 || t >= len(ids) {
		return 0, fmt.Errorf("step %d outside [0, %d)", t, len(ids))
	}
	return ids[t], nil
}

// ContentVar returns the content of storage at time point t in [0, steps].
// Point t is the start of step t; point t+1 is its end.
func (m *Model) ContentVar(storage *energysystem.Node, t int) (lp.VarID, error) {
	ids, ok := m.contentVars[storage]
	if !ok {
		return 0, fmt.Errorf("node %s is not a storage of the model", storage.Name())
	}
	if t < 0 || t >= len(ids) {
		return 0, fmt.Errorf("time point %d outside [0, %d]", t, len(ids)-1)
	}
	return ids[t], nil
}

// AddVar declares an auxiliary variable.
func (m *Model) AddVar(name string, lower, upper float64, kind lp.VarKind) (lp.VarID, error) {
	return m.program.AddVar(name, lower, upper, kind)
}

// AddConstraint registers an auxiliary constraint.
func (m *Model) AddConstraint(name string, terms []lp.Term, sense lp.Sense, rhs float64) error {
	return m.program.AddConstraint(name, terms, sense, rhs)
}

// AddSOS2 registers a special ordered set of type 2 over vars.
func (m *Model) AddSOS2(name string, vars []lp.VarID, weights []float64) error {
	return m.program.AddSOS2(name, vars, weights)
}

// NominalOf returns the finite nominal value of f or an error.
func NominalOf(f *energysystem.Flow) (float64, error) {
	if !f.Bounded() || math.IsNaN(f.Nominal) {
		return 0, fmt.Errorf("flow %s needs a finite nominal value", f.Name())
	}
	return f.Nominal, nil
}
