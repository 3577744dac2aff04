package storage

import (
	"fmt"
	"math"

	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/lp"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"golang.org/x/exp/slices"
)

// StrictGate allows an output only while content(t) >= Value and an input
// only while content(t+1) <= Value.
func StrictGate(m *optmodel.Model, name string, storage *energysystem.Node, points []AccessPoint) error {
	capacity := storage.Storage().NominalCapacity
	var inputs, outputs []optmodel.LevelAccess
	for _, p := range points {
		access := optmodel.LevelAccess{Flow: p.Flow, Level: p.Value / capacity}
		if p.Direction == Input {
			inputs = append(inputs, access)
		} else {
			outputs = append(outputs, access)
		}
	}
	return m.StorageLevelConstraint(name, storage, inputs, outputs)
}

// Breakpoint is one vertex of the piecewise linear content position.
type Breakpoint struct {
	Level float64
	Value float64
}

// Label names the breakpoint in variable names.
func (b Breakpoint) Label() string {
	switch {
	case math.IsInf(b.Level, -1):
		return "empty"
	case math.IsInf(b.Level, 1):
		return "full"
	}
	return fmt.Sprintf("%g", b.Level)
}

// Breakpoints returns one breakpoint per distinct access level, framed by an
// empty breakpoint (level -Inf, value 0) and a full breakpoint (level +Inf,
// value capacity) when the levels do not reach those values.
func Breakpoints(points []AccessPoint, capacity float64) []Breakpoint {
	values := make(map[float64]float64)
	var levels []float64
	for _, p := range points {
		if !slices.Contains(levels, p.Level) {
			levels = append(levels, p.Level)
			values[p.Level] = p.Value
		}
	}
	slices.Sort(levels)
	out := make([]Breakpoint, 0, len(levels)+2)
	for _, l := range levels {
		out = append(out, Breakpoint{Level: l, Value: values[l]})
	}
	if len(out) == 0 || out[0].Value > 0 {
		out = append([]Breakpoint{{Level: math.Inf(-1), Value: 0}}, out...)
	}
	if out[len(out)-1].Value < capacity {
		out = append(out, Breakpoint{Level: math.Inf(1), Value: capacity})
	}
	return out
}

// FlexibleGate writes content(t) as a convex combination of two adjacent
// breakpoints with weights w[t,k] and bounds every access flow by the
// weight on its side of the level:
//
//	input at l:  flow(t) <= P * sum_{k: level_k <= l} w[t,k]
//	output at l: flow(t) <= P * sum_{k: level_k >= l} w[t,k]
//
// Names follow <name>:<kind>:<level>:<t>.
func FlexibleGate(m *optmodel.Model, name string, storage *energysystem.Node, points []AccessPoint) error {
	bps := Breakpoints(points, storage.Storage().NominalCapacity)
	if len(bps) < 2 {
		return fmt.Errorf("%s: flexible gate needs at least two breakpoints", name)
	}

	for t := 0; t < m.Steps(); t++ {
		weights := make([]lp.VarID, len(bps))
		for k, bp := range bps {
			id, err := m.AddVar(fmt.Sprintf("%s:weight:%s:%d", name, bp.Label(), t), 0, 1, lp.Continuous)
			if err != nil {
				return err
			}
			weights[k] = id
		}

		content, err := m.ContentVar(storage, t)
		if err != nil {
			return err
		}
		normalization := make([]lp.Term, len(bps))
		interpolation := make([]lp.Term, 0, len(bps)+1)
		for k, bp := range bps {
			normalization[k] = lp.T(weights[k], 1)
			interpolation = append(interpolation, lp.T(weights[k], bp.Value))
		}
		interpolation = append(interpolation, lp.T(content, -1))
		if err := m.AddConstraint(fmt.Sprintf("%s:normalization:%d", name, t), normalization, lp.EQ, 1); err != nil {
			return err
		}
		if err := m.AddConstraint(fmt.Sprintf("%s:interpolation:%d", name, t), interpolation, lp.EQ, 0); err != nil {
			return err
		}
		if err := m.AddSOS2(fmt.Sprintf("%s:sos2:%d", name, t), weights, nil); err != nil {
			return err
		}

		for _, p := range points {
			nominal, err := optmodel.NominalOf(p.Flow)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			flow, err := m.FlowVarOf(p.Flow, t)
			if err != nil {
				return err
			}
			terms := []lp.Term{lp.T(flow, 1)}
			for k, bp := range bps {
				if (p.Direction == Input && bp.Level <= p.Level) || (p.Direction == Output && bp.Level >= p.Level) {
					terms = append(terms, lp.T(weights[k], -nominal))
				}
			}
			cname := fmt.Sprintf("%s:%s:%g:%d", name, p.Direction, p.Level, t)
			if err := m.AddConstraint(cname, terms, lp.LE, 0); err != nil {
				return err
			}
		}
	}
	return nil
}
