// Package lp is a small mixed integer modelling layer: variables, linear
// constraints, special ordered sets of type 2 and a linear objective. It
// does not solve anything; programs are exported for an external solver.
package lp

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// VarKind is the domain of a variable.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
)

// VarID indexes a variable inside its Program.
type VarID int

// Var is a decision variable with box bounds.
type Var struct {
	ID    VarID
	Name  string
	Lower float64
	Upper float64
	Kind  VarKind
}

// Term is coef * var.
type Term struct {
	Var  VarID
	Coef float64
}

// T is shorthand for a Term literal.
func T(v VarID, coef float64) Term {
	return Term{Var: v, Coef: coef}
}

// Sense is the relation of a constraint.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "="
	}
}

// Constraint is sum(terms) sense rhs.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// SOS2 restricts at most two adjacent members of Vars to be non-zero.
// Weights order the members and must be strictly increasing.
type SOS2 struct {
	Name    string
	Vars    []VarID
	Weights []float64
}

// Program accumulates a minimisation problem.
type Program struct {
	name        string
	vars        []Var
	varIndex    map[string]VarID
	constraints []Constraint
	conIndex    map[string]int
	sos         []SOS2
	sosIndex    map[string]int
	objective   map[VarID]float64
}

// NewProgram returns an empty program.
func NewProgram(name string) *Program {
	return &Program{
		name:      name,
		varIndex:  make(map[string]VarID),
		conIndex:  make(map[string]int),
		sosIndex:  make(map[string]int),
		objective: make(map[VarID]float64),
	}
}

// Name of the program.
func (p *Program) Name() string { return p.name }

// AddVar declares a variable. Names are unique; binary variables get [0,1].
func (p *Program) AddVar(name string, lower, upper float64, kind VarKind) (VarID, error) {
	if name == "" {
		return 0, fmt.Errorf("variable name must not be empty")
	}
	if _, ok := p.varIndex[name]; ok {
		return 0, fmt.Errorf("variable %q already exists", name)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) {
		return 0, fmt.Errorf("variable %q has NaN bound", name)
	}
	if kind == Binary {
		lower, upper = 0, 1
	}
	if lower > upper {
		return 0, fmt.Errorf("variable %q has lower bound %v above upper bound %v", name, lower, upper)
	}
	id := VarID(len(p.vars))
	p.vars = append(p.vars, Var{ID: id, Name: name, Lower: lower, Upper: upper, Kind: kind})
	p.varIndex[name] = id
	return id, nil
}

// NumVars is the number of declared variables.
func (p *Program) NumVars() int { return len(p.vars) }

// Var returns the variable with the given id.
func (p *Program) Var(id VarID) Var { return p.vars[id] }

// Vars returns a copy of all variables in declaration order.
func (p *Program) Vars() []Var {
	out := make([]Var, len(p.vars))
	copy(out, p.vars)
	return out
}

// VarByName looks up a variable.
func (p *Program) VarByName(name string) (VarID, bool) {
	id, ok := p.varIndex[name]
	return id, ok
}

// SetBounds tightens or relaxes the bounds of a variable.
func (p *Program) SetBounds(id VarID, lower, upper float64) error {
	if err := p.checkVar(id); err != nil {
		return err
	}
	if lower > upper {
		return fmt.Errorf("variable %q: lower bound %v above upper bound %v", p.vars[id].Name, lower, upper)
	}
	p.vars[id].Lower = lower
	p.vars[id].Upper = upper
	return nil
}

// Fix pins a variable to value.
func (p *Program) Fix(id VarID, value float64) error {
	return p.SetBounds(id, value, value)
}

func (p *Program) checkVar(id VarID) error {
	if id < 0 || int(id) >= len(p.vars) {
		return fmt.Errorf("unknown variable id %d", id)
	}
	return nil
}

// AddConstraint registers sum(terms) sense rhs under a unique name.
// Repeated variables are merged and zero coefficients dropped.
func (p *Program) AddConstraint(name string, terms []Term, sense Sense, rhs float64) error {
	if name == "" {
		return fmt.Errorf("constraint name must not be empty")
	}
	if _, ok := p.conIndex[name]; ok {
		return fmt.Errorf("constraint %q already exists", name)
	}
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return fmt.Errorf("constraint %q has non-finite right hand side %v", name, rhs)
	}
	merged, err := p.merge(terms)
	if err != nil {
		return fmt.Errorf("constraint %q: %w", name, err)
	}
	if len(merged) == 0 {
		return fmt.Errorf("constraint %q has no terms", name)
	}
	p.conIndex[name] = len(p.constraints)
	p.constraints = append(p.constraints, Constraint{Name: name, Terms: merged, Sense: sense, RHS: rhs})
	return nil
}

func (p *Program) merge(terms []Term) ([]Term, error) {
	coefs := make(map[VarID]float64, len(terms))
	order := make([]VarID, 0, len(terms))
	for _, t := range terms {
		if err := p.checkVar(t.Var); err != nil {
			return nil, err
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return nil, fmt.Errorf("variable %q has non-finite coefficient", p.vars[t.Var].Name)
		}
		if _, seen := coefs[t.Var]; !seen {
			order = append(order, t.Var)
		}
		coefs[t.Var] += t.Coef
	}
	out := make([]Term, 0, len(order))
	for _, id := range order {
		if c := coefs[id]; c != 0 {
			out = append(out, Term{Var: id, Coef: c})
		}
	}
	return out, nil
}

// NumConstraints is the number of linear constraints.
func (p *Program) NumConstraints() int { return len(p.constraints) }

// Constraints returns all constraints in insertion order.
func (p *Program) Constraints() []Constraint {
	out := make([]Constraint, len(p.constraints))
	copy(out, p.constraints)
	return out
}

// Constraint looks up a constraint by name.
func (p *Program) Constraint(name string) (Constraint, bool) {
	i, ok := p.conIndex[name]
	if !ok {
		return Constraint{}, false
	}
	return p.constraints[i], true
}

// AddSOS2 registers a special ordered set of type 2. A nil weights slice
// orders members by position.
func (p *Program) AddSOS2(name string, vars []VarID, weights []float64) error {
	if name == "" {
		return fmt.Errorf("sos2 name must not be empty")
	}
	if _, ok := p.sosIndex[name]; ok {
		return fmt.Errorf("sos2 %q already exists", name)
	}
	if len(vars) < 2 {
		return fmt.Errorf("sos2 %q needs at least two members, got %d", name, len(vars))
	}
	if weights == nil {
		weights = make([]float64, len(vars))
		for i := range weights {
			weights[i] = float64(i + 1)
		}
	}
	if len(weights) != len(vars) {
		return fmt.Errorf("sos2 %q has %d members but %d weights", name, len(vars), len(weights))
	}
	seen := make(map[VarID]bool, len(vars))
	for i, v := range vars {
		if err := p.checkVar(v); err != nil {
			return fmt.Errorf("sos2 %q: %w", name, err)
		}
		if seen[v] {
			return fmt.Errorf("sos2 %q lists variable %q twice", name, p.vars[v].Name)
		}
		seen[v] = true
		if i > 0 && !(weights[i] > weights[i-1]) {
			return fmt.Errorf("sos2 %q weights must be strictly increasing", name)
		}
	}
	set := SOS2{Name: name, Vars: append([]VarID(nil), vars...), Weights: append([]float64(nil), weights...)}
	p.sosIndex[name] = len(p.sos)
	p.sos = append(p.sos, set)
	return nil
}

// SOS2Sets returns all registered sets.
func (p *Program) SOS2Sets() []SOS2 {
	out := make([]SOS2, len(p.sos))
	copy(out, p.sos)
	return out
}

// AddObjective adds coef * v to the minimised objective.
func (p *Program) AddObjective(v VarID, coef float64) error {
	if err := p.checkVar(v); err != nil {
		return err
	}
	if math.IsNaN(coef) || math.IsInf(coef, 0) {
		return fmt.Errorf("objective coefficient for %q is not finite", p.vars[v].Name)
	}
	p.objective[v] += coef
	return nil
}

// Objective returns the non-zero objective terms ordered by variable id.
func (p *Program) Objective() []Term {
	out := make([]Term, 0, len(p.objective))
	for id, c := range p.objective {
		if c != 0 {
			out = append(out, Term{Var: id, Coef: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Var < out[j].Var })
	return out
}

// ConstraintsWithPrefix returns constraints whose names start with prefix.
func (p *Program) ConstraintsWithPrefix(prefix string) []Constraint {
	var out []Constraint
	for _, c := range p.constraints {
		if strings.HasPrefix(c.Name, prefix) {
			out = append(out, c)
		}
	}
	return out
}
