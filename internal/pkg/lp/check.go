package lp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Violation describes one unsatisfied bound, constraint or set.
type Violation struct {
	Name   string
	Detail string
}

func (v Violation) String() string {
	return v.Name + ": " + v.Detail
}

// Matrix returns the dense constraint matrix with one row per constraint,
// one column per variable, plus senses and right hand sides.
func (p *Program) Matrix() (*mat.Dense, []Sense, []float64) {
	rows, cols := len(p.constraints), len(p.vars)
	senses := make([]Sense, rows)
	rhs := make([]float64, rows)
	if rows == 0 || cols == 0 {
		return nil, senses, rhs
	}
	a := mat.NewDense(rows, cols, nil)
	for i, c := range p.constraints {
		for _, t := range c.Terms {
			a.Set(i, int(t.Var), t.Coef)
		}
		senses[i] = c.Sense
		rhs[i] = c.RHS
	}
	return a, senses, rhs
}

// ObjectiveVector returns the dense cost vector.
func (p *Program) ObjectiveVector() []float64 {
	c := make([]float64, len(p.vars))
	for id, coef := range p.objective {
		c[id] = coef
	}
	return c
}

// ObjectiveValue evaluates the objective at x.
func (p *Program) ObjectiveValue(x []float64) float64 {
	return floats.Dot(p.ObjectiveVector(), x)
}

// Check evaluates the assignment x (indexed by VarID) against every bound,
// integrality requirement, constraint and SOS2 set. An empty result means x
// is feasible within tol.
func (p *Program) Check(x []float64, tol float64) ([]Violation, error) {
	if len(x) != len(p.vars) {
		return nil, fmt.Errorf("assignment has %d values for %d variables", len(x), len(p.vars))
	}

	var out []Violation
	for _, v := range p.vars {
		val := x[v.ID]
		if val < v.Lower-tol || val > v.Upper+tol {
			out = append(out, Violation{v.Name, fmt.Sprintf("value %g outside [%g, %g]", val, v.Lower, v.Upper)})
		}
		if v.Kind == Binary && math.Abs(val-math.Round(val)) > tol {
			out = append(out, Violation{v.Name, fmt.Sprintf("binary has fractional value %g", val)})
		}
	}

	a, senses, rhs := p.Matrix()
	if a != nil {
		activity := mat.NewVecDense(len(p.constraints), nil)
		activity.MulVec(a, mat.NewVecDense(len(x), x))
		for i, c := range p.constraints {
			lhs := activity.AtVec(i)
			ok := true
			switch senses[i] {
			case LE:
				ok = lhs <= rhs[i]+tol
			case GE:
				ok = lhs >= rhs[i]-tol
			case EQ:
				ok = math.Abs(lhs-rhs[i]) <= tol
			}
			if !ok {
				out = append(out, Violation{c.Name, fmt.Sprintf("%g %s %g does not hold", lhs, senses[i], rhs[i])})
			}
		}
	}

	for _, s := range p.sos {
		if detail := sos2Violation(s, x, tol); detail != "" {
			out = append(out, Violation{s.Name, detail})
		}
	}
	return out, nil
}

func sos2Violation(s SOS2, x []float64, tol float64) string {
	first, count := -1, 0
	for i, v := range s.Vars {
		if math.Abs(x[v]) > tol {
			if first < 0 {
				first = i
			}
			count++
			if count > 2 {
				return "more than two non-zero members"
			}
			if count == 2 && i != first+1 {
				return "non-zero members are not adjacent"
			}
		}
	}
	return ""
}
