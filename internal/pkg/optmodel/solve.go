package optmodel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/lp"
	"github.com/ohowland/mtress/internal/pkg/modelerr"
)

// Result is what an external solver hands back.
type Result struct {
	Status    modelerr.SolverStatus
	Detail    string
	Objective float64
	Values    []float64
}

// Solver runs an external optimiser on a complete program. Implementations
// block until the solver terminates or ctx is cancelled.
type Solver interface {
	Solve(ctx context.Context, p *lp.Program) (Result, error)
}

// Solve hands the program to s. Non-optimal statuses become errors from the
// modelerr taxonomy; the result is returned in every case.
func (m *Model) Solve(ctx context.Context, s Solver) (Result, error) {
	res, err := s.Solve(ctx, m.program)
	if err != nil {
		return res, fmt.Errorf("solver failed: %w", err)
	}
	if err := modelerr.FromStatus(res.Status, res.Detail); err != nil {
		return res, err
	}
	if len(res.Values) != m.program.NumVars() {
		return res, fmt.Errorf("solver returned %d values for %d variables", len(res.Values), m.program.NumVars())
	}
	return res, nil
}

// FlowValues extracts the schedule of f from a result.
func (m *Model) FlowValues(res Result, f *energysystem.Flow) ([]float64, error) {
	out := make([]float64, m.steps)
	for t := range out {
		id, err := m.FlowVarOf(f, t)
		if err != nil {
			return nil, err
		}
		out[t] = res.Values[id]
	}
	return out, nil
}

// Summary is the persisted description of a built model.
type Summary struct {
	PID         uuid.UUID `json:"pid" bson:"pid"`
	Name        string    `json:"name" bson:"name"`
	Created     time.Time `json:"created" bson:"created"`
	Steps       int       `json:"steps" bson:"steps"`
	Nodes       int       `json:"nodes" bson:"nodes"`
	Flows       int       `json:"flows" bson:"flows"`
	Variables   int       `json:"variables" bson:"variables"`
	Binaries    int       `json:"binaries" bson:"binaries"`
	Constraints int       `json:"constraints" bson:"constraints"`
	SOS2        int       `json:"sos2" bson:"sos2"`
	Components  []string  `json:"components" bson:"components"`
}

// Summary counts the model's parts.
func (m *Model) Summary(name string, components []string) Summary {
	binaries := 0
	for _, v := range m.program.Vars() {
		if v.Kind == lp.Binary {
			binaries++
		}
	}
	return Summary{
		PID:         m.pid,
		Name:        name,
		Created:     time.Now().UTC(),
		Steps:       m.steps,
		Nodes:       len(m.graph.Nodes()),
		Flows:       len(m.graph.Flows()),
		Variables:   m.program.NumVars(),
		Binaries:    binaries,
		Constraints: m.program.NumConstraints(),
		SOS2:        len(m.program.SOS2Sets()),
		Components:  append([]string(nil), components...),
	}
}
