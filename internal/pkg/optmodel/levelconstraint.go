package optmodel

import (
	"fmt"

	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/lp"
)

// LevelAccess is a flow that may only be used while the storage content is
// on the correct side of Level (a fraction of the nominal capacity).
type LevelAccess struct {
	Flow  *energysystem.Flow
	Level float64
}

// StorageLevelConstraint switches flows on and off with the content of
// storage using one binary per access flow and step.
//
// Outputs may carry flow in step t only if content(t) >= level*C.
// Inputs may carry flow in step t only if content(t+1) <= level*C.
func (m *Model) StorageLevelConstraint(name string, storage *energysystem.Node, inputs, outputs []LevelAccess) error {
	if storage.Kind() != energysystem.StorageKind {
		return fmt.Errorf("%s: node %s is not a storage", name, storage.Name())
	}
	capacity := storage.Storage().NominalCapacity

	for _, out := range outputs {
		if err := checkLevel(name, out); err != nil {
			return err
		}
		nominal, err := NominalOf(out.Flow)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for t := 0; t < m.steps; t++ {
			active, err := m.AddVar(fmt.Sprintf("%s:active_output(%g,%d)", name, out.Level, t), 0, 1, lp.Binary)
			if err != nil {
				return err
			}
			content, err := m.ContentVar(storage, t)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			flow, err := m.FlowVarOf(out.Flow, t)
			if err != nil {
				return err
			}
			if err := m.AddConstraint(fmt.Sprintf("%s:output_level(%g,%d)", name, out.Level, t),
				[]lp.Term{lp.T(content, 1), lp.T(active, -out.Level*capacity)}, lp.GE, 0); err != nil {
				return err
			}
			if err := m.AddConstraint(fmt.Sprintf("%s:output_switch(%g,%d)", name, out.Level, t),
				[]lp.Term{lp.T(flow, 1), lp.T(active, -nominal)}, lp.LE, 0); err != nil {
				return err
			}
		}
	}

	for _, in := range inputs {
		if err := checkLevel(name, in); err != nil {
			return err
		}
		nominal, err := NominalOf(in.Flow)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for t := 0; t < m.steps; t++ {
			inactive, err := m.AddVar(fmt.Sprintf("%s:inactive_input(%g,%d)", name, in.Level, t), 0, 1, lp.Binary)
			if err != nil {
				return err
			}
			content, err := m.ContentVar(storage, t+1)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			flow, err := m.FlowVarOf(in.Flow, t)
			if err != nil {
				return err
			}
			if err := m.AddConstraint(fmt.Sprintf("%s:input_level(%g,%d)", name, in.Level, t),
				[]lp.Term{lp.T(content, 1), lp.T(inactive, -capacity)}, lp.LE, in.Level*capacity); err != nil {
				return err
			}
			if err := m.AddConstraint(fmt.Sprintf("%s:input_switch(%g,%d)", name, in.Level, t),
				[]lp.Term{lp.T(flow, 1), lp.T(inactive, nominal)}, lp.LE, nominal); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkLevel(name string, a LevelAccess) error {
	if a.Level < 0 || a.Level > 1 {
		return fmt.Errorf("%s: level %v of %s outside [0, 1]", name, a.Level, a.Flow.Name())
	}
	return nil
}
