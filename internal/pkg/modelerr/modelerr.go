// Package modelerr holds the error taxonomy shared by model construction and
// the solver boundary.
package modelerr

import (
	"errors"
	"fmt"
)

// ConfigurationError is fatal and aborts model construction.
type ConfigurationError struct {
	Component string
	Msg       string
	Err       error
}

// Configurationf builds a ConfigurationError for the named component.
func Configurationf(component string, format string, args ...interface{}) error {
	return &ConfigurationError{Component: component, Msg: fmt.Sprintf(format, args...)}
}

// WrapConfiguration attaches a component name to an underlying cause.
func WrapConfiguration(component string, err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) && cfgErr.Component == component {
		return err
	}
	return &ConfigurationError{Component: component, Msg: err.Error(), Err: err}
}

func (e *ConfigurationError) Error() string {
	if e.Component == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Msg)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// SolverStatus is the terminal state reported by an external solver.
type SolverStatus int

const (
	StatusUnknown SolverStatus = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	StatusError
)

func (s SolverStatus) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// InfeasibleModelError reports that the solver found no feasible schedule.
// It is passed upward unmodified; no repair is attempted.
type InfeasibleModelError struct {
	Status SolverStatus
	Detail string
}

func (e *InfeasibleModelError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("model is %s", e.Status)
	}
	return fmt.Sprintf("model is %s: %s", e.Status, e.Detail)
}

// IsInfeasible reports whether err carries an InfeasibleModelError.
func IsInfeasible(err error) bool {
	var infErr *InfeasibleModelError
	return errors.As(err, &infErr)
}

// SolverError is returned for any non-optimal status other than infeasibility.
type SolverError struct {
	Status SolverStatus
	Detail string
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("solver finished with status %s: %s", e.Status, e.Detail)
}

// FromStatus maps a solver status onto the taxonomy. Optimal yields nil.
func FromStatus(status SolverStatus, detail string) error {
	switch status {
	case StatusOptimal:
		return nil
	case StatusInfeasible:
		return &InfeasibleModelError{Status: status, Detail: detail}
	default:
		return &SolverError{Status: status, Detail: detail}
	}
}
