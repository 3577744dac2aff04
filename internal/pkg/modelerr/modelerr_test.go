package modelerr

import (
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
)

func TestConfigurationErrorMessage(t *testing.T) {
	err := Configurationf("house:heat", "empty level set")
	assert.Error(t, err, "configuration error in house:heat: empty level set")
	assert.Assert(t, IsConfiguration(err))
	assert.Assert(t, !IsInfeasible(err))
}

func TestConfigurationErrorSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("building location: %w", Configurationf("house", "bad"))
	assert.Assert(t, IsConfiguration(err))

	var cfgErr *ConfigurationError
	assert.Assert(t, errors.As(err, &cfgErr))
	assert.Equal(t, cfgErr.Component, "house")
}

func TestWrapConfiguration(t *testing.T) {
	assert.NilError(t, WrapConfiguration("x", nil))

	cause := errors.New("length mismatch")
	err := WrapConfiguration("house:demand", cause)
	assert.Assert(t, IsConfiguration(err))
	assert.Assert(t, errors.Is(err, cause))

	same := Configurationf("house:demand", "bad")
	assert.Equal(t, WrapConfiguration("house:demand", same), same)
}

func TestFromStatus(t *testing.T) {
	assert.NilError(t, FromStatus(StatusOptimal, ""))

	err := FromStatus(StatusInfeasible, "no schedule")
	assert.Assert(t, IsInfeasible(err))
	assert.Error(t, err, "model is infeasible: no schedule")

	err = FromStatus(StatusUnbounded, "ray")
	assert.Assert(t, !IsInfeasible(err))
	var solverErr *SolverError
	assert.Assert(t, errors.As(err, &solverErr))
	assert.Equal(t, solverErr.Status, StatusUnbounded)
}
