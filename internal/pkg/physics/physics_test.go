package physics

import (
	"math"
	"testing"

	"gotest.tools/v3/assert"
)

func TestCOPReferencePoint(t *testing.T) {
	cop := COP(CelsiusToKelvin(0), CelsiusToKelvin(35), 4.6)
	assert.Assert(t, math.Abs(cop-4.6) < 1e-9, "cop %v", cop)
}

func TestCOPDecreasesWithLift(t *testing.T) {
	low := COP(CelsiusToKelvin(10), CelsiusToKelvin(35), 4.6)
	high := COP(CelsiusToKelvin(10), CelsiusToKelvin(60), 4.6)
	assert.Assert(t, low > high)
}

func TestLorenzCOPNoLift(t *testing.T) {
	cop := LorenzCOP(300, 300)
	assert.Equal(t, cop, 300/minTemperatureLift)
}

func TestIsothermalCompressionEnergy(t *testing.T) {
	assert.Equal(t, IsothermalCompressionEnergy(10, 10, 20, Hydrogen.GasConstant), 0.0)

	// 4124.2 * 293.15 * ln(2) / 3.6e6
	want := 4124.2 * 293.15 * math.Ln2 / 3.6e6
	got := IsothermalCompressionEnergy(30, 60, 20, Hydrogen.GasConstant)
	assert.Assert(t, math.Abs(got-want) < 1e-12)
}

func TestHydrogenDensityCloseToIdealAtLowPressure(t *testing.T) {
	rk := HydrogenDensity(1, 25)
	ideal := IdealGasDensity(1, 25, Hydrogen.GasConstant)
	assert.Assert(t, math.Abs(rk-ideal)/ideal < 0.01, "rk %v ideal %v", rk, ideal)
}

func TestHydrogenDensityMonotone(t *testing.T) {
	prev := 0.0
	for _, p := range []float64{1, 30, 70, 200, 350} {
		d := HydrogenDensity(p, 25)
		assert.Assert(t, d > prev, "density at %v bar", p)
		prev = d
	}
}

func TestGasByName(t *testing.T) {
	g, err := GasByName("natural_gas")
	assert.NilError(t, err)
	assert.Equal(t, g, NaturalGas)

	_, err = GasByName("steam")
	assert.ErrorContains(t, err, "unknown gas")
}

func TestStorageLosses(t *testing.T) {
	l := StorageLosses(0.04/0.1, 1.0, 60, 20, []float64{10, 20}, 1)
	assert.Assert(t, l.LossRate > 0 && l.LossRate < 1)
	assert.Equal(t, len(l.FixedRelative), 2)
	assert.Assert(t, l.FixedRelative[0] > l.FixedRelative[1])
	assert.Equal(t, l.FixedRelative[1], 0.0)
	assert.Assert(t, l.FixedAbsolute[0] > l.FixedAbsolute[1])
}
