// Package physics collects the pure parameter functions consumed by
// technologies: heat pump COP, compression work, gas densities and tank losses.
// Energies are in kWh, temperatures in °C unless a name says Kelvin,
// pressures in bar.
package physics

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	ZeroCelsius      = 273.15 // K
	SecondsPerHour   = 3600.0
	H2OHeatCapacity  = 4.182 // kJ/(kg*K)
	H2ODensity       = 1000  // kg/m^3
	IdealGasConstant = 8.314 // J/(mol*K)
	H2MolarMass      = 0.00201588
	TCInsulation     = 0.04 // W/(m*K)

	// Redlich-Kwong parameters for hydrogen.
	rkA = 0.1428
	rkB = 1.8208e-5

	minTemperatureLift = 1e-3
)

func CelsiusToKelvin(c float64) float64 { return c + ZeroCelsius }
func KelvinToCelsius(k float64) float64 { return k - ZeroCelsius }
func BarToPascal(bar float64) float64   { return bar * 1e5 }

// KJToKWh converts kilojoule to kilowatt hours.
func KJToKWh(kj float64) float64 { return kj / SecondsPerHour }

// MeanLogarithmicTemperature as used by the Lorenz model. Inputs in Kelvin.
func MeanLogarithmicTemperature(tHigh, tLow float64) float64 {
	if tHigh == tLow {
		return tHigh
	}
	return (tLow - tHigh) / math.Log(tLow/tHigh)
}

// LorenzCOP is the ideal COP of a heat pump lifting from tIn to tOut (Kelvin).
func LorenzCOP(tIn, tOut float64) float64 {
	return tOut / math.Max(tOut-tIn, minTemperatureLift)
}

// COP scales the Lorenz COP so that the B0/W35 operating point yields cop035.
// Both temperatures are in Kelvin.
func COP(tIn, tOut, cop035 float64) float64 {
	cpf := cop035 / LorenzCOP(CelsiusToKelvin(0), CelsiusToKelvin(35))
	return cpf * LorenzCOP(tIn, tOut)
}

// IsothermalCompressionEnergy is the work in kWh to compress 1 kg of an ideal
// gas with gas constant r (J/(kg*K)) from pIn to pOut at tempC.
func IsothermalCompressionEnergy(pIn, pOut, tempC, r float64) float64 {
	t := CelsiusToKelvin(tempC)
	return r * t * math.Log(pOut/pIn) / (SecondsPerHour * 1000)
}

// HydrogenDensity solves the Redlich-Kwong equation of state by fixed point
// iteration and returns kg/m^3.
func HydrogenDensity(pressure, tempC float64) float64 {
	p := BarToPascal(pressure)
	t := CelsiusToKelvin(tempC)

	vSpec := 10.0
	for i := 0; i < 10; i++ {
		vSpec = IdealGasConstant*t/(p+rkA/(math.Sqrt(t)*vSpec*(vSpec+rkB))) + rkB
	}
	return H2MolarMass / vSpec
}

// IdealGasDensity returns kg/m^3 for a gas with specific gas constant r.
func IdealGasDensity(pressure, tempC, r float64) float64 {
	return BarToPascal(pressure) / (r * CelsiusToKelvin(tempC))
}

// Losses of a cylindrical storage tank per time step. LossRate and
// FixedRelative are fractions of the capacity; FixedAbsolute is in kWh.
type Losses struct {
	LossRate      float64
	FixedRelative []float64
	FixedAbsolute []float64
}

// StorageLosses follows the stratified tank model: uValue in W/(m^2*K),
// diameter in m, temperatures in °C, stepHours the length of one step.
func StorageLosses(uValue, diameter, tempH, tempC float64, tempEnv []float64, stepHours float64) Losses {
	dt := stepHours * SecondsPerHour
	rhoC := H2ODensity * H2OHeatCapacity * 1000 // J/(m^3*K)

	losses := Losses{
		LossRate:      4 * uValue / (diameter * rhoC) * dt,
		FixedRelative: make([]float64, len(tempEnv)),
		FixedAbsolute: make([]float64, len(tempEnv)),
	}
	for i, env := range tempEnv {
		losses.FixedRelative[i] = 4 * uValue * (tempC - env) / (diameter * rhoC * (tempH - tempC)) * dt
		losses.FixedAbsolute[i] = 0.25 * uValue * math.Pi * diameter * diameter * (tempH + tempC - 2*env) * dt
	}
	// J -> kWh
	floats.Scale(1/(SecondsPerHour*1000), losses.FixedAbsolute)
	return losses
}
