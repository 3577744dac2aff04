package physics

import (
	"fmt"
	"strings"
)

// Gas describes a gaseous energy carrier.
type Gas struct {
	Name        string
	Energy      float64 // kWh/kg
	GasConstant float64 // J/(kg*K)
}

var (
	Hydrogen   = Gas{Name: "Hydrogen", Energy: 33.3, GasConstant: 4124.2}
	NaturalGas = Gas{Name: "NaturalGas", Energy: 11, GasConstant: 518.28}
	Biogas     = Gas{Name: "Biogas", Energy: 6.6, GasConstant: 518.28}
)

// Gases lists the predefined gases.
func Gases() []Gas {
	return []Gas{Hydrogen, NaturalGas, Biogas}
}

// GasByName resolves a predefined gas, ignoring case and underscores.
func GasByName(name string) (Gas, error) {
	key := normalize(name)
	for _, g := range Gases() {
		if normalize(g.Name) == key {
			return g, nil
		}
	}
	return Gas{}, fmt.Errorf("unknown gas %q", name)
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

// Density returns kg/m^3. Hydrogen uses Redlich-Kwong, others the ideal gas law.
func (g Gas) Density(pressure, tempC float64) float64 {
	if g.Name == Hydrogen.Name {
		return HydrogenDensity(pressure, tempC)
	}
	return IdealGasDensity(pressure, tempC, g.GasConstant)
}

// CompressionEnergy is the isothermal work in kWh per kWh of gas moved.
func (g Gas) CompressionEnergy(pIn, pOut, tempC float64) float64 {
	return IsothermalCompressionEnergy(pIn, pOut, tempC, g.GasConstant) / g.Energy
}
