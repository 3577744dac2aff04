package carrier

import (
	"strings"

	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/modelerr"
	"github.com/ohowland/mtress/internal/pkg/physics"
)

// GasKind is the carrier kind of Gas.
const GasKind = "gas"

// Pressure is a graded carrier of one gas at pressure levels in bar. Gas at
// a higher pressure can always be used at a lower one.
type Pressure struct {
	Graded
	gas physics.Gas
}

// NewPressure declares the pressure levels of gas. The lowest level is the
// reference.
func NewPressure(gas physics.Gas, levels []float64) (*Pressure, error) {
	normalized, err := NormalizeLevels(levels)
	if err != nil {
		return nil, modelerr.WrapConfiguration(GasKind, err)
	}
	for _, p := range normalized {
		if p <= 0 {
			return nil, modelerr.Configurationf(GasKind, "%s: pressure %g bar must be positive", gas.Name, p)
		}
	}
	return &Pressure{
		Graded: Graded{
			component: GasKind,
			prefix:    strings.ToLower(gas.Name),
			levels:    normalized,
			reference: normalized[0],
		},
		gas: gas,
	}, nil
}

// Gas returns the gas of the carrier.
func (p *Pressure) Gas() physics.Gas { return p.gas }

// Gas holds one pressure carrier per gas.
type Gas struct {
	pressures []*Pressure
}

// NewGas combines pressure carriers of distinct gases.
func NewGas(pressures ...*Pressure) (*Gas, error) {
	if len(pressures) == 0 {
		return nil, modelerr.Configurationf(GasKind, "no gases declared")
	}
	seen := make(map[string]bool)
	for _, p := range pressures {
		if seen[p.gas.Name] {
			return nil, modelerr.Configurationf(GasKind, "gas %s declared twice", p.gas.Name)
		}
		seen[p.gas.Name] = true
	}
	return &Gas{pressures: pressures}, nil
}

func (g *Gas) Name() string { return GasKind }
func (g *Gas) Kind() string { return GasKind }

func (g *Gas) BuildCore(ctx *metamodel.LocationContext) error {
	for _, p := range g.pressures {
		if err := p.build(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gas) Connect(ctx *metamodel.LocationContext) error        { return nil }
func (g *Gas) AddConstraints(ctx *metamodel.LocationContext) error { return nil }

// Pressure returns the pressure carrier of gas.
func (g *Gas) Pressure(gas physics.Gas) (*Pressure, bool) {
	for _, p := range g.pressures {
		if p.gas.Name == gas.Name {
			return p, true
		}
	}
	return nil, false
}

// Gases lists the declared gases.
func (g *Gas) Gases() []physics.Gas {
	out := make([]physics.Gas, len(g.pressures))
	for i, p := range g.pressures {
		out[i] = p.gas
	}
	return out
}

// PressureOf returns the pressure carrier of gas at the location.
func PressureOf(ctx *metamodel.LocationContext, gas physics.Gas) (*Pressure, error) {
	c, ok := ctx.Carrier(GasKind)
	if !ok {
		return nil, ctx.Errorf(GasKind, "location has no gas carrier")
	}
	g, ok := c.(*Gas)
	if !ok {
		return nil, ctx.Errorf(GasKind, "carrier %s is not a gas carrier", c.Name())
	}
	p, ok := g.Pressure(gas)
	if !ok {
		return nil, ctx.Errorf(GasKind, "gas %s is not declared", gas.Name)
	}
	return p, nil
}
