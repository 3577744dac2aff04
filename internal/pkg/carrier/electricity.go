package carrier

import (
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
)

// ElectricityKind is the carrier kind of Electricity.
const ElectricityKind = "electricity"

// Electricity has a distribution bus consumers draw from and a feed-in bus
// local generation delivers to. Feed-in energy is either used locally or
// exported.
type Electricity struct {
	distribution *energysystem.Node
	feedIn       *energysystem.Node
}

// NewElectricity returns an electricity carrier.
func NewElectricity() *Electricity {
	return &Electricity{}
}

func (e *Electricity) Name() string                     { return ElectricityKind }
func (e *Electricity) Kind() string                     { return ElectricityKind }
func (e *Electricity) Distribution() *energysystem.Node { return e.distribution }
func (e *Electricity) FeedIn() *energysystem.Node       { return e.feedIn }

func (e *Electricity) BuildCore(ctx *metamodel.LocationContext) error {
	g := ctx.Graph()
	var err error
	if e.distribution, err = g.AddBus(ctx.Label(ElectricityKind, "distribution")); err != nil {
		return err
	}
	if e.feedIn, err = g.AddBus(ctx.Label(ElectricityKind, "feed_in")); err != nil {
		return err
	}
	_, err = g.AddFlow(e.feedIn, e.distribution)
	return err
}

func (e *Electricity) Connect(ctx *metamodel.LocationContext) error        { return nil }
func (e *Electricity) AddConstraints(ctx *metamodel.LocationContext) error { return nil }

// ElectricityOf returns the electricity carrier of the location.
func ElectricityOf(ctx *metamodel.LocationContext) (*Electricity, error) {
	c, ok := ctx.Carrier(ElectricityKind)
	if !ok {
		return nil, ctx.Errorf(ElectricityKind, "location has no electricity carrier")
	}
	e, ok := c.(*Electricity)
	if !ok {
		return nil, ctx.Errorf(ElectricityKind, "carrier %s is not an electricity carrier", c.Name())
	}
	return e, nil
}
