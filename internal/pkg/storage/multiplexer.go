package storage

import (
	"fmt"
	"math"

	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"golang.org/x/exp/slices"
)

// AccessPoint is a gated connection between a level junction and the
// multiplexer. Value is the storage content that corresponds to a storage
// filled up to exactly Level.
type AccessPoint struct {
	Level     float64
	Direction Direction
	Value     float64
	Flow      *energysystem.Flow
}

// Multiplexer is the junction all access points of one storage share.
//
//	node_at(l) -> multiplexer -> storage -> multiplexer -> node_at(l)
type Multiplexer struct {
	component      string
	implementation Implementation
	params         energysystem.StorageParams
	power          float64

	storage *energysystem.Node
	bus     *energysystem.Node
	points  []AccessPoint
}

// NewMultiplexer prepares the multiplexer of component. params carries the
// storage capacity C in content units; power limits every access flow.
func NewMultiplexer(component string, impl Implementation, params energysystem.StorageParams, power float64) (*Multiplexer, error) {
	if !(params.NominalCapacity > 0) || math.IsInf(params.NominalCapacity, 0) {
		return nil, fmt.Errorf("storage capacity must be positive and finite, got %v", params.NominalCapacity)
	}
	if !(power > 0) || math.IsInf(power, 0) {
		return nil, fmt.Errorf("power limit must be positive and finite, got %v", power)
	}
	return &Multiplexer{
		component:      component,
		implementation: impl,
		params:         params,
		power:          power,
	}, nil
}

func (m *Multiplexer) Implementation() Implementation { return m.implementation }
func (m *Multiplexer) Capacity() float64              { return m.params.NominalCapacity }
func (m *Multiplexer) Power() float64                 { return m.power }
func (m *Multiplexer) Storage() *energysystem.Node    { return m.storage }
func (m *Multiplexer) Bus() *energysystem.Node        { return m.bus }

// AccessPoints returns the access points in creation order.
func (m *Multiplexer) AccessPoints() []AccessPoint { return slices.Clone(m.points) }

// Build creates the storage and the multiplexer junction.
func (m *Multiplexer) Build(ctx *metamodel.LocationContext) error {
	g := ctx.Graph()
	var err error
	if m.storage, err = g.AddStorage(ctx.Label(m.component, "storage"), m.params); err != nil {
		return err
	}
	if m.bus, err = g.AddBus(ctx.Label(m.component, "multiplexer")); err != nil {
		return err
	}
	if _, err = g.AddFlow(m.bus, m.storage); err != nil {
		return err
	}
	_, err = g.AddFlow(m.storage, m.bus)
	return err
}

// AddInput lets the storage be charged from node at level.
func (m *Multiplexer) AddInput(ctx *metamodel.LocationContext, level, value float64, node *energysystem.Node) (AccessPoint, error) {
	return m.add(ctx, Input, level, value, node)
}

// AddOutput lets the storage be discharged to node at level.
func (m *Multiplexer) AddOutput(ctx *metamodel.LocationContext, level, value float64, node *energysystem.Node) (AccessPoint, error) {
	return m.add(ctx, Output, level, value, node)
}

func (m *Multiplexer) add(ctx *metamodel.LocationContext, dir Direction, level, value float64, node *energysystem.Node) (AccessPoint, error) {
	if m.bus == nil {
		return AccessPoint{}, fmt.Errorf("multiplexer of %s is not built", m.component)
	}
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return AccessPoint{}, fmt.Errorf("invalid access level %v", level)
	}
	if value < 0 || value > m.Capacity() || math.IsNaN(value) {
		return AccessPoint{}, fmt.Errorf("value %v of level %g outside [0, %v]", value, level, m.Capacity())
	}
	for _, p := range m.points {
		if p.Level == level && p.Value != value {
			return AccessPoint{}, fmt.Errorf("level %g has values %v and %v", level, p.Value, value)
		}
		if (p.Level < level && p.Value >= value) || (p.Level > level && p.Value <= value) {
			return AccessPoint{}, fmt.Errorf("value of level %g is not monotonic in level", level)
		}
	}

	var (
		f   *energysystem.Flow
		err error
	)
	if dir == Input {
		f, err = ctx.Graph().AddFlow(node, m.bus, energysystem.WithNominal(m.power))
	} else {
		f, err = ctx.Graph().AddFlow(m.bus, node, energysystem.WithNominal(m.power))
	}
	if err != nil {
		return AccessPoint{}, err
	}
	p := AccessPoint{Level: level, Direction: dir, Value: value, Flow: f}
	m.points = append(m.points, p)
	return p, nil
}

// ConnectLevels adds access points for every level. A level that would
// leave the storage empty gets no input, a level that needs a full storage
// gets no output.
func (m *Multiplexer) ConnectLevels(ctx *metamodel.LocationContext, levels []float64, value func(float64) float64, nodeAt func(float64) (*energysystem.Node, error)) error {
	for _, level := range levels {
		v := value(level)
		node, err := nodeAt(level)
		if err != nil {
			return err
		}
		if v > 0 {
			if _, err := m.AddInput(ctx, level, v, node); err != nil {
				return err
			}
		}
		if v < m.Capacity() {
			if _, err := m.AddOutput(ctx, level, v, node); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddConstraints gates all access points with the configured
// implementation.
func (m *Multiplexer) AddConstraints(ctx *metamodel.LocationContext) error {
	if len(m.points) == 0 {
		return nil
	}
	name := ctx.Qualified(m.component) + ":gate"
	switch m.implementation {
	case Flexible:
		return FlexibleGate(ctx.Model(), name, m.storage, m.points)
	default:
		return StrictGate(ctx.Model(), name, m.storage, m.points)
	}
}
