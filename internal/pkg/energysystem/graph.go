// Package energysystem is the component graph every technology and carrier
// writes into: buses, sources, sinks, converters and storages joined by
// directed flows.
package energysystem

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Kind of a node.
type Kind int

const (
	BusKind Kind = iota
	SourceKind
	SinkKind
	ConverterKind
	StorageKind
)

func (k Kind) String() string {
	switch k {
	case BusKind:
		return "bus"
	case SourceKind:
		return "source"
	case SinkKind:
		return "sink"
	case ConverterKind:
		return "converter"
	case StorageKind:
		return "storage"
	}
	return "unknown"
}

// Label identifies a node by location, owning component and local name.
type Label struct {
	Location  string
	Component string
	Name      string
}

func (l Label) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.Location, l.Component, l.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ":")
}

// Node is a vertex of the graph.
type Node struct {
	pid     uuid.UUID
	label   Label
	kind    Kind
	factors map[uuid.UUID]float64
	series  map[uuid.UUID][]float64
	storage *StorageParams
}

func (n *Node) PID() uuid.UUID { return n.pid }
func (n *Node) Label() Label   { return n.label }
func (n *Node) Name() string   { return n.label.String() }
func (n *Node) Kind() Kind     { return n.kind }

// Storage returns the storage parameters, nil for other kinds.
func (n *Node) Storage() *StorageParams { return n.storage }

// ConversionFactor returns the factor of the flow connecting a converter to
// neighbor. Unset factors are 1.
func (n *Node) ConversionFactor(neighbor *Node) float64 {
	if f, ok := n.factors[neighbor.pid]; ok {
		return f
	}
	return 1
}

// ConversionFactorAt returns the factor at step t. A series set with
// SetConversionSeries takes precedence over the constant factor.
func (n *Node) ConversionFactorAt(neighbor *Node, t int) float64 {
	if s, ok := n.series[neighbor.pid]; ok {
		return s[t]
	}
	return n.ConversionFactor(neighbor)
}

// StorageParams describe a storage node. Capacity is in the storage's native
// content units; levels are fractions of it.
type StorageParams struct {
	NominalCapacity     float64
	InitialLevel        *float64
	MinLevel            float64
	MaxLevel            float64
	LossRate            float64
	FixedLossesRelative []float64
	FixedLossesAbsolute []float64
	InflowEfficiency    float64
	OutflowEfficiency   float64
	Balanced            bool
}

// DefaultStorage returns lossless parameters for the given capacity.
func DefaultStorage(capacity float64) StorageParams {
	return StorageParams{
		NominalCapacity:   capacity,
		MaxLevel:          1,
		InflowEfficiency:  1,
		OutflowEfficiency: 1,
	}
}

// Graph holds nodes and flows in insertion order.
type Graph struct {
	pid           uuid.UUID
	steps         int
	nodes         []*Node
	byLabel       map[string]*Node
	byPID         map[uuid.UUID]*Node
	adjacencyList map[uuid.UUID][]*Flow
	inbound       map[uuid.UUID][]*Flow
	flows         []*Flow
}

// NewGraph returns an empty graph for a horizon of steps time steps.
func NewGraph(steps int) (*Graph, error) {
	if steps < 1 {
		return nil, fmt.Errorf("graph needs at least one time step, got %d", steps)
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	return &Graph{
		pid:           pid,
		steps:         steps,
		byLabel:       make(map[string]*Node),
		byPID:         make(map[uuid.UUID]*Node),
		adjacencyList: make(map[uuid.UUID][]*Flow),
		inbound:       make(map[uuid.UUID][]*Flow),
	}, nil
}

func (g *Graph) PID() uuid.UUID { return g.pid }
func (g *Graph) Steps() int     { return g.steps }

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Flows returns all flows in insertion order.
func (g *Graph) Flows() []*Flow {
	return append([]*Flow(nil), g.flows...)
}

// Node looks up a node by its label string.
func (g *Graph) Node(label string) (*Node, bool) {
	n, ok := g.byLabel[label]
	return n, ok
}

func (g *Graph) addNode(kind Kind, label Label) (*Node, error) {
	key := label.String()
	if key == "" {
		return nil, fmt.Errorf("%s label must not be empty", kind)
	}
	if _, exists := g.byLabel[key]; exists {
		return nil, fmt.Errorf("node %s already exists in graph", key)
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	n := &Node{pid: pid, label: label, kind: kind}
	g.nodes = append(g.nodes, n)
	g.byLabel[key] = n
	g.byPID[pid] = n
	g.adjacencyList[pid] = make([]*Flow, 0)
	return n, nil
}

func (g *Graph) AddBus(label Label) (*Node, error)    { return g.addNode(BusKind, label) }
func (g *Graph) AddSource(label Label) (*Node, error) { return g.addNode(SourceKind, label) }
func (g *Graph) AddSink(label Label) (*Node, error)   { return g.addNode(SinkKind, label) }

// AddConverter adds a node whose flows are tied by conversion factors.
func (g *Graph) AddConverter(label Label) (*Node, error) {
	n, err := g.addNode(ConverterKind, label)
	if err != nil {
		return nil, err
	}
	n.factors = make(map[uuid.UUID]float64)
	n.series = make(map[uuid.UUID][]float64)
	return n, nil
}

// AddStorage adds a storage node.
func (g *Graph) AddStorage(label Label, params StorageParams) (*Node, error) {
	if err := params.validate(g.steps); err != nil {
		return nil, fmt.Errorf("storage %s: %w", label, err)
	}
	n, err := g.addNode(StorageKind, label)
	if err != nil {
		return nil, err
	}
	p := params
	n.storage = &p
	return n, nil
}

func (p StorageParams) validate(steps int) error {
	if !(p.NominalCapacity > 0) || math.IsInf(p.NominalCapacity, 0) {
		return fmt.Errorf("nominal capacity must be positive and finite, got %v", p.NominalCapacity)
	}
	if p.MinLevel < 0 || p.MaxLevel > 1 || p.MinLevel > p.MaxLevel {
		return fmt.Errorf("levels [%v, %v] must satisfy 0 <= min <= max <= 1", p.MinLevel, p.MaxLevel)
	}
	if p.InitialLevel != nil && (*p.InitialLevel < p.MinLevel || *p.InitialLevel > p.MaxLevel) {
		return fmt.Errorf("initial level %v outside [%v, %v]", *p.InitialLevel, p.MinLevel, p.MaxLevel)
	}
	if p.LossRate < 0 || p.LossRate >= 1 {
		return fmt.Errorf("loss rate %v must be in [0, 1)", p.LossRate)
	}
	if !(p.InflowEfficiency > 0) || !(p.OutflowEfficiency > 0) {
		return fmt.Errorf("efficiencies must be positive")
	}
	for _, s := range [][]float64{p.FixedLossesRelative, p.FixedLossesAbsolute} {
		if s != nil && len(s) != steps {
			return fmt.Errorf("fixed losses have length %d, expected %d", len(s), steps)
		}
	}
	return nil
}

// SetConversionFactor sets the factor of the flow between converter and
// neighbor. For every input i and output o of a converter,
// flow_i / factor_i == flow_o / factor_o.
func (g *Graph) SetConversionFactor(converter, neighbor *Node, factor float64) error {
	if converter.kind != ConverterKind {
		return fmt.Errorf("node %s is a %s, not a converter", converter.Name(), converter.kind)
	}
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < 0 {
		return fmt.Errorf("converter %s: invalid conversion factor %v", converter.Name(), factor)
	}
	if _, ok := g.FlowBetween(converter, neighbor); !ok {
		if _, ok := g.FlowBetween(neighbor, converter); !ok {
			return fmt.Errorf("converter %s has no flow to or from %s", converter.Name(), neighbor.Name())
		}
	}
	converter.factors[neighbor.pid] = factor
	return nil
}

// SetConversionSeries sets one conversion factor per time step.
func (g *Graph) SetConversionSeries(converter, neighbor *Node, factors []float64) error {
	if len(factors) != g.steps {
		return fmt.Errorf("converter %s: %d conversion factors for %d steps", converter.Name(), len(factors), g.steps)
	}
	for _, f := range factors {
		if err := g.SetConversionFactor(converter, neighbor, f); err != nil {
			return err
		}
	}
	converter.series[neighbor.pid] = append([]float64(nil), factors...)
	return nil
}

// Outputs returns the flows leaving n.
func (g *Graph) Outputs(n *Node) []*Flow {
	if flows, exists := g.adjacencyList[n.pid]; exists {
		return append([]*Flow(nil), flows...)
	}
	return make([]*Flow, 0)
}

// Inputs returns the flows entering n.
func (g *Graph) Inputs(n *Node) []*Flow {
	return append([]*Flow(nil), g.inbound[n.pid]...)
}

// FlowBetween finds the flow from -> to.
func (g *Graph) FlowBetween(from, to *Node) (*Flow, bool) {
	for _, f := range g.adjacencyList[from.pid] {
		if f.To == to {
			return f, true
		}
	}
	return nil, false
}

// Validate checks structural rules that only hold once every component has
// attached its flows.
func (g *Graph) Validate() error {
	for _, n := range g.nodes {
		in, out := len(g.inbound[n.pid]), len(g.adjacencyList[n.pid])
		switch n.kind {
		case ConverterKind:
			if in == 0 || out == 0 {
				return fmt.Errorf("converter %s needs inputs and outputs, has %d and %d", n.Name(), in, out)
			}
		case StorageKind:
			if in+out == 0 {
				return fmt.Errorf("storage %s is not connected", n.Name())
			}
		}
	}
	return nil
}
