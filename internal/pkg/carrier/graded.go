package carrier

import (
	"fmt"
	"math"

	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"golang.org/x/exp/slices"
)

// DefaultPenalty is the cost of dumped or missing energy.
const DefaultPenalty = 1e6

// ConversionEdge moves energy from the junction at High to the junction at
// Low. Ratio of the input arrives at Low; the rest leaves through
// Extraction. Pressure edges are plain flows with ratio 1.
type ConversionEdge struct {
	High       float64
	Low        float64
	Ratio      float64
	Converter  *energysystem.Node
	Extraction *energysystem.Node
}

// Graded is a carrier with ordered access levels and one junction per
// level.
type Graded struct {
	component string
	prefix    string
	cascade   bool
	levels    []float64
	reference float64

	excessCost   float64
	missingCost  float64
	allowMissing bool

	nodes   map[float64]*energysystem.Node
	edges   []ConversionEdge
	excess  *energysystem.Node
	missing *energysystem.Node
}

// Levels returns the levels in ascending order.
func (g *Graded) Levels() []float64 { return slices.Clone(g.levels) }

// Reference is the datum of the carrier.
func (g *Graded) Reference() float64 { return g.reference }

// Edges returns the conversion edges ordered from the top level down.
func (g *Graded) Edges() []ConversionEdge { return slices.Clone(g.edges) }

// Excess is the sink of dumped energy, nil for pressure carriers.
func (g *Graded) Excess() *energysystem.Node { return g.excess }

// Missing is the source of missing energy, nil when disabled.
func (g *Graded) Missing() *energysystem.Node { return g.missing }

// SurroundingLevels brackets x by declared levels.
func (g *Graded) SurroundingLevels(x float64) (float64, float64) {
	return SurroundingLevels(g.levels, x)
}

// HasLevel reports whether level is declared.
func (g *Graded) HasLevel(level float64) bool {
	_, found := slices.BinarySearch(g.levels, level)
	return found
}

// NodeAt returns the junction of a declared level. It is available after
// the build_core phase.
func (g *Graded) NodeAt(level float64) (*energysystem.Node, error) {
	if !g.HasLevel(level) {
		return nil, fmt.Errorf("%s: level %g is not declared (levels %v)", g.component, level, g.levels)
	}
	n, ok := g.nodes[level]
	if !ok {
		return nil, fmt.Errorf("%s: level %g is not built yet", g.component, level)
	}
	return n, nil
}

func (g *Graded) nodeName(level float64) string {
	return fmt.Sprintf("%s_%g", g.prefix, level)
}

// build creates junctions from the highest level down. Cascade carriers
// connect adjacent levels with ratio converters until the reference is
// reached; other carriers connect every level with a plain flow.
func (g *Graded) build(ctx *metamodel.LocationContext) error {
	graph := ctx.Graph()
	g.nodes = make(map[float64]*energysystem.Node, len(g.levels))
	g.edges = nil

	if g.cascade {
		excess, err := graph.AddSink(ctx.Label(g.component, g.prefix+"_excess"))
		if err != nil {
			return err
		}
		g.excess = excess
	}

	var higher *energysystem.Node
	higherLevel := math.Inf(1)
	reached := false
	for i := len(g.levels) - 1; i >= 0; i-- {
		level := g.levels[i]
		node, err := graph.AddBus(ctx.Label(g.component, g.nodeName(level)))
		if err != nil {
			return err
		}
		g.nodes[level] = node

		if higher != nil && !reached {
			edge, err := g.connect(ctx, higherLevel, level, higher, node)
			if err != nil {
				return err
			}
			g.edges = append(g.edges, edge)
		}
		if g.cascade && level == g.reference {
			reached = true
			if _, err := graph.AddFlow(node, g.excess, energysystem.WithConstantCost(g.excessCost)); err != nil {
				return err
			}
		}
		higher, higherLevel = node, level
	}

	if g.allowMissing {
		top := g.levels[len(g.levels)-1]
		missing, err := graph.AddSource(ctx.Label(g.component, g.prefix+"_missing"))
		if err != nil {
			return err
		}
		if _, err := graph.AddFlow(missing, g.nodes[top], energysystem.WithConstantCost(g.missingCost)); err != nil {
			return err
		}
		g.missing = missing
	}
	return nil
}

func (g *Graded) connect(ctx *metamodel.LocationContext, high, low float64, from, to *energysystem.Node) (ConversionEdge, error) {
	graph := ctx.Graph()
	edge := ConversionEdge{High: high, Low: low, Ratio: 1}
	if !g.cascade {
		_, err := graph.AddFlow(from, to)
		return edge, err
	}

	edge.Ratio = (low - g.reference) / (high - g.reference)
	name := fmt.Sprintf("%s_%g_%g", g.prefix, high, low)
	conv, err := graph.AddConverter(ctx.Label(g.component, "cascade_"+name))
	if err != nil {
		return edge, err
	}
	extraction, err := graph.AddBus(ctx.Label(g.component, "extraction_"+name))
	if err != nil {
		return edge, err
	}
	if _, err := graph.AddFlow(from, conv); err != nil {
		return edge, err
	}
	if _, err := graph.AddFlow(conv, to); err != nil {
		return edge, err
	}
	if _, err := graph.AddFlow(conv, extraction); err != nil {
		return edge, err
	}
	if _, err := graph.AddFlow(extraction, g.excess, energysystem.WithConstantCost(g.excessCost)); err != nil {
		return edge, err
	}
	if err := graph.SetConversionFactor(conv, to, edge.Ratio); err != nil {
		return edge, err
	}
	if err := graph.SetConversionFactor(conv, extraction, 1-edge.Ratio); err != nil {
		return edge, err
	}
	edge.Converter, edge.Extraction = conv, extraction
	return edge, nil
}
