package carrier

import (
	"math"

	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/modelerr"
)

// HeatKind is the carrier kind of Heat.
const HeatKind = "heat"

// Heat is a graded carrier of thermal energy at temperature levels in °C.
// Energy cascades from a level to the next lower one; the share
// (low-ref)/(high-ref) stays usable and the rest is extracted.
type Heat struct {
	Graded
}

// HeatOption configures NewHeat.
type HeatOption func(*Heat)

// WithExcessCost sets the cost of energy dumped at or toward the reference.
func WithExcessCost(c float64) HeatOption {
	return func(h *Heat) { h.excessCost = c }
}

// WithMissingCost sets the cost of energy taken from the missing source.
func WithMissingCost(c float64) HeatOption {
	return func(h *Heat) { h.missingCost = c }
}

// WithoutMissing disables the missing energy source.
func WithoutMissing() HeatOption {
	return func(h *Heat) { h.allowMissing = false }
}

// NewHeat declares a heat carrier. The reference temperature is added to the
// levels when missing.
func NewHeat(levels []float64, reference float64, opts ...HeatOption) (*Heat, error) {
	if math.IsNaN(reference) || math.IsInf(reference, 0) {
		return nil, modelerr.Configurationf(HeatKind, "invalid reference temperature %v", reference)
	}
	if len(levels) == 0 {
		return nil, modelerr.Configurationf(HeatKind, "no temperature levels declared")
	}
	normalized, err := NormalizeLevels(append(append([]float64(nil), levels...), reference))
	if err != nil {
		return nil, modelerr.WrapConfiguration(HeatKind, err)
	}
	h := &Heat{Graded{
		component:    HeatKind,
		prefix:       "T",
		cascade:      true,
		levels:       normalized,
		reference:    reference,
		excessCost:   DefaultPenalty,
		missingCost:  DefaultPenalty,
		allowMissing: true,
	}}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Heat) Name() string { return HeatKind }
func (h *Heat) Kind() string { return HeatKind }

func (h *Heat) BuildCore(ctx *metamodel.LocationContext) error {
	if err := h.build(ctx); err != nil {
		return err
	}
	ctx.Logger(HeatKind).Debug("heat carrier built", "levels", h.levels, "edges", len(h.edges))
	return nil
}

func (h *Heat) Connect(ctx *metamodel.LocationContext) error        { return nil }
func (h *Heat) AddConstraints(ctx *metamodel.LocationContext) error { return nil }

// HeatOf returns the heat carrier of the location.
func HeatOf(ctx *metamodel.LocationContext) (*Heat, error) {
	c, ok := ctx.Carrier(HeatKind)
	if !ok {
		return nil, ctx.Errorf(HeatKind, "location has no heat carrier")
	}
	h, ok := c.(*Heat)
	if !ok {
		return nil, ctx.Errorf(HeatKind, "carrier %s is not a heat carrier", c.Name())
	}
	return h, nil
}
