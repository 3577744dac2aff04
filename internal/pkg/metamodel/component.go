// Package metamodel drives the construction of an optimisation model from
// locations holding carriers and technologies.
package metamodel

import (
	"fmt"
	"strings"

	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/logging"
	"github.com/ohowland/mtress/internal/pkg/modelerr"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"github.com/ohowland/mtress/internal/pkg/timeseries"
	"golang.org/x/exp/slog"
)

// Component is anything that places nodes in the graph and may add
// constraints once the model exists. Phases run in order over all
// components of all locations: BuildCore, Connect, AddConstraints.
type Component interface {
	Name() string
	BuildCore(ctx *LocationContext) error
	Connect(ctx *LocationContext) error
	AddConstraints(ctx *LocationContext) error
}

// Carrier is a Component that represents one energy form of a location.
// A location holds at most one carrier per kind.
type Carrier interface {
	Component
	Kind() string
}

// Location groups the carriers and technologies of one site.
type Location struct {
	name         string
	carriers     []Carrier
	technologies []Component
	names        map[string]struct{}
}

// NewLocation returns an empty location.
func NewLocation(name string) (*Location, error) {
	if name == "" || strings.Contains(name, ":") {
		return nil, modelerr.Configurationf(name, "invalid location name %q", name)
	}
	return &Location{name: name, names: make(map[string]struct{})}, nil
}

// Name returns the location name.
func (l *Location) Name() string { return l.name }

// Add places c in the location. Carriers are recognised by type.
func (l *Location) Add(c Component) error {
	name := c.Name()
	if name == "" || strings.Contains(name, ":") {
		return modelerr.Configurationf(l.name, "invalid component name %q", name)
	}
	if _, ok := l.names[name]; ok {
		return modelerr.Configurationf(l.name, "component %s already exists", name)
	}
	if carrier, ok := c.(Carrier); ok {
		if _, exists := l.Carrier(carrier.Kind()); exists {
			return modelerr.Configurationf(l.name, "carrier %s already exists", carrier.Kind())
		}
		l.carriers = append(l.carriers, carrier)
	} else {
		l.technologies = append(l.technologies, c)
	}
	l.names[name] = struct{}{}
	return nil
}

// Carrier returns the carrier of the given kind.
func (l *Location) Carrier(kind string) (Carrier, bool) {
	for _, c := range l.carriers {
		if c.Kind() == kind {
			return c, true
		}
	}
	return nil, false
}

// Components lists carriers first, then technologies, each in insertion
// order.
func (l *Location) Components() []Component {
	out := make([]Component, 0, len(l.carriers)+len(l.technologies))
	for _, c := range l.carriers {
		out = append(out, c)
	}
	return append(out, l.technologies...)
}

// LocationContext is handed to every phase callback of a component.
type LocationContext struct {
	location *Location
	graph    *energysystem.Graph
	data     *timeseries.Handler
	model    *optmodel.Model
	logger   *slog.Logger
	phase    Phase
}

func (c *LocationContext) Location() string           { return c.location.name }
func (c *LocationContext) Graph() *energysystem.Graph { return c.graph }
func (c *LocationContext) Data() *timeseries.Handler  { return c.data }
func (c *LocationContext) Phase() Phase               { return c.phase }
func (c *LocationContext) Steps() int                 { return c.graph.Steps() }
func (c *LocationContext) StepHours() float64         { return c.data.Index().StepHours() }
func (c *LocationContext) Components() []Component    { return c.location.Components() }

// Carrier returns the carrier of the given kind at this location.
func (c *LocationContext) Carrier(kind string) (Carrier, bool) {
	return c.location.Carrier(kind)
}

// Model returns the optimisation model. It is nil before AddConstraints.
func (c *LocationContext) Model() *optmodel.Model { return c.model }

// Label names a node owned by component.
func (c *LocationContext) Label(component, name string) energysystem.Label {
	return energysystem.Label{Location: c.location.name, Component: component, Name: name}
}

// Qualified returns location:component.
func (c *LocationContext) Qualified(component string) string {
	return c.location.name + ":" + component
}

// Logger returns a logger tagged with location, component and phase.
func (c *LocationContext) Logger(component string) *slog.Logger {
	return logging.Component(c.logger, c.location.name, component).With("phase", string(c.phase))
}

// Errorf returns a ConfigurationError attributed to component.
func (c *LocationContext) Errorf(component, format string, args ...interface{}) error {
	return modelerr.Configurationf(c.Qualified(component), format, args...)
}

// Series resolves a numeric specifier through the data handler and turns
// failures into configuration errors of component.
func (c *LocationContext) Series(component, field string, spec interface{}, kind timeseries.Kind) ([]float64, error) {
	values, err := c.data.Get(spec, kind)
	if err != nil {
		return nil, modelerr.WrapConfiguration(c.Qualified(component), fmt.Errorf("%s: %w", field, err))
	}
	return values, nil
}
