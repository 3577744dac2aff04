package metamodel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/modelerr"
	"github.com/ohowland/mtress/internal/pkg/msg"
	"github.com/ohowland/mtress/internal/pkg/observability"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"github.com/ohowland/mtress/internal/pkg/timeseries"
	"golang.org/x/exp/slog"
)

// Phase names a construction step.
type Phase string

const (
	PhaseBuildCore      Phase = "build_core"
	PhaseConnect        Phase = "connect"
	PhaseModel          Phase = "model"
	PhaseAddConstraints Phase = "add_constraints"
)

// PhaseEvent is published on msg.Phase after every phase.
type PhaseEvent struct {
	Model    string        `json:"model" bson:"model"`
	PID      uuid.UUID     `json:"pid" bson:"pid"`
	Phase    Phase         `json:"phase" bson:"phase"`
	Duration time.Duration `json:"duration" bson:"duration"`
	Err      string        `json:"error,omitempty" bson:"error,omitempty"`
}

// ErrAlreadyBuilt is returned by a second call to Build.
var ErrAlreadyBuilt = errors.New("meta model already built")

// MetaModel owns the locations of a study and builds them into one model.
type MetaModel struct {
	mux       sync.Mutex
	name      string
	pid       uuid.UUID
	index     timeseries.TimeIndex
	data      *timeseries.Handler
	locations []*Location

	logger  *slog.Logger
	metrics *observability.BuildCollector
	hub     *msg.Hub

	model   *optmodel.Model
	summary optmodel.Summary
}

// Option configures a MetaModel.
type Option func(*MetaModel)

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(mm *MetaModel) { mm.logger = l }
}

// WithMetrics records build metrics on c.
func WithMetrics(c *observability.BuildCollector) Option {
	return func(mm *MetaModel) { mm.metrics = c }
}

// WithHub publishes phase events and the final summary on h.
func WithHub(h *msg.Hub) Option {
	return func(mm *MetaModel) { mm.hub = h }
}

// WithDataDir resolves relative FILE: specifiers against dir.
func WithDataDir(dir string) Option {
	return func(mm *MetaModel) { mm.data = timeseries.NewHandler(mm.index, filepath.Clean(dir)) }
}

// New returns an empty meta model over index.
func New(name string, index timeseries.TimeIndex, opts ...Option) (*MetaModel, error) {
	if err := index.Validate(); err != nil {
		return nil, modelerr.WrapConfiguration(name, err)
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	mm := &MetaModel{
		name:   name,
		pid:    pid,
		index:  index,
		data:   timeseries.NewHandler(index, "."),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(mm)
	}
	return mm, nil
}

func (mm *MetaModel) Name() string                { return mm.name }
func (mm *MetaModel) PID() uuid.UUID              { return mm.pid }
func (mm *MetaModel) Index() timeseries.TimeIndex { return mm.index }
func (mm *MetaModel) Data() *timeseries.Handler   { return mm.data }

// AddLocation appends loc. Location names are unique.
func (mm *MetaModel) AddLocation(loc *Location) error {
	mm.mux.Lock()
	defer mm.mux.Unlock()
	for _, l := range mm.locations {
		if l.name == loc.name {
			return modelerr.Configurationf(mm.name, "location %s already exists", loc.name)
		}
	}
	mm.locations = append(mm.locations, loc)
	return nil
}

// Locations returns the locations in insertion order.
func (mm *MetaModel) Locations() []*Location {
	return append([]*Location(nil), mm.locations...)
}

// ComponentNames lists location:component for every component.
func (mm *MetaModel) ComponentNames() []string {
	var out []string
	for _, l := range mm.locations {
		for _, c := range l.Components() {
			out = append(out, l.name+":"+c.Name())
		}
	}
	return out
}

// Model returns the built model, if any.
func (mm *MetaModel) Model() (*optmodel.Model, bool) {
	mm.mux.Lock()
	defer mm.mux.Unlock()
	return mm.model, mm.model != nil
}

// Summary returns the summary of the built model.
func (mm *MetaModel) Summary() (optmodel.Summary, bool) {
	mm.mux.Lock()
	defer mm.mux.Unlock()
	return mm.summary, mm.model != nil
}

// Build runs all construction phases and returns the model. The first
// component error aborts the build and no model is kept.
func (mm *MetaModel) Build(ctx context.Context) (model *optmodel.Model, err error) {
	mm.mux.Lock()
	defer mm.mux.Unlock()
	if mm.model != nil {
		return nil, ErrAlreadyBuilt
	}
	defer func() {
		if model != nil {
			p := model.Program()
			mm.metrics.BuildFinished(nil, p.NumVars(), p.NumConstraints(), len(p.SOS2Sets()))
		} else {
			mm.metrics.BuildFinished(err, 0, 0, 0)
		}
	}()

	graph, err := energysystem.NewGraph(mm.index.Steps)
	if err != nil {
		return nil, modelerr.WrapConfiguration(mm.name, err)
	}
	contexts := make([]*LocationContext, len(mm.locations))
	for i, loc := range mm.locations {
		contexts[i] = &LocationContext{location: loc, graph: graph, data: mm.data, logger: mm.logger}
	}

	eachComponent := func(phase Phase, call func(Component, *LocationContext) error) func() error {
		return func() error {
			for _, lc := range contexts {
				lc.phase = phase
				for _, c := range lc.location.Components() {
					if err := call(c, lc); err != nil {
						return modelerr.WrapConfiguration(lc.Qualified(c.Name()), err)
					}
				}
			}
			return nil
		}
	}

	if err := mm.runPhase(ctx, PhaseBuildCore, eachComponent(PhaseBuildCore, func(c Component, lc *LocationContext) error {
		return c.BuildCore(lc)
	})); err != nil {
		return nil, err
	}
	if err := mm.runPhase(ctx, PhaseConnect, eachComponent(PhaseConnect, func(c Component, lc *LocationContext) error {
		return c.Connect(lc)
	})); err != nil {
		return nil, err
	}

	var m *optmodel.Model
	if err := mm.runPhase(ctx, PhaseModel, func() error {
		var err error
		m, err = optmodel.Build(graph, optmodel.WithStepHours(mm.index.StepHours()), optmodel.WithPID(mm.pid))
		if err != nil {
			return modelerr.WrapConfiguration(mm.name, err)
		}
		for _, lc := range contexts {
			lc.model = m
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := mm.runPhase(ctx, PhaseAddConstraints, eachComponent(PhaseAddConstraints, func(c Component, lc *LocationContext) error {
		return c.AddConstraints(lc)
	})); err != nil {
		return nil, err
	}

	mm.model = m
	mm.summary = m.Summary(mm.name, mm.ComponentNames())
	if mm.hub != nil {
		mm.hub.Publish(msg.Summary, mm.summary)
	}
	mm.logger.Info("model built",
		slog.String("model", mm.name),
		slog.Int("variables", mm.summary.Variables),
		slog.Int("constraints", mm.summary.Constraints),
		slog.Int("sos2", mm.summary.SOS2))
	return m, nil
}

func (mm *MetaModel) runPhase(ctx context.Context, phase Phase, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	_, span := observability.StartPhase(ctx, mm.name, string(phase))
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	observability.EndPhase(span, err)
	mm.metrics.ObservePhase(string(phase), elapsed)

	event := PhaseEvent{Model: mm.name, PID: mm.pid, Phase: phase, Duration: elapsed}
	if err != nil {
		event.Err = err.Error()
	}
	if mm.hub != nil {
		mm.hub.Publish(msg.Phase, event)
	}
	mm.logger.Debug("phase finished",
		slog.String("model", mm.name),
		slog.String("phase", string(phase)),
		slog.Duration("duration", elapsed))
	return err
}
