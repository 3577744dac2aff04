package technology

import (
	"fmt"
	"math"

	"github.com/ohowland/mtress/internal/pkg/carrier"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/physics"
	"github.com/ohowland/mtress/internal/pkg/storage"
	"github.com/ohowland/mtress/internal/pkg/timeseries"
	"golang.org/x/exp/slog"
)

// HeatStorageConfig holds the parameters of a HeatStorage. Volume is in m^3,
// the diameter in m and the power limit in kW. UValue (W/(m^2*K)) enables
// insulation losses toward the ambient temperature. The temperature bounds
// restrict which heat levels the storage connects to.
type HeatStorageConfig struct {
	Diameter           float64     `mapstructure:"diameter"`
	Volume             float64     `mapstructure:"volume"`
	PowerLimit         float64     `mapstructure:"power_limit"`
	AmbientTemperature interface{} `mapstructure:"ambient_temperature"`
	UValue             *float64    `mapstructure:"u_value"`
	MinTemperature     *float64    `mapstructure:"min_temperature"`
	MaxTemperature     *float64    `mapstructure:"max_temperature"`
	InitialTemperature *float64    `mapstructure:"initial_temperature"`
	Balanced           bool        `mapstructure:"balanced"`
	Implementation     string      `mapstructure:"multiplexer_implementation"`
}

// HeatStorage is a fully mixed water tank. Its content is measured in kWh
// above the reference temperature, so a tank filled up to level l holds
// (l-ref)*volume*rho*cp.
type HeatStorage struct {
	base
	config         HeatStorageConfig
	implementation storage.Implementation

	capacityPerK float64
	levels       []float64
	mux          *storage.Multiplexer
}

// NewHeatStorage returns a heat storage with a strict multiplexer unless
// configured otherwise.
func NewHeatStorage(name string, params map[string]interface{}) (*HeatStorage, error) {
	cfg := HeatStorageConfig{Balanced: true}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	if err := positive("volume", cfg.Volume); err != nil {
		return nil, err
	}
	if err := positive("power_limit", cfg.PowerLimit); err != nil {
		return nil, err
	}
	if cfg.UValue != nil {
		if err := positive("u_value", *cfg.UValue); err != nil {
			return nil, err
		}
		if err := positive("diameter", cfg.Diameter); err != nil {
			return nil, err
		}
		if cfg.AmbientTemperature == nil {
			return nil, fmt.Errorf("ambient_temperature is required with u_value")
		}
	}
	impl, err := storage.ParseImplementation(cfg.Implementation)
	if err != nil {
		return nil, err
	}
	return &HeatStorage{
		base:           base{name},
		config:         cfg,
		implementation: impl,
		capacityPerK:   cfg.Volume * physics.KJToKWh(physics.H2ODensity*physics.H2OHeatCapacity),
	}, nil
}

// Multiplexer returns the access gate of the tank.
func (s *HeatStorage) Multiplexer() *storage.Multiplexer { return s.mux }

// Levels lists the heat levels the tank connects to.
func (s *HeatStorage) Levels() []float64 { return s.levels }

// CapacityPerKelvin is the energy in kWh to warm the tank by 1 K.
func (s *HeatStorage) CapacityPerKelvin() float64 { return s.capacityPerK }

func (s *HeatStorage) accessLevels(heat *carrier.Heat) []float64 {
	lo, hi := heat.Reference(), math.Inf(1)
	if s.config.MinTemperature != nil {
		lo = math.Max(lo, *s.config.MinTemperature)
	}
	if s.config.MaxTemperature != nil {
		hi = *s.config.MaxTemperature
	}
	var levels []float64
	for _, l := range heat.Levels() {
		if l >= lo && l <= hi {
			levels = append(levels, l)
		}
	}
	return levels
}

func (s *HeatStorage) BuildCore(ctx *metamodel.LocationContext) error {
	heat, err := carrier.HeatOf(ctx)
	if err != nil {
		return err
	}
	ref := heat.Reference()
	s.levels = s.accessLevels(heat)
	if len(s.levels) == 0 || s.levels[len(s.levels)-1] <= ref {
		return ctx.Errorf(s.name, "no temperature level above reference %g in range", ref)
	}
	top := s.levels[len(s.levels)-1]

	params := energysystem.DefaultStorage((top - ref) * s.capacityPerK)
	params.Balanced = s.config.Balanced
	if s.config.InitialTemperature != nil {
		initial := (*s.config.InitialTemperature - ref) / (top - ref)
		if initial < 0 || initial > 1 {
			return ctx.Errorf(s.name, "initial temperature %g outside [%g, %g]", *s.config.InitialTemperature, ref, top)
		}
		params.InitialLevel = &initial
	}
	if s.config.UValue != nil {
		ambient, err := ctx.Series(s.name, "ambient_temperature", s.config.AmbientTemperature, timeseries.Interval)
		if err != nil {
			return err
		}
		stepHours := ctx.StepHours()
		losses := physics.StorageLosses(*s.config.UValue, s.config.Diameter, top, ref, ambient, stepHours)
		params.LossRate = losses.LossRate
		// fixed losses are rates, the model scales them by the step length
		params.FixedLossesRelative = make([]float64, len(ambient))
		params.FixedLossesAbsolute = make([]float64, len(ambient))
		for t := range ambient {
			params.FixedLossesRelative[t] = losses.FixedRelative[t] / stepHours
			params.FixedLossesAbsolute[t] = losses.FixedAbsolute[t] / stepHours
		}
	}

	if s.mux, err = storage.NewMultiplexer(s.name, s.implementation, params, s.config.PowerLimit); err != nil {
		return ctx.Errorf(s.name, "%v", err)
	}
	if err := s.mux.Build(ctx); err != nil {
		return err
	}
	ctx.Logger(s.name).Debug("heat storage built",
		slog.Float64("capacity_kwh", params.NominalCapacity),
		slog.String("implementation", s.implementation.String()),
	)
	return nil
}

func (s *HeatStorage) Connect(ctx *metamodel.LocationContext) error {
	heat, err := carrier.HeatOf(ctx)
	if err != nil {
		return err
	}
	ref := heat.Reference()
	value := func(l float64) float64 { return (l - ref) * s.capacityPerK }
	return s.mux.ConnectLevels(ctx, s.levels, value, heat.NodeAt)
}

func (s *HeatStorage) AddConstraints(ctx *metamodel.LocationContext) error {
	return s.mux.AddConstraints(ctx)
}
