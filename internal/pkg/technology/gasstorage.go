package technology

import (
	"github.com/ohowland/mtress/internal/pkg/carrier"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/physics"
	"github.com/ohowland/mtress/internal/pkg/storage"
)

// GasStorageConfig holds the parameters of a GasStorage. Volume is in m^3,
// the power limit in kW of gas per access point.
type GasStorageConfig struct {
	Gas             string   `mapstructure:"gas"`
	Volume          float64  `mapstructure:"volume"`
	PowerLimit      float64  `mapstructure:"power_limit"`
	Temperature     float64  `mapstructure:"temperature"`
	InitialPressure *float64 `mapstructure:"initial_pressure"`
	Balanced        bool     `mapstructure:"balanced"`
	Implementation  string   `mapstructure:"multiplexer_implementation"`
}

// GasStorage is a pressure tank. Its content in kWh at pressure p is
// density(p)*volume*energy, so the tank can only be charged from levels
// above its current pressure and discharged to levels below it.
type GasStorage struct {
	base
	config         GasStorageConfig
	gas            physics.Gas
	implementation storage.Implementation
	mux            *storage.Multiplexer
}

// NewGasStorage returns a gas storage with a strict multiplexer unless
// configured otherwise.
func NewGasStorage(name string, params map[string]interface{}) (*GasStorage, error) {
	cfg := GasStorageConfig{Temperature: DefaultGasTemperature, Balanced: true}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	gas, err := physics.GasByName(cfg.Gas)
	if err != nil {
		return nil, err
	}
	if err := positive("volume", cfg.Volume); err != nil {
		return nil, err
	}
	if err := positive("power_limit", cfg.PowerLimit); err != nil {
		return nil, err
	}
	impl, err := storage.ParseImplementation(cfg.Implementation)
	if err != nil {
		return nil, err
	}
	return &GasStorage{base: base{name}, config: cfg, gas: gas, implementation: impl}, nil
}

func (s *GasStorage) Multiplexer() *storage.Multiplexer { return s.mux }

// Content is the energy in kWh the tank holds at pressure.
func (s *GasStorage) Content(pressure float64) float64 {
	return s.gas.Density(pressure, s.config.Temperature) * s.config.Volume * s.gas.Energy
}

func (s *GasStorage) BuildCore(ctx *metamodel.LocationContext) error {
	p, err := carrier.PressureOf(ctx, s.gas)
	if err != nil {
		return err
	}
	levels := p.Levels()
	top := levels[len(levels)-1]
	params := energysystem.DefaultStorage(s.Content(top))
	params.Balanced = s.config.Balanced
	if s.config.InitialPressure != nil {
		initial := s.Content(*s.config.InitialPressure) / params.NominalCapacity
		if *s.config.InitialPressure < 0 || initial > 1 {
			return ctx.Errorf(s.name, "initial pressure %g outside [0, %g]", *s.config.InitialPressure, top)
		}
		params.InitialLevel = &initial
	}
	if s.mux, err = storage.NewMultiplexer(s.name, s.implementation, params, s.config.PowerLimit); err != nil {
		return ctx.Errorf(s.name, "%v", err)
	}
	return s.mux.Build(ctx)
}

func (s *GasStorage) Connect(ctx *metamodel.LocationContext) error {
	p, err := carrier.PressureOf(ctx, s.gas)
	if err != nil {
		return err
	}
	return s.mux.ConnectLevels(ctx, p.Levels(), s.Content, p.NodeAt)
}

func (s *GasStorage) AddConstraints(ctx *metamodel.LocationContext) error {
	return s.mux.AddConstraints(ctx)
}
