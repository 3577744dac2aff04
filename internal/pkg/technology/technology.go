// Package technology implements the components that attach to the carriers
// of a location: grid connections, demands, converters and storages.
package technology

import (
	"fmt"
	"math"

	"github.com/ohowland/mtress/internal/pkg/metamodel"
)

// Registry keys.
const (
	ElectricityGridKey         = "electricity_grid"
	ElectricityDemandKey       = "electricity_demand"
	RenewableSourceKey         = "renewable_source"
	AirHeatExchangerKey        = "air_heat_exchanger"
	HeatPumpKey                = "heat_pump"
	ResistiveHeaterKey         = "resistive_heater"
	FixedTemperatureHeatingKey = "fixed_temperature_heating"
	HeatStorageKey             = "heat_storage"
	GasGridKey                 = "gas_grid"
	GasCompressorKey           = "gas_compressor"
	ElectrolyserKey            = "electrolyser"
	GasStorageKey              = "gas_storage"
	GasDemandKey               = "gas_demand"
)

// DefaultRegistry returns a registry holding every technology of this
// package.
func DefaultRegistry() *metamodel.Registry {
	r := metamodel.NewRegistry()
	r.MustRegister(ElectricityGridKey, factory(NewElectricityGrid))
	r.MustRegister(ElectricityDemandKey, factory(NewElectricityDemand))
	r.MustRegister(RenewableSourceKey, factory(NewRenewableSource))
	r.MustRegister(AirHeatExchangerKey, factory(NewAirHeatExchanger))
	r.MustRegister(HeatPumpKey, factory(NewHeatPump))
	r.MustRegister(ResistiveHeaterKey, factory(NewResistiveHeater))
	r.MustRegister(FixedTemperatureHeatingKey, factory(NewFixedTemperatureHeating))
	r.MustRegister(HeatStorageKey, factory(NewHeatStorage))
	r.MustRegister(GasGridKey, factory(NewGasGrid))
	r.MustRegister(GasCompressorKey, factory(NewGasCompressor))
	r.MustRegister(ElectrolyserKey, factory(NewElectrolyser))
	r.MustRegister(GasStorageKey, factory(NewGasStorage))
	r.MustRegister(GasDemandKey, factory(NewGasDemand))
	return r
}

// factory adapts a typed constructor to metamodel.Factory.
func factory[C metamodel.Component](newFn func(string, map[string]interface{}) (C, error)) metamodel.Factory {
	return func(name string, params map[string]interface{}) (metamodel.Component, error) {
		c, err := newFn(name, params)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// decode fills cfg, a pointer to a config struct already holding defaults.
func decode(name string, params map[string]interface{}, cfg interface{}) error {
	if err := metamodel.Decode(params, cfg); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// base provides the name and empty phases shared by all technologies.
type base struct {
	name string
}

func (b *base) Name() string                                        { return b.name }
func (b *base) Connect(ctx *metamodel.LocationContext) error        { return nil }
func (b *base) AddConstraints(ctx *metamodel.LocationContext) error { return nil }

func positive(field string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be positive and finite, got %v", field, v)
	}
	return nil
}

func nonNegative(field string, v float64) error {
	if !(v >= 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be non-negative and finite, got %v", field, v)
	}
	return nil
}

func checkProfile(field string, values []float64) error {
	for i, v := range values {
		if !(v >= 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%s[%d] = %v must be non-negative and finite", field, i, v)
		}
	}
	return nil
}
