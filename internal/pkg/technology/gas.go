package technology

import (
	"fmt"

	"github.com/ohowland/mtress/internal/pkg/carrier"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/physics"
	"github.com/ohowland/mtress/internal/pkg/timeseries"
	"golang.org/x/exp/slog"
)

// DefaultGasTemperature is the temperature in °C used for densities and
// compression work.
const DefaultGasTemperature = 25.0

// WasteHeatGap is the temperature difference in K above which the
// electrolyser warns that its waste heat is degraded.
const WasteHeatGap = 10.0

// declaredPressure returns the pressure carrier of gas and checks that
// pressure is one of its levels.
func declaredPressure(ctx *metamodel.LocationContext, component string, gas physics.Gas, pressure float64) (*carrier.Pressure, *energysystem.Node, error) {
	p, err := carrier.PressureOf(ctx, gas)
	if err != nil {
		return nil, nil, err
	}
	if !p.HasLevel(pressure) {
		return nil, nil, ctx.Errorf(component, "%s pressure %g bar is not a declared level %v", gas.Name, pressure, p.Levels())
	}
	node, err := p.NodeAt(pressure)
	return p, node, err
}

// GasGridConfig holds the parameters of a GasGrid. The working rate is in
// currency per kWh of gas.
type GasGridConfig struct {
	Gas          string      `mapstructure:"gas"`
	GridPressure float64     `mapstructure:"grid_pressure"`
	WorkingRate  interface{} `mapstructure:"working_rate"`
	Revenue      interface{} `mapstructure:"revenue"`
	Power        float64     `mapstructure:"nominal_power"`
}

// GasGrid supplies one gas at the grid pressure and optionally takes it
// back for a revenue.
type GasGrid struct {
	base
	config GasGridConfig
	gas    physics.Gas
	source *energysystem.Node
}

// NewGasGrid returns a gas grid connection.
func NewGasGrid(name string, params map[string]interface{}) (*GasGrid, error) {
	cfg := GasGridConfig{}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	gas, err := physics.GasByName(cfg.Gas)
	if err != nil {
		return nil, err
	}
	if err := positive("grid_pressure", cfg.GridPressure); err != nil {
		return nil, err
	}
	if err := nonNegative("nominal_power", cfg.Power); err != nil {
		return nil, err
	}
	if cfg.WorkingRate == nil {
		return nil, fmt.Errorf("working_rate is required")
	}
	return &GasGrid{base: base{name}, config: cfg, gas: gas}, nil
}

func (g *GasGrid) Gas() physics.Gas           { return g.gas }
func (g *GasGrid) Source() *energysystem.Node { return g.source }

func (g *GasGrid) BuildCore(ctx *metamodel.LocationContext) error {
	_, node, err := declaredPressure(ctx, g.name, g.gas, g.config.GridPressure)
	if err != nil {
		return err
	}
	rate, err := ctx.Series(g.name, "working_rate", g.config.WorkingRate, timeseries.Interval)
	if err != nil {
		return err
	}
	graph := ctx.Graph()
	if g.source, err = graph.AddSource(ctx.Label(g.name, "source_import")); err != nil {
		return err
	}
	opts := []energysystem.FlowOption{energysystem.WithCost(rate)}
	if g.config.Power > 0 {
		opts = append(opts, energysystem.WithNominal(g.config.Power))
	}
	if _, err := graph.AddFlow(g.source, node, opts...); err != nil {
		return err
	}
	if g.config.Revenue == nil {
		return nil
	}
	revenue, err := ctx.Series(g.name, "revenue", g.config.Revenue, timeseries.Interval)
	if err != nil {
		return err
	}
	cost := make([]float64, len(revenue))
	for i, r := range revenue {
		cost[i] = -r
	}
	sink, err := graph.AddSink(ctx.Label(g.name, "sink_export"))
	if err != nil {
		return err
	}
	_, err = graph.AddFlow(node, sink, energysystem.WithCost(cost))
	return err
}

// GasCompressorConfig holds the parameters of a GasCompressor. The power
// limit applies to the electrical input in kW.
type GasCompressorConfig struct {
	Gas                  string  `mapstructure:"gas"`
	Power                float64 `mapstructure:"nominal_power"`
	IsothermalEfficiency float64 `mapstructure:"isothermal_efficiency"`
	Temperature          float64 `mapstructure:"temperature"`
}

// GasCompressor lifts gas from each pressure level to the next higher one.
// The electricity needed per kWh of gas is the isothermal compression work
// divided by the efficiency.
type GasCompressor struct {
	base
	config GasCompressorConfig
	gas    physics.Gas

	electricity *energysystem.Node
	stages      []*energysystem.Node
}

// NewGasCompressor returns a compressor with an isothermal efficiency of
// 0.85 by default.
func NewGasCompressor(name string, params map[string]interface{}) (*GasCompressor, error) {
	cfg := GasCompressorConfig{IsothermalEfficiency: 0.85, Temperature: DefaultGasTemperature}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	gas, err := physics.GasByName(cfg.Gas)
	if err != nil {
		return nil, err
	}
	if err := positive("nominal_power", cfg.Power); err != nil {
		return nil, err
	}
	if cfg.IsothermalEfficiency <= 0 || cfg.IsothermalEfficiency > 1 {
		return nil, fmt.Errorf("isothermal_efficiency %v outside (0, 1]", cfg.IsothermalEfficiency)
	}
	return &GasCompressor{base: base{name}, config: cfg, gas: gas}, nil
}

// Stages lists one converter per pair of adjacent pressure levels, lowest
// first.
func (c *GasCompressor) Stages() []*energysystem.Node { return c.stages }

func (c *GasCompressor) BuildCore(ctx *metamodel.LocationContext) error {
	el, err := carrier.ElectricityOf(ctx)
	if err != nil {
		return err
	}
	graph := ctx.Graph()
	if c.electricity, err = graph.AddBus(ctx.Label(c.name, "electrical_input")); err != nil {
		return err
	}
	_, err = graph.AddFlow(el.Distribution(), c.electricity, energysystem.WithNominal(c.config.Power))
	return err
}

func (c *GasCompressor) Connect(ctx *metamodel.LocationContext) error {
	p, err := carrier.PressureOf(ctx, c.gas)
	if err != nil {
		return err
	}
	levels := p.Levels()
	if len(levels) < 2 {
		return ctx.Errorf(c.name, "%s has a single pressure level, nothing to compress", c.gas.Name)
	}
	graph := ctx.Graph()
	c.stages = nil
	for i := 1; i < len(levels); i++ {
		low, high := levels[i-1], levels[i]
		lowNode, err := p.NodeAt(low)
		if err != nil {
			return err
		}
		highNode, err := p.NodeAt(high)
		if err != nil {
			return err
		}
		stage, err := graph.AddConverter(ctx.Label(c.name, fmt.Sprintf("compress_%g_%g", low, high)))
		if err != nil {
			return err
		}
		for _, link := range [][2]*energysystem.Node{{c.electricity, stage}, {lowNode, stage}, {stage, highNode}} {
			if _, err := graph.AddFlow(link[0], link[1]); err != nil {
				return err
			}
		}
		work := c.gas.CompressionEnergy(low, high, c.config.Temperature) / c.config.IsothermalEfficiency
		if err := graph.SetConversionFactor(stage, c.electricity, work); err != nil {
			return err
		}
		c.stages = append(c.stages, stage)
	}
	return nil
}

// ElectrolyserConfig holds the parameters of an Electrolyser. Efficiencies
// are shares of the electrical input.
type ElectrolyserConfig struct {
	Power                  float64 `mapstructure:"nominal_power"`
	HydrogenEfficiency     float64 `mapstructure:"hydrogen_efficiency"`
	ThermalEfficiency      float64 `mapstructure:"thermal_efficiency"`
	WasteHeatTemperature   float64 `mapstructure:"waste_heat_temperature"`
	HydrogenOutputPressure float64 `mapstructure:"hydrogen_output_pressure"`
}

// Electrolyser splits water with electricity. Hydrogen leaves at the highest
// pressure level not above the output pressure; waste heat goes to the
// highest heat level not above the waste heat temperature.
type Electrolyser struct {
	base
	config ElectrolyserConfig

	pressure  float64
	heatLevel float64
	converter *energysystem.Node
}

// NewElectrolyser returns a PEM electrolyser unless configured otherwise.
func NewElectrolyser(name string, params map[string]interface{}) (*Electrolyser, error) {
	cfg := ElectrolyserConfig{
		HydrogenEfficiency:     0.7,
		ThermalEfficiency:      0.2,
		WasteHeatTemperature:   75,
		HydrogenOutputPressure: 30,
	}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	if err := positive("nominal_power", cfg.Power); err != nil {
		return nil, err
	}
	if err := positive("hydrogen_efficiency", cfg.HydrogenEfficiency); err != nil {
		return nil, err
	}
	if err := nonNegative("thermal_efficiency", cfg.ThermalEfficiency); err != nil {
		return nil, err
	}
	if cfg.HydrogenEfficiency+cfg.ThermalEfficiency > 1 {
		return nil, fmt.Errorf("efficiencies sum to %v, more than 1", cfg.HydrogenEfficiency+cfg.ThermalEfficiency)
	}
	return &Electrolyser{base: base{name}, config: cfg}, nil
}

// Pressure is the hydrogen level the electrolyser feeds.
func (e *Electrolyser) Pressure() float64 { return e.pressure }

// HeatLevel is the temperature level receiving waste heat.
func (e *Electrolyser) HeatLevel() float64 { return e.heatLevel }

func (e *Electrolyser) Converter() *energysystem.Node { return e.converter }

func (e *Electrolyser) BuildCore(ctx *metamodel.LocationContext) error {
	h2, err := carrier.PressureOf(ctx, physics.Hydrogen)
	if err != nil {
		return err
	}
	pressure, ok := carrier.LevelAtOrBelow(h2.Levels(), e.config.HydrogenOutputPressure)
	if !ok {
		return ctx.Errorf(e.name, "no hydrogen pressure level at or below %g bar", e.config.HydrogenOutputPressure)
	}
	e.pressure = pressure

	if e.config.ThermalEfficiency > 0 {
		heat, err := carrier.HeatOf(ctx)
		if err != nil {
			return err
		}
		level, ok := carrier.LevelAtOrBelow(heat.Levels(), e.config.WasteHeatTemperature)
		if !ok {
			return ctx.Errorf(e.name, "no temperature level at or below waste heat temperature %g", e.config.WasteHeatTemperature)
		}
		if gap := e.config.WasteHeatTemperature - level; gap > WasteHeatGap {
			ctx.Logger(e.name).Warn("waste heat temperature well above the next temperature level",
				slog.Float64("waste_heat_temperature", e.config.WasteHeatTemperature),
				slog.Float64("level", level))
		}
		e.heatLevel = level
	}

	e.converter, err = ctx.Graph().AddConverter(ctx.Label(e.name, "converter"))
	return err
}

func (e *Electrolyser) Connect(ctx *metamodel.LocationContext) error {
	el, err := carrier.ElectricityOf(ctx)
	if err != nil {
		return err
	}
	h2, err := carrier.PressureOf(ctx, physics.Hydrogen)
	if err != nil {
		return err
	}
	h2Node, err := h2.NodeAt(e.pressure)
	if err != nil {
		return err
	}
	graph := ctx.Graph()
	if _, err := graph.AddFlow(el.Distribution(), e.converter, energysystem.WithNominal(e.config.Power)); err != nil {
		return err
	}
	if _, err := graph.AddFlow(e.converter, h2Node); err != nil {
		return err
	}
	if err := graph.SetConversionFactor(e.converter, h2Node, e.config.HydrogenEfficiency); err != nil {
		return err
	}
	if e.config.ThermalEfficiency == 0 {
		return nil
	}
	heat, err := carrier.HeatOf(ctx)
	if err != nil {
		return err
	}
	heatNode, err := heat.NodeAt(e.heatLevel)
	if err != nil {
		return err
	}
	if _, err := graph.AddFlow(e.converter, heatNode); err != nil {
		return err
	}
	return graph.SetConversionFactor(e.converter, heatNode, e.config.ThermalEfficiency)
}

// GasDemandConfig holds a demand in kW of gas at a declared pressure.
type GasDemandConfig struct {
	Gas        string      `mapstructure:"gas"`
	Pressure   float64     `mapstructure:"pressure"`
	TimeSeries interface{} `mapstructure:"time_series"`
}

// GasDemand is a fixed gas load.
type GasDemand struct {
	base
	config GasDemandConfig
	gas    physics.Gas
	sink   *energysystem.Node
}

// NewGasDemand returns a gas demand.
func NewGasDemand(name string, params map[string]interface{}) (*GasDemand, error) {
	cfg := GasDemandConfig{}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	gas, err := physics.GasByName(cfg.Gas)
	if err != nil {
		return nil, err
	}
	return &GasDemand{base: base{name}, config: cfg, gas: gas}, nil
}

func (d *GasDemand) Sink() *energysystem.Node { return d.sink }

func (d *GasDemand) BuildCore(ctx *metamodel.LocationContext) error {
	_, node, err := declaredPressure(ctx, d.name, d.gas, d.config.Pressure)
	if err != nil {
		return err
	}
	profile, err := ctx.Series(d.name, "time_series", d.config.TimeSeries, timeseries.Interval)
	if err != nil {
		return err
	}
	if err := checkProfile("time_series", profile); err != nil {
		return ctx.Errorf(d.name, "%v", err)
	}
	if d.sink, err = ctx.Graph().AddSink(ctx.Label(d.name, "sink")); err != nil {
		return err
	}
	_, err = ctx.Graph().AddFlow(node, d.sink, energysystem.WithNominal(1), energysystem.WithFix(profile))
	return err
}
