package technology

import (
	"fmt"
	"math"

	"github.com/ohowland/mtress/internal/pkg/carrier"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/physics"
	"github.com/ohowland/mtress/internal/pkg/timeseries"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// AnergySource offers low temperature heat to heat pumps. Temperature is
// available after build_core.
type AnergySource interface {
	metamodel.Component
	Temperature() []float64
	Bus() *energysystem.Node
}

// AirHeatExchangerConfig holds the ambient air temperature in °C and an
// optional power limit in kW.
type AirHeatExchangerConfig struct {
	AirTemperatures interface{} `mapstructure:"air_temperatures"`
	Power           float64     `mapstructure:"nominal_power"`
}

// AirHeatExchanger extracts heat from ambient air.
type AirHeatExchanger struct {
	base
	config      AirHeatExchangerConfig
	temperature []float64
	bus         *energysystem.Node
}

// NewAirHeatExchanger returns an air heat exchanger.
func NewAirHeatExchanger(name string, params map[string]interface{}) (*AirHeatExchanger, error) {
	cfg := AirHeatExchangerConfig{}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	if err := nonNegative("nominal_power", cfg.Power); err != nil {
		return nil, err
	}
	return &AirHeatExchanger{base: base{name}, config: cfg}, nil
}

func (a *AirHeatExchanger) Temperature() []float64  { return slices.Clone(a.temperature) }
func (a *AirHeatExchanger) Bus() *energysystem.Node { return a.bus }

func (a *AirHeatExchanger) BuildCore(ctx *metamodel.LocationContext) error {
	var err error
	if a.temperature, err = ctx.Series(a.name, "air_temperatures", a.config.AirTemperatures, timeseries.Interval); err != nil {
		return err
	}
	graph := ctx.Graph()
	source, err := graph.AddSource(ctx.Label(a.name, "source"))
	if err != nil {
		return err
	}
	if a.bus, err = graph.AddBus(ctx.Label(a.name, "output")); err != nil {
		return err
	}
	var opts []energysystem.FlowOption
	if a.config.Power > 0 {
		opts = append(opts, energysystem.WithNominal(a.config.Power))
	}
	_, err = graph.AddFlow(source, a.bus, opts...)
	return err
}

// DefaultCOP035 is the COP of a heat pump lifting from 0 °C to 35 °C.
const DefaultCOP035 = 4.6

// HeatPumpConfig holds the parameters of a HeatPump. An empty anergy source
// list uses every anergy source of the location.
type HeatPumpConfig struct {
	ElectricalPower   float64  `mapstructure:"electrical_power"`
	ThermalPowerLimit float64  `mapstructure:"thermal_power_limit"`
	COP035            float64  `mapstructure:"cop_0_35"`
	AnergySources     []string `mapstructure:"anergy_sources"`
}

// HeatPump lifts heat from anergy sources to the heat levels. Every pair of
// anergy source and target level gets a virtual converter whose COP follows
// the source temperature; all of them share the electricity input and a
// heat budget.
type HeatPump struct {
	base
	config HeatPumpConfig

	electricity *energysystem.Node
	budget      *energysystem.Node
	converters  []*energysystem.Node
}

// NewHeatPump returns a heat pump.
func NewHeatPump(name string, params map[string]interface{}) (*HeatPump, error) {
	cfg := HeatPumpConfig{COP035: DefaultCOP035}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	if err := positive("electrical_power", cfg.ElectricalPower); err != nil {
		return nil, err
	}
	if err := nonNegative("thermal_power_limit", cfg.ThermalPowerLimit); err != nil {
		return nil, err
	}
	if err := positive("cop_0_35", cfg.COP035); err != nil {
		return nil, err
	}
	return &HeatPump{base: base{name}, config: cfg}, nil
}

// Converters lists the virtual converters in creation order.
func (h *HeatPump) Converters() []*energysystem.Node { return slices.Clone(h.converters) }

func (h *HeatPump) BuildCore(ctx *metamodel.LocationContext) error {
	el, err := carrier.ElectricityOf(ctx)
	if err != nil {
		return err
	}
	graph := ctx.Graph()
	if h.electricity, err = graph.AddBus(ctx.Label(h.name, "electricity")); err != nil {
		return err
	}
	if _, err = graph.AddFlow(el.Distribution(), h.electricity, energysystem.WithNominal(h.config.ElectricalPower)); err != nil {
		return err
	}
	budgetSource, err := graph.AddSource(ctx.Label(h.name, "heat_budget"))
	if err != nil {
		return err
	}
	if h.budget, err = graph.AddBus(ctx.Label(h.name, "heat_budget_bus")); err != nil {
		return err
	}
	var opts []energysystem.FlowOption
	if h.config.ThermalPowerLimit > 0 {
		opts = append(opts, energysystem.WithNominal(h.config.ThermalPowerLimit))
	}
	_, err = graph.AddFlow(budgetSource, h.budget, opts...)
	return err
}

func (h *HeatPump) anergySources(ctx *metamodel.LocationContext) ([]AnergySource, error) {
	var sources []AnergySource
	for _, c := range ctx.Components() {
		src, ok := c.(AnergySource)
		if !ok {
			continue
		}
		if len(h.config.AnergySources) > 0 && !slices.Contains(h.config.AnergySources, src.Name()) {
			continue
		}
		sources = append(sources, src)
	}
	for _, want := range h.config.AnergySources {
		found := false
		for _, src := range sources {
			found = found || src.Name() == want
		}
		if !found {
			return nil, fmt.Errorf("anergy source %q not found", want)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no anergy source at location %s", ctx.Location())
	}
	return sources, nil
}

func (h *HeatPump) Connect(ctx *metamodel.LocationContext) error {
	heat, err := carrier.HeatOf(ctx)
	if err != nil {
		return err
	}
	sources, err := h.anergySources(ctx)
	if err != nil {
		return ctx.Errorf(h.name, "%v", err)
	}
	graph := ctx.Graph()
	h.converters = nil
	for _, src := range sources {
		tIn := src.Temperature()
		for _, level := range heat.Levels() {
			node, err := heat.NodeAt(level)
			if err != nil {
				return err
			}
			conv, err := graph.AddConverter(ctx.Label(h.name, fmt.Sprintf("%s_%g", src.Name(), level)))
			if err != nil {
				return err
			}
			for _, link := range [][2]*energysystem.Node{{src.Bus(), conv}, {h.electricity, conv}, {h.budget, conv}, {conv, node}} {
				if _, err := graph.AddFlow(link[0], link[1]); err != nil {
					return err
				}
			}
			anergy := make([]float64, len(tIn))
			electricity := make([]float64, len(tIn))
			for t, temp := range tIn {
				cop := physics.COP(physics.CelsiusToKelvin(temp), physics.CelsiusToKelvin(level), h.config.COP035)
				anergy[t] = (cop - 1) / cop
				electricity[t] = 1 / cop
			}
			if err := graph.SetConversionSeries(conv, src.Bus(), anergy); err != nil {
				return err
			}
			if err := graph.SetConversionSeries(conv, h.electricity, electricity); err != nil {
				return err
			}
			h.converters = append(h.converters, conv)
		}
	}
	ctx.Logger(h.name).Debug("heat pump connected", slog.Int("converters", len(h.converters)))
	return nil
}

// ResistiveHeaterConfig holds the parameters of a ResistiveHeater. The
// heater warms water from the lowest level at or above the minimum
// temperature to the highest level at or below the maximum temperature.
type ResistiveHeaterConfig struct {
	Power              float64 `mapstructure:"nominal_power"`
	MaximumTemperature float64 `mapstructure:"maximum_temperature"`
	MinimumTemperature float64 `mapstructure:"minimum_temperature"`
	Efficiency         float64 `mapstructure:"efficiency"`
}

// ResistiveHeater converts electricity to heat.
type ResistiveHeater struct {
	base
	config ResistiveHeaterConfig

	warm, cold float64
	ratio      float64
	converter  *energysystem.Node
}

// NewResistiveHeater returns a heater with efficiency 1 by default.
func NewResistiveHeater(name string, params map[string]interface{}) (*ResistiveHeater, error) {
	cfg := ResistiveHeaterConfig{Efficiency: 1}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	if err := positive("nominal_power", cfg.Power); err != nil {
		return nil, err
	}
	if cfg.Efficiency <= 0 || cfg.Efficiency > 1 {
		return nil, fmt.Errorf("efficiency %v outside (0, 1]", cfg.Efficiency)
	}
	if cfg.MinimumTemperature >= cfg.MaximumTemperature {
		return nil, fmt.Errorf("minimum temperature %v must lie below maximum temperature %v", cfg.MinimumTemperature, cfg.MaximumTemperature)
	}
	return &ResistiveHeater{base: base{name}, config: cfg}, nil
}

// Levels returns the cold and warm levels the heater connects.
func (r *ResistiveHeater) Levels() (cold, warm float64) { return r.cold, r.warm }

func (r *ResistiveHeater) Converter() *energysystem.Node { return r.converter }

func (r *ResistiveHeater) BuildCore(ctx *metamodel.LocationContext) error {
	heat, err := carrier.HeatOf(ctx)
	if err != nil {
		return err
	}
	levels := heat.Levels()
	warm, ok := carrier.LevelAtOrBelow(levels, r.config.MaximumTemperature)
	if !ok {
		return ctx.Errorf(r.name, "no temperature level at or below %g", r.config.MaximumTemperature)
	}
	if warm <= heat.Reference() {
		return ctx.Errorf(r.name, "no temperature level between reference %g and %g", heat.Reference(), r.config.MaximumTemperature)
	}
	cold, ok := carrier.LevelAtOrAbove(levels, math.Max(r.config.MinimumTemperature, heat.Reference()))
	if !ok || cold >= warm {
		return ctx.Errorf(r.name, "no temperature level between %g and %g", r.config.MinimumTemperature, warm)
	}
	r.warm, r.cold = warm, cold
	r.ratio = (cold - heat.Reference()) / (warm - heat.Reference())
	r.converter, err = ctx.Graph().AddConverter(ctx.Label(r.name, "heater"))
	return err
}

func (r *ResistiveHeater) Connect(ctx *metamodel.LocationContext) error {
	el, err := carrier.ElectricityOf(ctx)
	if err != nil {
		return err
	}
	heat, err := carrier.HeatOf(ctx)
	if err != nil {
		return err
	}
	warm, err := heat.NodeAt(r.warm)
	if err != nil {
		return err
	}
	cold, err := heat.NodeAt(r.cold)
	if err != nil {
		return err
	}
	graph := ctx.Graph()
	if _, err := graph.AddFlow(el.Distribution(), r.converter, energysystem.WithNominal(r.config.Power)); err != nil {
		return err
	}
	if _, err := graph.AddFlow(cold, r.converter); err != nil {
		return err
	}
	if _, err := graph.AddFlow(r.converter, warm); err != nil {
		return err
	}
	if err := graph.SetConversionFactor(r.converter, el.Distribution(), (1-r.ratio)/r.config.Efficiency); err != nil {
		return err
	}
	return graph.SetConversionFactor(r.converter, cold, r.ratio)
}

// FixedTemperatureHeatingConfig holds a heat demand in kW that is served at
// the flow temperature and returns water at the return temperature.
type FixedTemperatureHeatingConfig struct {
	FlowTemperature   float64     `mapstructure:"flow_temperature"`
	ReturnTemperature float64     `mapstructure:"return_temperature"`
	TimeSeries        interface{} `mapstructure:"time_series"`
}

// FixedTemperatureHeating is a heat demand with fixed flow and return
// temperatures. The heat exchanger takes water at the flow level, delivers
// the share 1-ratio to the demand and returns the rest at the return level,
// with ratio = (return-ref)/(flow-ref).
type FixedTemperatureHeating struct {
	base
	config FixedTemperatureHeatingConfig

	ratio     float64
	exchanger *energysystem.Node
	output    *energysystem.Node
	sink      *energysystem.Node
}

// NewFixedTemperatureHeating returns a heat demand.
func NewFixedTemperatureHeating(name string, params map[string]interface{}) (*FixedTemperatureHeating, error) {
	cfg := FixedTemperatureHeatingConfig{}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	if cfg.FlowTemperature <= cfg.ReturnTemperature {
		return nil, fmt.Errorf("flow temperature %v must exceed return temperature %v", cfg.FlowTemperature, cfg.ReturnTemperature)
	}
	return &FixedTemperatureHeating{base: base{name}, config: cfg}, nil
}

func (f *FixedTemperatureHeating) Ratio() float64           { return f.ratio }
func (f *FixedTemperatureHeating) Sink() *energysystem.Node { return f.sink }

func (f *FixedTemperatureHeating) BuildCore(ctx *metamodel.LocationContext) error {
	heat, err := carrier.HeatOf(ctx)
	if err != nil {
		return err
	}
	for _, level := range []float64{f.config.FlowTemperature, f.config.ReturnTemperature} {
		if !heat.HasLevel(level) {
			return ctx.Errorf(f.name, "temperature %g is not a declared level %v", level, heat.Levels())
		}
	}
	if f.config.ReturnTemperature < heat.Reference() {
		return ctx.Errorf(f.name, "return temperature %g below reference %g", f.config.ReturnTemperature, heat.Reference())
	}
	profile, err := ctx.Series(f.name, "time_series", f.config.TimeSeries, timeseries.Interval)
	if err != nil {
		return err
	}
	if err := checkProfile("time_series", profile); err != nil {
		return ctx.Errorf(f.name, "%v", err)
	}
	f.ratio = (f.config.ReturnTemperature - heat.Reference()) / (f.config.FlowTemperature - heat.Reference())

	graph := ctx.Graph()
	if f.exchanger, err = graph.AddConverter(ctx.Label(f.name, "heat_exchanger")); err != nil {
		return err
	}
	if f.output, err = graph.AddBus(ctx.Label(f.name, "output")); err != nil {
		return err
	}
	if f.sink, err = graph.AddSink(ctx.Label(f.name, "sink")); err != nil {
		return err
	}
	if _, err = graph.AddFlow(f.exchanger, f.output); err != nil {
		return err
	}
	_, err = graph.AddFlow(f.output, f.sink, energysystem.WithNominal(1), energysystem.WithFix(profile))
	return err
}

func (f *FixedTemperatureHeating) Connect(ctx *metamodel.LocationContext) error {
	heat, err := carrier.HeatOf(ctx)
	if err != nil {
		return err
	}
	flowNode, err := heat.NodeAt(f.config.FlowTemperature)
	if err != nil {
		return err
	}
	returnNode, err := heat.NodeAt(f.config.ReturnTemperature)
	if err != nil {
		return err
	}
	graph := ctx.Graph()
	if _, err := graph.AddFlow(flowNode, f.exchanger); err != nil {
		return err
	}
	if _, err := graph.AddFlow(f.exchanger, returnNode); err != nil {
		return err
	}
	if err := graph.SetConversionFactor(f.exchanger, f.output, 1-f.ratio); err != nil {
		return err
	}
	return graph.SetConversionFactor(f.exchanger, returnNode, f.ratio)
}
