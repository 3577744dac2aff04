package technology

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ohowland/mtress/internal/pkg/carrier"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/logging"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/modelerr"
	"github.com/ohowland/mtress/internal/pkg/optmodel"
	"github.com/ohowland/mtress/internal/pkg/physics"
	"github.com/ohowland/mtress/internal/pkg/storage"
	"github.com/ohowland/mtress/internal/pkg/timeseries"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type params = map[string]interface{}

func build(t *testing.T, opts []metamodel.Option, comps ...metamodel.Component) (*optmodel.Model, error) {
	t.Helper()
	index := timeseries.TimeIndex{Start: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), Freq: time.Hour, Steps: 2}
	mm, err := metamodel.New("test", index, opts...)
	assert.NilError(t, err)
	loc, err := metamodel.NewLocation("house")
	assert.NilError(t, err)
	for _, c := range comps {
		assert.NilError(t, loc.Add(c))
	}
	assert.NilError(t, mm.AddLocation(loc))
	return mm.Build(context.Background())
}

func mustBuild(t *testing.T, comps ...metamodel.Component) *optmodel.Model {
	t.Helper()
	m, err := build(t, nil, comps...)
	assert.NilError(t, err)
	return m
}

func node(t *testing.T, m *optmodel.Model, label string) *energysystem.Node {
	t.Helper()
	n, ok := m.Graph().Node(label)
	assert.Assert(t, ok, "no node %s", label)
	return n
}

func flow(t *testing.T, m *optmodel.Model, from, to string) *energysystem.Flow {
	t.Helper()
	f, ok := m.Graph().FlowBetween(node(t, m, from), node(t, m, to))
	assert.Assert(t, ok, "no flow %s->%s", from, to)
	return f
}

func heatCarrier(t *testing.T) *carrier.Heat {
	t.Helper()
	h, err := carrier.NewHeat([]float64{30, 60}, 10)
	assert.NilError(t, err)
	return h
}

func hydrogenCarrier(t *testing.T) *carrier.Gas {
	t.Helper()
	p, err := carrier.NewPressure(physics.Hydrogen, []float64{5, 30})
	assert.NilError(t, err)
	g, err := carrier.NewGas(p)
	assert.NilError(t, err)
	return g
}

// BEGIN --- Registry Tests

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	keys := r.Keys()
	assert.Assert(t, is.Len(keys, 13))
	for _, key := range []string{ElectricityGridKey, HeatPumpKey, HeatStorageKey, GasStorageKey, ElectrolyserKey} {
		assert.Assert(t, is.Contains(keys, key))
	}

	c, err := r.New(ElectricityDemandKey, "load", params{"time_series": 1.5})
	assert.NilError(t, err)
	assert.Equal(t, c.Name(), "load")

	_, err = r.New("fusion_reactor", "sun", nil)
	assert.ErrorContains(t, err, "unknown component type")

	_, err = r.New(ElectricityDemandKey, "load", params{"time_series": 1, "colour": "red"})
	assert.ErrorContains(t, err, "colour")
	assert.Assert(t, modelerr.IsConfiguration(err))
}

// BEGIN --- Electricity Tests

func TestElectricityGridAndDemand(t *testing.T) {
	grid, err := NewElectricityGrid("grid", params{"working_rate": []float64{0.3, 0.4}, "revenue": 0.1})
	assert.NilError(t, err)
	demand, err := NewElectricityDemand("load", params{"time_series": []interface{}{1, 2.5}})
	assert.NilError(t, err)
	m := mustBuild(t, carrier.NewElectricity(), grid, demand)

	imp := flow(t, m, "house:grid:source_import", "house:grid:grid_import")
	assert.Equal(t, imp.CostAt(1), 0.4)
	exp := flow(t, m, "house:grid:grid_export", "house:grid:sink_export")
	assert.Equal(t, exp.CostAt(0), -0.1)
	flow(t, m, "house:electricity:feed_in", "house:grid:grid_export")

	load := flow(t, m, "house:electricity:distribution", "house:load:sink")
	lo, up := load.Bounds(1)
	assert.Equal(t, lo, 2.5)
	assert.Equal(t, up, 2.5)
}

func TestElectricityGridWithoutWorkingRate(t *testing.T) {
	grid, err := NewElectricityGrid("grid", nil)
	assert.NilError(t, err)
	m := mustBuild(t, carrier.NewElectricity(), grid)
	_, ok := m.Graph().Node("house:grid:source_import")
	assert.Assert(t, !ok)
}

func TestRenewableSource(t *testing.T) {
	tests := []struct {
		name   string
		fixed  bool
		wantLo float64
	}{
		{"fixed", true, 4},
		{"curtailable", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv, err := NewRenewableSource("pv", params{
				"nominal_power":       10,
				"specific_generation": []float64{0, 0.4},
				"fixed":               tt.fixed,
			})
			assert.NilError(t, err)
			m := mustBuild(t, carrier.NewElectricity(), pv)
			f := flow(t, m, "house:pv:source", "house:electricity:feed_in")
			lo, up := f.Bounds(1)
			assert.Equal(t, lo, tt.wantLo)
			assert.Equal(t, up, 4.0)
		})
	}

	_, err := NewRenewableSource("pv", params{"nominal_power": 0})
	assert.ErrorContains(t, err, "nominal_power must be positive")

	pv, err := NewRenewableSource("pv", params{"nominal_power": 1, "specific_generation": 1.2})
	assert.NilError(t, err)
	_, err = build(t, nil, carrier.NewElectricity(), pv)
	assert.ErrorContains(t, err, "outside [0, 1]")
}

func TestMissingCarrier(t *testing.T) {
	demand, err := NewElectricityDemand("load", params{"time_series": 1})
	assert.NilError(t, err)
	_, err = build(t, nil, demand)
	assert.ErrorContains(t, err, "no electricity carrier")
	assert.Assert(t, modelerr.IsConfiguration(err))
}

// BEGIN --- Heat Tests

func TestHeatPump(t *testing.T) {
	air, err := NewAirHeatExchanger("air", params{"air_temperatures": []float64{0, 10}})
	assert.NilError(t, err)
	hp, err := NewHeatPump("hp", params{"electrical_power": 5, "thermal_power_limit": 12})
	assert.NilError(t, err)
	m := mustBuild(t, carrier.NewElectricity(), heatCarrier(t), air, hp)

	assert.Assert(t, is.Len(hp.Converters(), 3))
	conv := node(t, m, "house:hp:air_60")
	el := node(t, m, "house:hp:electricity")
	budget := node(t, m, "house:hp:heat_budget_bus")

	for step, temp := range []float64{0, 10} {
		cop := physics.COP(physics.CelsiusToKelvin(temp), physics.CelsiusToKelvin(60), DefaultCOP035)
		assert.Equal(t, conv.ConversionFactorAt(el, step), 1/cop)
		assert.Equal(t, conv.ConversionFactorAt(air.Bus(), step), (cop-1)/cop)
		assert.Equal(t, conv.ConversionFactorAt(budget, step), 1.0)
	}
	assert.Assert(t, conv.ConversionFactorAt(el, 1) < conv.ConversionFactorAt(el, 0), "warmer air must raise the COP")

	budgetFlow := flow(t, m, "house:hp:heat_budget", "house:hp:heat_budget_bus")
	assert.Equal(t, budgetFlow.Nominal, 12.0)
	flow(t, m, "house:hp:air_60", "house:heat:T_60")
}

func TestHeatPumpAnergySources(t *testing.T) {
	air, err := NewAirHeatExchanger("air", params{"air_temperatures": 5})
	assert.NilError(t, err)
	hp, err := NewHeatPump("hp", params{"electrical_power": 5, "anergy_sources": []string{"ground"}})
	assert.NilError(t, err)
	_, err = build(t, nil, carrier.NewElectricity(), heatCarrier(t), air, hp)
	assert.ErrorContains(t, err, `anergy source "ground" not found`)

	lonely, err := NewHeatPump("hp", params{"electrical_power": 5})
	assert.NilError(t, err)
	_, err = build(t, nil, carrier.NewElectricity(), heatCarrier(t), lonely)
	assert.ErrorContains(t, err, "no anergy source")
}

func TestResistiveHeater(t *testing.T) {
	rh, err := NewResistiveHeater("rod", params{
		"nominal_power":       3,
		"maximum_temperature": 70,
		"minimum_temperature": 20,
		"efficiency":          0.9,
	})
	assert.NilError(t, err)
	m := mustBuild(t, carrier.NewElectricity(), heatCarrier(t), rh)

	cold, warm := rh.Levels()
	assert.Equal(t, cold, 30.0)
	assert.Equal(t, warm, 60.0)

	ratio := (30.0 - 10) / (60.0 - 10)
	conv := rh.Converter()
	assert.Equal(t, conv.ConversionFactor(node(t, m, "house:electricity:distribution")), (1-ratio)/0.9)
	assert.Equal(t, conv.ConversionFactor(node(t, m, "house:heat:T_30")), ratio)
	assert.Equal(t, conv.ConversionFactor(node(t, m, "house:heat:T_60")), 1.0)
	assert.Equal(t, flow(t, m, "house:electricity:distribution", "house:rod:heater").Nominal, 3.0)
}

func TestResistiveHeaterRejects(t *testing.T) {
	tests := []struct {
		name   string
		params params
		errMsg string
	}{
		{"below all levels", params{"nominal_power": 1, "maximum_temperature": 5, "minimum_temperature": -5}, "no temperature level at or below 5"},
		{"only reference", params{"nominal_power": 1, "maximum_temperature": 20}, "between reference"},
		{"no cold level", params{"nominal_power": 1, "maximum_temperature": 65, "minimum_temperature": 61}, "no temperature level between 61"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rh, err := NewResistiveHeater("rod", tt.params)
			assert.NilError(t, err)
			_, err = build(t, nil, carrier.NewElectricity(), heatCarrier(t), rh)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}

	_, err := NewResistiveHeater("rod", params{"nominal_power": 1, "maximum_temperature": 50, "minimum_temperature": 50})
	assert.ErrorContains(t, err, "must lie below")
	_, err = NewResistiveHeater("rod", params{"nominal_power": 1, "maximum_temperature": 50, "efficiency": 1.5})
	assert.ErrorContains(t, err, "efficiency")
}

func TestFixedTemperatureHeating(t *testing.T) {
	sh, err := NewFixedTemperatureHeating("space", params{
		"flow_temperature":   60,
		"return_temperature": 30,
		"time_series":        []float64{4, 2},
	})
	assert.NilError(t, err)
	m := mustBuild(t, heatCarrier(t), sh)

	assert.Equal(t, sh.Ratio(), 0.4)
	exchanger := node(t, m, "house:space:heat_exchanger")
	assert.Equal(t, exchanger.ConversionFactor(node(t, m, "house:space:output")), 1-0.4)
	assert.Equal(t, exchanger.ConversionFactor(node(t, m, "house:heat:T_30")), 0.4)
	flow(t, m, "house:heat:T_60", "house:space:heat_exchanger")

	lo, up := flow(t, m, "house:space:output", "house:space:sink").Bounds(0)
	assert.Equal(t, lo, 4.0)
	assert.Equal(t, up, 4.0)

	_, err = NewFixedTemperatureHeating("space", params{"flow_temperature": 30, "return_temperature": 30})
	assert.ErrorContains(t, err, "must exceed")

	undeclared, err := NewFixedTemperatureHeating("space", params{"flow_temperature": 55, "return_temperature": 30, "time_series": 1})
	assert.NilError(t, err)
	_, err = build(t, nil, heatCarrier(t), undeclared)
	assert.ErrorContains(t, err, "55 is not a declared level")
}

// BEGIN --- Heat Storage Tests

func accessSummary(points []storage.AccessPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = fmt.Sprintf("%s@%g", p.Direction, p.Level)
	}
	return out
}

func TestHeatStorageAccess(t *testing.T) {
	tank, err := NewHeatStorage("tank", params{"volume": 1, "power_limit": 5})
	assert.NilError(t, err)
	m := mustBuild(t, heatCarrier(t), tank)

	perK := physics.KJToKWh(physics.H2ODensity * physics.H2OHeatCapacity)
	assert.Equal(t, tank.CapacityPerKelvin(), perK)
	assert.Equal(t, tank.Multiplexer().Capacity(), 50*perK)
	assert.DeepEqual(t, accessSummary(tank.Multiplexer().AccessPoints()),
		[]string{"output@10", "input@30", "output@30", "input@60"})

	assert.Assert(t, len(m.Program().ConstraintsWithPrefix("house:tank:gate")) > 0)
	assert.Assert(t, is.Len(m.Program().SOS2Sets(), 0))
	assert.Assert(t, tank.Multiplexer().Storage().Storage().Balanced)
}

func TestHeatStorageFlexible(t *testing.T) {
	tank, err := NewHeatStorage("tank", params{
		"volume":                     2,
		"power_limit":                5,
		"min_temperature":            25,
		"multiplexer_implementation": "flexible",
	})
	assert.NilError(t, err)
	m := mustBuild(t, heatCarrier(t), tank)

	assert.DeepEqual(t, tank.Levels(), []float64{30, 60})
	assert.Assert(t, is.Len(m.Program().SOS2Sets(), 2))
}

func TestHeatStorageLosses(t *testing.T) {
	tank, err := NewHeatStorage("tank", params{
		"volume":              1,
		"diameter":            1,
		"power_limit":         5,
		"u_value":             0.5,
		"ambient_temperature": []float64{5, 15},
		"initial_temperature": 35,
	})
	assert.NilError(t, err)
	mustBuild(t, heatCarrier(t), tank)

	want := physics.StorageLosses(0.5, 1, 60, 10, []float64{5, 15}, 1)
	p := tank.Multiplexer().Storage().Storage()
	assert.Equal(t, p.LossRate, want.LossRate)
	assert.DeepEqual(t, p.FixedLossesRelative, want.FixedRelative)
	assert.DeepEqual(t, p.FixedLossesAbsolute, want.FixedAbsolute)
	assert.Equal(t, *p.InitialLevel, 0.5)
}

func TestHeatStorageRejects(t *testing.T) {
	_, err := NewHeatStorage("tank", params{"volume": 1, "power_limit": 5, "multiplexer_implementation": "fancy"})
	assert.ErrorContains(t, err, "fancy")
	_, err = NewHeatStorage("tank", params{"volume": 1, "power_limit": 5, "u_value": 0.5, "diameter": 1})
	assert.ErrorContains(t, err, "ambient_temperature is required")
	_, err = NewHeatStorage("tank", params{"volume": -1, "power_limit": 5})
	assert.ErrorContains(t, err, "volume must be positive")

	cold, err := NewHeatStorage("tank", params{"volume": 1, "power_limit": 5, "max_temperature": 20})
	assert.NilError(t, err)
	_, err = build(t, nil, heatCarrier(t), cold)
	assert.ErrorContains(t, err, "no temperature level above reference")
}

// BEGIN --- Gas Tests

func TestElectrolyser(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, logging.Config{Level: "warn"})
	ely, err := NewElectrolyser("ely", params{"nominal_power": 100})
	assert.NilError(t, err)
	_, err = build(t, []metamodel.Option{metamodel.WithLogger(logger)},
		carrier.NewElectricity(), heatCarrier(t), hydrogenCarrier(t), ely)
	assert.NilError(t, err)

	assert.Equal(t, ely.Pressure(), 30.0)
	assert.Equal(t, ely.HeatLevel(), 60.0)
	assert.Assert(t, is.Contains(buf.String(), "waste heat temperature well above"))
	assert.Assert(t, is.Contains(buf.String(), "component=ely"))
}

func TestElectrolyserFactors(t *testing.T) {
	ely, err := NewElectrolyser("ely", params{
		"nominal_power":            100,
		"waste_heat_temperature":   65,
		"hydrogen_output_pressure": 20,
	})
	assert.NilError(t, err)
	m := mustBuild(t, carrier.NewElectricity(), heatCarrier(t), hydrogenCarrier(t), ely)

	assert.Equal(t, ely.Pressure(), 5.0)
	conv := ely.Converter()
	assert.Equal(t, conv.ConversionFactor(node(t, m, "house:gas:hydrogen_5")), 0.7)
	assert.Equal(t, conv.ConversionFactor(node(t, m, "house:heat:T_60")), 0.2)
	assert.Equal(t, conv.ConversionFactor(node(t, m, "house:electricity:distribution")), 1.0)
}

func TestElectrolyserRejects(t *testing.T) {
	ely, err := NewElectrolyser("ely", params{"nominal_power": 100, "hydrogen_output_pressure": 1})
	assert.NilError(t, err)
	_, err = build(t, nil, carrier.NewElectricity(), heatCarrier(t), hydrogenCarrier(t), ely)
	assert.ErrorContains(t, err, "no hydrogen pressure level at or below 1")

	cold, err := NewElectrolyser("ely", params{"nominal_power": 100, "waste_heat_temperature": 5})
	assert.NilError(t, err)
	_, err = build(t, nil, carrier.NewElectricity(), heatCarrier(t), hydrogenCarrier(t), cold)
	assert.ErrorContains(t, err, "no temperature level at or below waste heat temperature 5")

	_, err = NewElectrolyser("ely", params{"nominal_power": 100, "hydrogen_efficiency": 0.9})
	assert.ErrorContains(t, err, "more than 1")
}

func TestGasCompressor(t *testing.T) {
	comp, err := NewGasCompressor("comp", params{"gas": "hydrogen", "nominal_power": 10})
	assert.NilError(t, err)
	m := mustBuild(t, carrier.NewElectricity(), hydrogenCarrier(t), comp)

	assert.Assert(t, is.Len(comp.Stages(), 1))
	stage := node(t, m, "house:comp:compress_5_30")
	want := physics.Hydrogen.CompressionEnergy(5, 30, DefaultGasTemperature) / 0.85
	assert.Equal(t, stage.ConversionFactor(node(t, m, "house:comp:electrical_input")), want)
	assert.Assert(t, want > 0 && want < 0.1, "compression work %v kWh per kWh", want)
	flow(t, m, "house:gas:hydrogen_5", "house:comp:compress_5_30")
	flow(t, m, "house:comp:compress_5_30", "house:gas:hydrogen_30")

	_, err = NewGasCompressor("comp", params{"gas": "plasma", "nominal_power": 10})
	assert.ErrorContains(t, err, "unknown gas")
}

func TestGasGridAndDemand(t *testing.T) {
	grid, err := NewGasGrid("h2grid", params{"gas": "HYDROGEN", "grid_pressure": 30, "working_rate": 0.2})
	assert.NilError(t, err)
	demand, err := NewGasDemand("fuel", params{"gas": "hydrogen", "pressure": 5, "time_series": []float64{1, 3}})
	assert.NilError(t, err)
	m := mustBuild(t, hydrogenCarrier(t), grid, demand)

	assert.Equal(t, flow(t, m, "house:h2grid:source_import", "house:gas:hydrogen_30").CostAt(0), 0.2)
	lo, _ := flow(t, m, "house:gas:hydrogen_5", "house:fuel:sink").Bounds(1)
	assert.Equal(t, lo, 3.0)

	off, err := NewGasGrid("h2grid", params{"gas": "hydrogen", "grid_pressure": 10, "working_rate": 0.2})
	assert.NilError(t, err)
	_, err = build(t, nil, hydrogenCarrier(t), off)
	assert.ErrorContains(t, err, "pressure 10 bar is not a declared level")

	_, err = NewGasGrid("h2grid", params{"gas": "hydrogen", "grid_pressure": 30})
	assert.ErrorContains(t, err, "working_rate is required")
}

func TestGasStorage(t *testing.T) {
	tank, err := NewGasStorage("h2tank", params{
		"gas":                        "hydrogen",
		"volume":                     2,
		"power_limit":                50,
		"multiplexer_implementation": "flexible",
	})
	assert.NilError(t, err)
	m := mustBuild(t, hydrogenCarrier(t), tank)

	assert.Assert(t, tank.Content(5) < tank.Content(30))
	assert.Equal(t, tank.Multiplexer().Capacity(), tank.Content(30))
	want := physics.HydrogenDensity(30, DefaultGasTemperature) * 2 * physics.Hydrogen.Energy
	assert.Assert(t, math.Abs(tank.Content(30)-want) < 1e-9)

	assert.DeepEqual(t, accessSummary(tank.Multiplexer().AccessPoints()),
		[]string{"input@5", "output@5", "input@30"})
	assert.Assert(t, is.Len(m.Program().SOS2Sets(), 2))
}
