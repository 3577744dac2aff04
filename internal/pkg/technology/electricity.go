package technology

import (
	"github.com/ohowland/mtress/internal/pkg/carrier"
	"github.com/ohowland/mtress/internal/pkg/energysystem"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/timeseries"
	"golang.org/x/exp/slog"
)

// ElectricityGridConfig holds the parameters of an ElectricityGrid.
// Prices are series specifiers in currency per kWh.
type ElectricityGridConfig struct {
	WorkingRate interface{} `mapstructure:"working_rate"`
	Revenue     interface{} `mapstructure:"revenue"`
	Power       float64     `mapstructure:"nominal_power"`
}

// ElectricityGrid imports to the distribution bus and exports from the
// feed-in bus. Without a working rate the grid only takes energy.
type ElectricityGrid struct {
	base
	config ElectricityGridConfig

	gridImport *energysystem.Node
	gridExport *energysystem.Node
}

// NewElectricityGrid returns a grid connection.
func NewElectricityGrid(name string, params map[string]interface{}) (*ElectricityGrid, error) {
	cfg := ElectricityGridConfig{}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	if err := nonNegative("nominal_power", cfg.Power); err != nil {
		return nil, err
	}
	return &ElectricityGrid{base: base{name}, config: cfg}, nil
}

func (g *ElectricityGrid) Import() *energysystem.Node { return g.gridImport }
func (g *ElectricityGrid) Export() *energysystem.Node { return g.gridExport }

func (g *ElectricityGrid) BuildCore(ctx *metamodel.LocationContext) error {
	el, err := carrier.ElectricityOf(ctx)
	if err != nil {
		return err
	}
	graph := ctx.Graph()

	if g.gridExport, err = graph.AddBus(ctx.Label(g.name, "grid_export")); err != nil {
		return err
	}
	if _, err = graph.AddFlow(el.FeedIn(), g.gridExport); err != nil {
		return err
	}
	sink, err := graph.AddSink(ctx.Label(g.name, "sink_export"))
	if err != nil {
		return err
	}
	var exportOpts []energysystem.FlowOption
	if g.config.Revenue != nil {
		revenue, err := ctx.Series(g.name, "revenue", g.config.Revenue, timeseries.Interval)
		if err != nil {
			return err
		}
		cost := make([]float64, len(revenue))
		for i, r := range revenue {
			cost[i] = -r
		}
		exportOpts = append(exportOpts, energysystem.WithCost(cost))
	}
	if _, err = graph.AddFlow(g.gridExport, sink, exportOpts...); err != nil {
		return err
	}

	if g.gridImport, err = graph.AddBus(ctx.Label(g.name, "grid_import")); err != nil {
		return err
	}
	if _, err = graph.AddFlow(g.gridImport, el.Distribution()); err != nil {
		return err
	}
	if g.config.WorkingRate == nil {
		ctx.Logger(g.name).Debug("grid without working rate, import disabled")
		return nil
	}
	rate, err := ctx.Series(g.name, "working_rate", g.config.WorkingRate, timeseries.Interval)
	if err != nil {
		return err
	}
	source, err := graph.AddSource(ctx.Label(g.name, "source_import"))
	if err != nil {
		return err
	}
	opts := []energysystem.FlowOption{energysystem.WithCost(rate)}
	if g.config.Power > 0 {
		opts = append(opts, energysystem.WithNominal(g.config.Power))
	}
	_, err = graph.AddFlow(source, g.gridImport, opts...)
	return err
}

// ElectricityDemandConfig holds the demand profile in kW.
type ElectricityDemandConfig struct {
	TimeSeries interface{} `mapstructure:"time_series"`
}

// ElectricityDemand is a fixed load on the distribution bus.
type ElectricityDemand struct {
	base
	config ElectricityDemandConfig
	sink   *energysystem.Node
}

// NewElectricityDemand returns a demand.
func NewElectricityDemand(name string, params map[string]interface{}) (*ElectricityDemand, error) {
	cfg := ElectricityDemandConfig{}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	return &ElectricityDemand{base: base{name}, config: cfg}, nil
}

func (d *ElectricityDemand) Sink() *energysystem.Node { return d.sink }

func (d *ElectricityDemand) BuildCore(ctx *metamodel.LocationContext) error {
	el, err := carrier.ElectricityOf(ctx)
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
	_, err = ctx.Graph().AddFlow(el.Distribution(), d.sink, energysystem.WithNominal(1), energysystem.WithFix(profile))
	return err
}

// RenewableSourceConfig describes a PV plant or wind turbine. The specific
// generation is a fraction of the nominal power per step.
type RenewableSourceConfig struct {
	Power              float64     `mapstructure:"nominal_power"`
	SpecificGeneration interface{} `mapstructure:"specific_generation"`
	Fixed              bool        `mapstructure:"fixed"`
	FeedInSubsidy      float64     `mapstructure:"feed_in_subsidy"`
}

// RenewableSource feeds electricity into the feed-in bus. A fixed source
// has to deliver its full profile; otherwise the profile is an upper bound.
type RenewableSource struct {
	base
	config RenewableSourceConfig
	source *energysystem.Node
}

// NewRenewableSource returns a renewable source, fixed by default.
func NewRenewableSource(name string, params map[string]interface{}) (*RenewableSource, error) {
	cfg := RenewableSourceConfig{Fixed: true}
	if err := decode(name, params, &cfg); err != nil {
		return nil, err
	}
	if err := positive("nominal_power", cfg.Power); err != nil {
		return nil, err
	}
	return &RenewableSource{base: base{name}, config: cfg}, nil
}

func (r *RenewableSource) Source() *energysystem.Node { return r.source }

func (r *RenewableSource) BuildCore(ctx *metamodel.LocationContext) error {
	el, err := carrier.ElectricityOf(ctx)
	if err != nil {
		return err
	}
	profile, err := ctx.Series(r.name, "specific_generation", r.config.SpecificGeneration, timeseries.Interval)
	if err != nil {
		return err
	}
	for i, v := range profile {
		if v < 0 || v > 1 {
			return ctx.Errorf(r.name, "specific_generation[%d] = %v outside [0, 1]", i, v)
		}
	}
	if r.source, err = ctx.Graph().AddSource(ctx.Label(r.name, "source")); err != nil {
		return err
	}
	opts := []energysystem.FlowOption{energysystem.WithNominal(r.config.Power)}
	if r.config.Fixed {
		opts = append(opts, energysystem.WithFix(profile))
	} else {
		opts = append(opts, energysystem.WithMax(profile))
	}
	if r.config.FeedInSubsidy != 0 {
		opts = append(opts, energysystem.WithConstantCost(-r.config.FeedInSubsidy))
	}
	_, err = ctx.Graph().AddFlow(r.source, el.FeedIn(), opts...)
	if err == nil {
		ctx.Logger(r.name).Debug("renewable source built", slog.Bool("fixed", r.config.Fixed), slog.Float64("nominal_power", r.config.Power))
	}
	return err
}
