// Package config reads model descriptions from YAML and assembles them into
// a metamodel.MetaModel.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ohowland/mtress/internal/pkg/carrier"
	"github.com/ohowland/mtress/internal/pkg/metamodel"
	"github.com/ohowland/mtress/internal/pkg/physics"
	"github.com/ohowland/mtress/internal/pkg/technology"
	"github.com/ohowland/mtress/internal/pkg/timeseries"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk model description (YAML).
type Config struct {
	Name      string           `yaml:"name"`
	TimeIndex TimeIndexConfig  `yaml:"time_index"`
	DataDir   string           `yaml:"data_dir"`
	Locations []LocationConfig `yaml:"locations"`
}

// TimeIndexConfig describes periods steps of length freq (a Go duration)
// starting at start.
type TimeIndexConfig struct {
	Start   time.Time `yaml:"start"`
	Freq    string    `yaml:"freq"`
	Periods int       `yaml:"periods"`
}

type LocationConfig struct {
	Name         string             `yaml:"name"`
	Carriers     CarriersConfig     `yaml:"carriers"`
	Technologies []TechnologyConfig `yaml:"technologies"`
}

type CarriersConfig struct {
	Electricity bool        `yaml:"electricity"`
	Heat        *HeatConfig `yaml:"heat"`
	Gas         []GasConfig `yaml:"gas"`
}

// HeatConfig declares temperature levels in °C. Penalties default to
// carrier.DefaultPenalty.
type HeatConfig struct {
	Levels       []float64 `yaml:"levels"`
	Reference    float64   `yaml:"reference"`
	ExcessCost   *float64  `yaml:"excess_cost"`
	MissingCost  *float64  `yaml:"missing_cost"`
	AllowMissing *bool     `yaml:"allow_missing"`
}

// GasConfig declares the pressure levels in bar of one gas.
type GasConfig struct {
	Gas       string    `yaml:"gas"`
	Pressures []float64 `yaml:"pressures"`
}

// TechnologyConfig selects a registered technology by type.
type TechnologyConfig struct {
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked reads and parses path without validating it. A relative
// data_dir is taken relative to the config file.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Dir(path)
	} else if !filepath.IsAbs(c.DataDir) {
		c.DataDir = filepath.Join(filepath.Dir(path), c.DataDir)
	}
	return c, nil
}

// Parse decodes a YAML document.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// Validate checks the description by assembling it with the default
// technology registry.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	if len(c.Locations) == 0 {
		return errors.New("at least one location is required")
	}
	if _, err := c.MetaModel(technology.DefaultRegistry()); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	return nil
}

// Index converts the time index section.
func (c *Config) Index() (timeseries.TimeIndex, error) {
	freq, err := time.ParseDuration(c.TimeIndex.Freq)
	if err != nil {
		return timeseries.TimeIndex{}, fmt.Errorf("time_index.freq: %w", err)
	}
	index := timeseries.TimeIndex{Start: c.TimeIndex.Start, Freq: freq, Steps: c.TimeIndex.Periods}
	if err := index.Validate(); err != nil {
		return timeseries.TimeIndex{}, fmt.Errorf("time_index: %w", err)
	}
	return index, nil
}

// MetaModel assembles an unbuilt meta model. Technologies are looked up in
// reg; opts are passed to metamodel.New after the data directory.
func (c *Config) MetaModel(reg *metamodel.Registry, opts ...metamodel.Option) (*metamodel.MetaModel, error) {
	index, err := c.Index()
	if err != nil {
		return nil, err
	}
	opts = append([]metamodel.Option{metamodel.WithDataDir(c.DataDir)}, opts...)
	mm, err := metamodel.New(c.Name, index, opts...)
	if err != nil {
		return nil, err
	}
	for i, lc := range c.Locations {
		loc, err := lc.location(reg)
		if err != nil {
			return nil, fmt.Errorf("locations[%d]: %w", i, err)
		}
		if err := mm.AddLocation(loc); err != nil {
			return nil, err
		}
	}
	return mm, nil
}

func (lc LocationConfig) location(reg *metamodel.Registry) (*metamodel.Location, error) {
	loc, err := metamodel.NewLocation(lc.Name)
	if err != nil {
		return nil, err
	}
	carriers, err := lc.Carriers.build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", lc.Name, err)
	}
	for _, c := range carriers {
		if err := loc.Add(c); err != nil {
			return nil, err
		}
	}
	for i, tc := range lc.Technologies {
		if tc.Name == "" || tc.Type == "" {
			return nil, fmt.Errorf("%s: technologies[%d] needs a name and a type", lc.Name, i)
		}
		comp, err := reg.New(tc.Type, tc.Name, tc.Params)
		if err != nil {
			return nil, err
		}
		if err := loc.Add(comp); err != nil {
			return nil, err
		}
	}
	return loc, nil
}

func (cc CarriersConfig) build() ([]metamodel.Component, error) {
	var out []metamodel.Component
	if cc.Electricity {
		out = append(out, carrier.NewElectricity())
	}
	if cc.Heat != nil {
		var opts []carrier.HeatOption
		if cc.Heat.ExcessCost != nil {
			opts = append(opts, carrier.WithExcessCost(*cc.Heat.ExcessCost))
		}
		if cc.Heat.MissingCost != nil {
			opts = append(opts, carrier.WithMissingCost(*cc.Heat.MissingCost))
		}
		if cc.Heat.AllowMissing != nil && !*cc.Heat.AllowMissing {
			opts = append(opts, carrier.WithoutMissing())
		}
		heat, err := carrier.NewHeat(cc.Heat.Levels, cc.Heat.Reference, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, heat)
	}
	if len(cc.Gas) > 0 {
		pressures := make([]*carrier.Pressure, len(cc.Gas))
		for i, gc := range cc.Gas {
			gas, err := physics.GasByName(gc.Gas)
			if err != nil {
				return nil, err
			}
			if pressures[i], err = carrier.NewPressure(gas, gc.Pressures); err != nil {
				return nil, err
			}
		}
		gas, err := carrier.NewGas(pressures...)
		if err != nil {
			return nil, err
		}
		out = append(out, gas)
	}
	return out, nil
}
