// Package config loads simulation tuning from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full tuning document (configs/tuning.yaml).
type Config struct {
	TicksPerHour    int `yaml:"ticks_per_hour"`
	DayTicks        int `yaml:"day_ticks"`
	CycleEveryTicks int `yaml:"cycle_every_ticks"`

	Soil    Soil    `yaml:"soil"`
	Renewal Renewal `yaml:"renewal"`
	World   World   `yaml:"world"`
	API     API     `yaml:"api"`
}

// Soil tunes the fertility lifecycle.
type Soil struct {
	BaseVariant    string `yaml:"base_variant"`
	VariantPrefix  string `yaml:"variant_prefix"`
	RichHours      int    `yaml:"rich_hours"`
	WeatheredHours int    `yaml:"weathered_hours"`
	BonusRich      int    `yaml:"bonus_rich"`
	BonusWeathered int    `yaml:"bonus_weathered"`
	BonusDepleted  int    `yaml:"bonus_depleted"`
	MinPercent     int    `yaml:"min_percent"`
	MaxPercent     int    `yaml:"max_percent"`
}

// Renewal tunes the automatic re-tilling of depleted soil.
type Renewal struct {
	IntervalTicks int `yaml:"interval_ticks"`
	CostPerCell   int `yaml:"cost_per_cell"`
}

// World tunes the host areas.
type World struct {
	Seed          int64 `yaml:"seed"`
	Areas         int   `yaml:"areas"`
	Radius        int   `yaml:"radius"`
	InitialTilled int   `yaml:"initial_tilled"`
	InitialStock  int   `yaml:"initial_stock"`
	StockPerDay   int   `yaml:"stock_per_day"`
	BuildTicks    int   `yaml:"build_ticks"`
}

// API configures the HTTP server.
type API struct {
	Port int `yaml:"port"`
}

// Default returns the built-in tuning. 2500 ticks make an hour, 60000 a day.
func Default() Config {
	return Config{
		TicksPerHour:    2500,
		DayTicks:        60000,
		CycleEveryTicks: 250,
		Soil: Soil{
			BaseVariant:    "SoilTilled",
			VariantPrefix:  "SoilTilled",
			RichHours:      240,
			WeatheredHours: 120,
			BonusRich:      20,
			BonusWeathered: 10,
			BonusDepleted:  0,
			MinPercent:     70,
			MaxPercent:     170,
		},
		Renewal: Renewal{
			IntervalTicks: 30000,
			CostPerCell:   1,
		},
		World: World{
			Seed:          42,
			Areas:         2,
			Radius:        12,
			InitialTilled: 24,
			InitialStock:  10,
			StockPerDay:   3,
			BuildTicks:    5000,
		},
		API: API{Port: 8080},
	}
}

// Load reads a tuning file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("tuning.yaml: %w", err)
	}
	return c, nil
}

// Validate rejects tunings the scheduler cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.TicksPerHour <= 0 {
		errs = append(errs, errors.New("ticks_per_hour must be positive"))
	}
	if c.DayTicks <= 0 {
		errs = append(errs, errors.New("day_ticks must be positive"))
	}
	if c.CycleEveryTicks <= 0 {
		errs = append(errs, errors.New("cycle_every_ticks must be positive"))
	}
	if c.Soil.BaseVariant == "" || c.Soil.VariantPrefix == "" {
		errs = append(errs, errors.New("soil.base_variant and soil.variant_prefix are required"))
	}
	if c.Soil.RichHours <= 0 || c.Soil.WeatheredHours <= 0 {
		errs = append(errs, errors.New("soil durations must be positive"))
	}
	if c.Soil.MinPercent > c.Soil.MaxPercent {
		errs = append(errs, fmt.Errorf("soil.min_percent %d above max_percent %d", c.Soil.MinPercent, c.Soil.MaxPercent))
	}
	if c.Renewal.IntervalTicks <= 0 {
		errs = append(errs, errors.New("renewal.interval_ticks must be positive"))
	}
	if c.Renewal.CostPerCell <= 0 {
		errs = append(errs, errors.New("renewal.cost_per_cell must be positive"))
	}
	if c.World.Areas < 0 || c.World.Radius <= 0 {
		errs = append(errs, errors.New("world.areas must be >= 0 and world.radius positive"))
	}
	return errors.Join(errs...)
}
