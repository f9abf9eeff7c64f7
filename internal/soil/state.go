// Package soil runs the tilled-soil lifecycle of one area: fresh soil is
// classified one scheduling cycle after placement, ages Rich → Weathered →
// Depleted on a schedule, and depleted soil is re-tilled when bone meal allows.
//
// The package is single-threaded. The host calls RunSchedulingCycle on a
// coarse cadence and OnGroundPlaced/OnGroundRemoved between cycles.
package soil

import (
	"fmt"

	"github.com/talgya/tilth/internal/config"
)

// State is a fertility tier. Transitions only move forward.
type State uint8

const (
	Rich      State = iota // freshly worked, largest bonus
	Weathered              // halfway spent
	Depleted               // terminal, waits for renewal
)

// String returns the catalog name of the state.
func (s State) String() string {
	switch s {
	case Rich:
		return "Rich"
	case Weathered:
		return "Weathered"
	case Depleted:
		return "Depleted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ParseState maps a catalog state name back to a State.
func ParseState(name string) (State, error) {
	switch name {
	case "Rich":
		return Rich, nil
	case "Weathered":
		return Weathered, nil
	case "Depleted":
		return Depleted, nil
	}
	return 0, fmt.Errorf("unknown soil state %q", name)
}

// Next returns the state that follows s. Depleted is its own successor.
func (s State) Next() State {
	switch s {
	case Rich:
		return Weathered
	default:
		return Depleted
	}
}

// Terminal reports whether s is the end of the lifecycle.
func (s State) Terminal() bool {
	return s == Depleted
}

// Params are the lifecycle tunables of a Manager.
type Params struct {
	TicksPerHour   int
	RichHours      int
	WeatheredHours int

	VariantPrefix  string
	BonusRich      int
	BonusWeathered int
	BonusDepleted  int
	MinPercent     int
	MaxPercent     int

	RenewalIntervalTicks int
	CostPerCell          int
}

// NewParams extracts the lifecycle tunables from the simulation config.
func NewParams(c config.Config) Params {
	return Params{
		TicksPerHour:         c.TicksPerHour,
		RichHours:            c.Soil.RichHours,
		WeatheredHours:       c.Soil.WeatheredHours,
		VariantPrefix:        c.Soil.VariantPrefix,
		BonusRich:            c.Soil.BonusRich,
		BonusWeathered:       c.Soil.BonusWeathered,
		BonusDepleted:        c.Soil.BonusDepleted,
		MinPercent:           c.Soil.MinPercent,
		MaxPercent:           c.Soil.MaxPercent,
		RenewalIntervalTicks: c.Renewal.IntervalTicks,
		CostPerCell:          c.Renewal.CostPerCell,
	}
}

// HoursFor returns how long a cell stays in s before its next transition.
func (p Params) HoursFor(s State) int {
	switch s {
	case Rich:
		return p.RichHours
	case Weathered:
		return p.WeatheredHours
	default:
		return 0
	}
}
