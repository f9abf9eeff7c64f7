package steward

import (
	"fmt"
	"log/slog"
	"sort"
)

// Crisis levels, most severe first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

var levelRank = map[string]int{LevelCritical: 0, LevelWarning: 1, LevelWatch: 2, LevelHealthy: 3}

// Policy bounds what the steward may do in one cycle.
type Policy struct {
	CostPerCell   int     // bone meal per renewed cell, as configured on the host
	MaxProvision  int     // largest single delivery
	CriticalShare float64 // depleted share of fields that makes an uncovered backlog critical
	CooldownTicks uint64  // minimum ticks between deliveries to the same area
}

// DefaultPolicy matches the host's default tuning.
func DefaultPolicy() Policy {
	return Policy{
		CostPerCell:   1,
		MaxProvision:  20,
		CriticalShare: 0.5,
		CooldownTicks: 60000,
	}
}

// AreaHealth holds derived signals for one area.
// Runs before any action and is deterministic.
type AreaHealth struct {
	Area          AreaInfo
	Backlog       int     // depleted cells waiting for renewal
	Shortfall     int     // backlog cells the current budget does not cover
	DepletedShare float64 // depleted / tracked fields
	Level         string
}

// Triage computes the health of every area, most severe first.
func Triage(obs *Observation, p Policy) []AreaHealth {
	out := make([]AreaHealth, 0, len(obs.Areas))
	for _, a := range obs.Areas {
		h := AreaHealth{
			Area:      a,
			Backlog:   a.Counts.Depleted,
			Shortfall: max(0, a.Counts.Depleted-a.Budget),
		}
		if n := a.Fields(); n > 0 {
			h.DepletedShare = float64(a.Counts.Depleted) / float64(n)
		}

		switch {
		case h.Shortfall > 0 && h.DepletedShare >= p.CriticalShare:
			h.Level = LevelCritical
		case h.Shortfall > 0:
			h.Level = LevelWarning
		case h.Backlog > 0:
			h.Level = LevelWatch
		default:
			h.Level = LevelHealthy
		}
		out = append(out, h)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return levelRank[out[i].Level] < levelRank[out[j].Level]
		}
		return out[i].Shortfall > out[j].Shortfall
	})
	return out
}

// Decision is the steward's action for one cycle: zero or one intervention.
type Decision struct {
	Action       string        `json:"action"` // "none" or "provision"
	Rationale    string        `json:"rationale"`
	Intervention *Intervention `json:"intervention"`
}

// Decide picks the most severe area with an uncovered backlog that has not
// been provisioned within the cooldown.
func Decide(health []AreaHealth, tick uint64, p Policy, mem *CycleMemory) *Decision {
	for _, h := range health {
		if h.Shortfall == 0 {
			continue
		}
		if last, ok := mem.LastProvision(h.Area.ID); ok && tick >= last && tick < last+p.CooldownTicks {
			slog.Debug("area in cooldown", "area", h.Area.Name, "last_provision", last)
			continue
		}

		qty := h.Shortfall * max(1, p.CostPerCell)
		if p.MaxProvision > 0 && qty > p.MaxProvision {
			slog.Warn("steward provision capped", "area", h.Area.Name, "requested", qty, "capped", p.MaxProvision)
			qty = p.MaxProvision
		}
		return &Decision{
			Action: "provision",
			Rationale: fmt.Sprintf("%s: %d depleted, budget covers %d (%s)",
				h.Area.Name, h.Backlog, h.Area.Budget, h.Level),
			Intervention: &Intervention{Type: "provision", Area: h.Area.ID, Quantity: qty},
		}
	}
	return &Decision{Action: "none", Rationale: "every backlog is covered or cooling down"}
}
