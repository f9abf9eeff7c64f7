package steward

import (
	"context"
	"log/slog"
)

// Steward runs observe → triage → decide → act cycles.
type Steward struct {
	Observer *Observer
	Actor    *Actor
	Policy   Policy
	Memory   *CycleMemory
	DryRun   bool // decide but never act
}

// New creates a steward for the API at baseURL.
func New(baseURL, adminKey string, p Policy, mem *CycleMemory) *Steward {
	return &Steward{
		Observer: NewObserver(baseURL),
		Actor:    NewActor(baseURL, adminKey),
		Policy:   p,
		Memory:   mem,
	}
}

// RunCycle executes one cycle and records it.
func (s *Steward) RunCycle(ctx context.Context) (*Decision, error) {
	obs, err := s.Observer.Observe(ctx)
	if err != nil {
		return nil, err
	}

	health := Triage(obs, s.Policy)
	for _, h := range health {
		if h.Level != LevelHealthy {
			slog.Info("area health",
				"area", h.Area.Name,
				"level", h.Level,
				"depleted", h.Backlog,
				"shortfall", h.Shortfall,
				"stock", h.Area.Stock,
			)
		}
	}

	decision := Decide(health, obs.Status.Tick, s.Policy, s.Memory)
	slog.Info("decision made", "action", decision.Action, "rationale", decision.Rationale)

	rec := CycleRecord{Tick: obs.Status.Tick, Action: decision.Action, Rationale: decision.Rationale}
	if iv := decision.Intervention; iv != nil {
		rec.Area, rec.Quantity = iv.Area, iv.Quantity
		for _, h := range health {
			if h.Area.ID == iv.Area {
				rec.Level = h.Level
			}
		}
		if !s.DryRun {
			result, err := s.Actor.Act(ctx, iv)
			if err != nil {
				return decision, err
			}
			slog.Info("intervention executed", "area", iv.Area, "quantity", iv.Quantity, "details", result.Details)
		}
	}

	if s.DryRun {
		return decision, nil
	}
	s.Memory.Record(rec)
	s.Memory.Save()
	return decision, nil
}
