// Simulation ties the areas together and runs their soil lifecycles on the
// engine's cadence.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/talgya/tilth/internal/catalog"
	"github.com/talgya/tilth/internal/config"
	"github.com/talgya/tilth/internal/soil"
	"github.com/talgya/tilth/internal/world"
)

const (
	maxEvents     = 1000
	subscriberBuf = 64
)

// Simulation holds the complete world state. Engine callbacks and API
// handlers may run on different goroutines; mu guards everything below it.
type Simulation struct {
	Config  config.Config
	Catalog *catalog.Catalog

	mu     sync.RWMutex
	Areas  []*Area
	Events []Event // Recent events, trimmed daily
	Stats  SimStats

	lastTick atomic.Uint64

	subMu     sync.Mutex
	subs      map[int]chan Event
	nextSubID int
}

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64         `json:"tick"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "soil", "renewal", "rebuild", "production", "intervention"
	Area        int            `json:"area,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// SimStats tracks aggregate world statistics.
type SimStats struct {
	Areas       int     `json:"areas"`
	Pending     int     `json:"pending"`
	Rich        int     `json:"rich"`
	Weathered   int     `json:"weathered"`
	Depleted    int     `json:"depleted"`
	Stock       int     `json:"stock"`
	OpenOrders  int     `json:"open_orders"`
	Yield       float64 `json:"yield"`
	Transitions uint64  `json:"transitions"` // Lifetime totals below
	Fallbacks   uint64  `json:"fallbacks"`
	Renewals    uint64  `json:"renewals"`
	Rebuilds    uint64  `json:"rebuilds"`
}

// NewSimulation creates an empty simulation. Areas come from GenerateAreas
// or Import.
func NewSimulation(cfg config.Config, cat *catalog.Catalog) *Simulation {
	return &Simulation{
		Config:  cfg,
		Catalog: cat,
		subs:    make(map[int]chan Event),
	}
}

// CurrentTick returns the most recently processed tick number. Safe to call
// while mu is held.
func (s *Simulation) CurrentTick() uint64 {
	return s.lastTick.Load()
}

// SetTick moves the clock, used when resuming from saved state.
func (s *Simulation) SetTick(tick uint64) {
	s.lastTick.Store(tick)
}

// GenerateAreas builds fresh areas from the configured seed and tills their
// initial fields.
func (s *Simulation) GenerateAreas() {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.Config.World
	base := w.Seed
	if base == 0 {
		// Each area keeps its own seed, so a random base still reloads exactly.
		base = rand.Int63n(1<<40) + 1
		slog.Info("random world seed", "seed", base)
	}
	names := world.GenerateNames(base, w.Areas)
	for i := 0; i < w.Areas; i++ {
		seed := base + int64(i)*7919
		m := world.Generate(areaGenConfig(seed, w.Radius))
		a := s.addArea(i+1, names[i], seed, m)
		a.Stock = w.InitialStock

		fields := world.PlaceFields(m, w.InitialTilled)
		for _, c := range fields {
			m.SetSurface(c, s.Catalog.BaseVariant())
			a.Soil.OnGroundPlaced(c, true)
		}
		slog.Info("area generated",
			"area", a.Name,
			"hexes", m.HexCount(),
			"fields", len(fields),
			"stock", a.Stock,
		)
	}
	s.updateStats()
}

// addArea wires a new area into the simulation. Caller holds mu.
func (s *Simulation) addArea(id int, name string, seed int64, m *world.Map) *Area {
	a := &Area{
		ID:         id,
		Name:       name,
		Seed:       seed,
		Map:        m,
		catalog:    s.Catalog,
		buildTicks: uint64(max(0, s.Config.World.BuildTicks)),
		cost:       s.Config.Renewal.CostPerCell,
		clock:      s,
	}
	a.Soil = soil.NewManager(soil.NewParams(s.Config), soil.Deps{
		Terrain: m,
		Stock:   a,
		Catalog: s.Catalog,
		Clock:   s,
		Logger:  newAreaLogger(a),
	})
	s.Areas = append(s.Areas, a)
	return a
}

// area finds an area by id. Caller holds mu.
func (s *Simulation) area(id int) (*Area, error) {
	for _, a := range s.Areas {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("area %d not found", id)
}

// TickMinute runs every tick: it only advances the clock.
func (s *Simulation) TickMinute(tick uint64) {
	s.lastTick.Store(tick)
}

// TickCycle runs every scheduling cycle: each area's soil lifecycle, then
// its rebuild orders. Soil rebuilt here is classified on the next cycle.
func (s *Simulation) TickCycle(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick.Store(tick)

	for _, a := range s.Areas {
		rep := a.Soil.RunSchedulingCycle(tick)
		s.recordCycle(a, rep)

		orders := a.progressOrders(tick)
		if n := len(orders.Built); n > 0 {
			s.Stats.Rebuilds += uint64(n)
			s.emitLocked(Event{
				Tick:        tick,
				Area:        a.ID,
				Category:    "rebuild",
				Description: fmt.Sprintf("%s re-tilled %d %s", a.Name, n, plural(n, "field", "fields")),
				Meta:        map[string]any{"count": n, "stock_left": a.Stock},
			})
		}
		if n := len(orders.Cancelled); n > 0 {
			slog.Debug("rebuild orders cancelled", "area", a.Name, "count", n)
		}
	}
}

func (s *Simulation) recordCycle(a *Area, rep soil.CycleReport) {
	var weathered, depleted, fallbacks int
	for _, t := range rep.Transitions {
		switch t.To {
		case soil.Weathered:
			weathered++
		case soil.Depleted:
			depleted++
		}
		if t.Fallback {
			fallbacks++
		}
	}
	s.Stats.Transitions += uint64(len(rep.Transitions))
	s.Stats.Fallbacks += uint64(fallbacks)
	s.Stats.Renewals += uint64(len(rep.Renewed))

	if depleted > 0 {
		s.emitLocked(Event{
			Tick:        rep.Tick,
			Area:        a.ID,
			Category:    "soil",
			Description: fmt.Sprintf("%d %s in %s worn out", depleted, plural(depleted, "field", "fields"), a.Name),
			Meta:        map[string]any{"weathered": weathered, "depleted": depleted, "fallbacks": fallbacks},
		})
	}
	if n := len(rep.Renewed); n > 0 {
		s.emitLocked(Event{
			Tick:        rep.Tick,
			Area:        a.ID,
			Category:    "renewal",
			Description: fmt.Sprintf("%s ordered %d %s re-tilled with bone meal", a.Name, n, plural(n, "field", "fields")),
			Meta:        map[string]any{"count": n, "cells": rep.Renewed},
		})
	}
}

// TickDay runs every sim-day: production, statistics, daily summary.
func (s *Simulation) TickDay(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.produceBoneMeal(tick)
	s.updateStats()

	slog.Info("daily report",
		"tick", humanize.Comma(int64(tick)),
		"time", SimTime(tick, s.Config.TicksPerHour, s.Config.DayTicks),
		"areas", s.Stats.Areas,
		"rich", s.Stats.Rich,
		"weathered", s.Stats.Weathered,
		"depleted", s.Stats.Depleted,
		"pending", s.Stats.Pending,
		"stock", humanize.Comma(int64(s.Stats.Stock)),
		"open_orders", s.Stats.OpenOrders,
		"yield", fmt.Sprintf("%.1f", s.Stats.Yield),
		"renewals", humanize.Comma(int64(s.Stats.Renewals)),
		"fallbacks", s.Stats.Fallbacks,
	)

	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

// updateStats recomputes the population figures. Caller holds mu.
func (s *Simulation) updateStats() {
	st := s.Stats
	st.Areas = len(s.Areas)
	st.Pending, st.Rich, st.Weathered, st.Depleted = 0, 0, 0, 0
	st.Stock, st.OpenOrders, st.Yield = 0, 0, 0
	for _, a := range s.Areas {
		c := a.Soil.Counts()
		st.Pending += c.Pending
		st.Rich += c.Rich
		st.Weathered += c.Weathered
		st.Depleted += c.Depleted
		st.Stock += a.Stock
		st.OpenOrders += len(a.Orders)
		st.Yield += a.Yield()
	}
	s.Stats = st
}

// EmitEvent records an event and fans it out to subscribers.
func (s *Simulation) EmitEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(e)
}

func (s *Simulation) emitLocked(e Event) {
	s.Events = append(s.Events, e)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("subscriber lagging, event dropped", "sub_id", id)
		}
	}
}

// Subscribe returns a channel receiving every future event.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSubID++
	ch := make(chan Event, subscriberBuf)
	s.subs[s.nextSubID] = ch
	return s.nextSubID, ch
}

// Unsubscribe closes and forgets a subscription.
func (s *Simulation) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

// RecentEvents returns up to n of the latest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(0, len(s.Events)-n)
	return append([]Event(nil), s.Events[start:]...)
}

// WorldState is the persisted form of the whole simulation.
type WorldState struct {
	Tick  uint64      `json:"tick"`
	Areas []AreaState `json:"areas"`
}

// Export captures the simulation for persistence.
func (s *Simulation) Export() WorldState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws := WorldState{Tick: s.CurrentTick(), Areas: make([]AreaState, 0, len(s.Areas))}
	for _, a := range s.Areas {
		ws.Areas = append(ws.Areas, a.State())
	}
	return ws
}

// Import replaces all areas with saved state. Maps are regenerated from
// their seeds before surfaces and soil state are laid back on.
func (s *Simulation) Import(ws WorldState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := append([]AreaState(nil), ws.Areas...)
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })

	s.Areas = nil
	s.lastTick.Store(ws.Tick)
	for _, st := range states {
		if st.Radius <= 0 {
			return fmt.Errorf("area %d: invalid radius %d", st.ID, st.Radius)
		}
		m := world.Generate(areaGenConfig(st.Seed, st.Radius))
		if skipped := m.ApplySurfaces(st.Surfaces); skipped > 0 {
			slog.Warn("saved surfaces outside the map were dropped", "area", st.Name, "skipped", skipped)
		}
		a := s.addArea(st.ID, st.Name, st.Seed, m)
		a.Stock = st.Stock
		a.Forbidden = st.Forbidden
		for i := range st.Orders {
			o := st.Orders[i]
			a.Orders = append(a.Orders, &o)
		}
		a.Soil.Restore(st.Soil)
	}
	s.updateStats()
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
