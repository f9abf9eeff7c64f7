package engine

import (
	"fmt"

	"github.com/talgya/tilth/internal/soil"
	"github.com/talgya/tilth/internal/world"
)

// AreaSummary is the list view of an area.
type AreaSummary struct {
	ID         int         `json:"id"`
	Name       string      `json:"name"`
	Stock      int         `json:"stock"`
	Forbidden  int         `json:"forbidden"`
	OpenOrders int         `json:"open_orders"`
	Budget     int         `json:"renewal_budget"`
	Yield      float64     `json:"yield"`
	Counts     soil.Counts `json:"counts"`
}

// AreaDetail is the full view of one area's lifecycle state.
type AreaDetail struct {
	AreaSummary
	Radius       int              `json:"radius"`
	NextWakeTick *uint64          `json:"next_wake_tick,omitempty"` // nil when nothing is scheduled
	Records      []soil.Record    `json:"records"`
	Depleted     []world.HexCoord `json:"depleted"`
	Pending      []soil.Pending   `json:"pending"`
	Orders       []RebuildOrder   `json:"orders"`
}

// HexView is the view of one hex and its soil.
type HexView struct {
	Area      int            `json:"area"`
	Coord     world.HexCoord `json:"coord"`
	Terrain   string         `json:"terrain"`
	Fertility int            `json:"baseline_fertility"`
	Surface   string         `json:"surface,omitempty"`
	Tillable  bool           `json:"tillable"`
	Lifecycle string         `json:"lifecycle"` // "raw", "pending", "Rich", "Weathered", "depleted", "untracked"
	Record    *soil.Record   `json:"record,omitempty"`
	OpenOrder *RebuildOrder  `json:"open_order,omitempty"`
	Displayed int            `json:"displayed_fertility,omitempty"`
}

// Status is the world overview.
type Status struct {
	Tick    uint64   `json:"tick"`
	SimTime string   `json:"sim_time"`
	Stats   SimStats `json:"stats"`
	Catalog string   `json:"catalog_digest"`
}

// Status returns the world overview.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick := s.CurrentTick()
	return Status{
		Tick:    tick,
		SimTime: SimTime(tick, s.Config.TicksPerHour, s.Config.DayTicks),
		Stats:   s.Stats,
		Catalog: s.Catalog.Digest,
	}
}

// AreaSummaries lists every area.
func (s *Simulation) AreaSummaries() []AreaSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AreaSummary, 0, len(s.Areas))
	for _, a := range s.Areas {
		out = append(out, summarize(a))
	}
	return out
}

func summarize(a *Area) AreaSummary {
	return AreaSummary{
		ID:         a.ID,
		Name:       a.Name,
		Stock:      a.Stock,
		Forbidden:  a.Forbidden,
		OpenOrders: len(a.Orders),
		Budget:     a.Soil.RenewalBudget(),
		Yield:      a.Yield(),
		Counts:     a.Soil.Counts(),
	}
}

// AreaDetail returns the lifecycle state of one area.
func (s *Simulation) AreaDetail(id int) (AreaDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.area(id)
	if err != nil {
		return AreaDetail{}, err
	}
	d := AreaDetail{
		AreaSummary: summarize(a),
		Radius:      a.Map.Radius,
		Records:     a.Soil.Records(),
		Depleted:    a.Soil.DepletedCells(),
		Pending:     a.Soil.PendingEntries(),
		Orders:      make([]RebuildOrder, 0, len(a.Orders)),
	}
	if wake := a.Soil.NextWakeTick(); wake != soil.NeverTick {
		d.NextWakeTick = &wake
	}
	for _, o := range a.Orders {
		d.Orders = append(d.Orders, *o)
	}
	return d, nil
}

// HexDetail returns one hex of an area.
func (s *Simulation) HexDetail(areaID int, c world.HexCoord) (HexView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.area(areaID)
	if err != nil {
		return HexView{}, err
	}
	hex := a.Map.Get(c)
	if hex == nil {
		return HexView{}, fmt.Errorf("hex (%d,%d) is outside %s", c.Q, c.R, a.Name)
	}

	v := HexView{
		Area:      a.ID,
		Coord:     c,
		Terrain:   world.TerrainName(hex.Terrain),
		Fertility: hex.Fertility,
		Surface:   hex.Surface,
		Tillable:  a.Map.Tillable(c),
	}
	if variant, ok := s.Catalog.Lookup(hex.Surface); ok {
		v.Displayed = variant.FertilityPercent
	}

	switch {
	case a.Soil.IsPending(c):
		v.Lifecycle = "pending"
	case a.Soil.IsDepleted(c):
		v.Lifecycle = "depleted"
	default:
		if rec, ok := a.Soil.Record(c); ok {
			v.Lifecycle = rec.State.String()
			v.Record = &rec
		} else if hex.Surface == "" {
			v.Lifecycle = "raw"
		} else {
			v.Lifecycle = "untracked"
		}
	}
	for _, o := range a.Orders {
		if o.Cell == c {
			order := *o
			v.OpenOrder = &order
			break
		}
	}
	return v, nil
}
