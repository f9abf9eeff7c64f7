package engine

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/tilth/internal/catalog"
	"github.com/talgya/tilth/internal/soil"
	"github.com/talgya/tilth/internal/world"
)

// Area is one simulated farmstead: its own hex map, bone meal stockpile,
// rebuild order book and soil lifecycle manager.
type Area struct {
	ID   int           `json:"id"`
	Name string        `json:"name"`
	Seed int64         `json:"seed"`
	Map  *world.Map    `json:"-"`
	Soil *soil.Manager `json:"-"`

	Stock     int `json:"stock"`     // Bone meal units on hand
	Forbidden int `json:"forbidden"` // Units the steward has forbidden from use

	Orders []*RebuildOrder `json:"orders"`

	catalog    *catalog.Catalog
	buildTicks uint64
	cost       int
	clock      soil.Clock
}

// RebuildOrder is a request to re-till a cell, placed by the renewal gate.
// It completes once BuildTicks have passed and the stockpile can pay for it.
type RebuildOrder struct {
	ID         uuid.UUID      `json:"id"`
	Cell       world.HexCoord `json:"cell"`
	Target     string         `json:"target"`
	PlacedTick uint64         `json:"placed_tick"`
	ReadyTick  uint64         `json:"ready_tick"`
}

// ConsumableStock counts the bone meal the area may spend.
func (a *Area) ConsumableStock() (int, error) {
	if a.Stock < 0 {
		return 0, fmt.Errorf("area %d: stock ledger is negative (%d)", a.ID, a.Stock)
	}
	n := a.Stock - a.Forbidden
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// InFlightOrders counts open rebuild orders for target.
func (a *Area) InFlightOrders(target string) (int, error) {
	n := 0
	for _, o := range a.Orders {
		if o.Target == target {
			n++
		}
	}
	return n, nil
}

// PlaceRebuildOrder queues a rebuild of target at c.
func (a *Area) PlaceRebuildOrder(c world.HexCoord, target string) {
	now := a.clock.CurrentTick()
	a.Orders = append(a.Orders, &RebuildOrder{
		ID:         uuid.New(),
		Cell:       c,
		Target:     target,
		PlacedTick: now,
		ReadyTick:  now + a.buildTicks,
	})
}

// OrderResult is what happened to the rebuild orders in one pass.
type OrderResult struct {
	Built     []RebuildOrder
	Cancelled []RebuildOrder
	Waiting   int // ready but unpaid
}

// progressOrders completes every order that is ready and affordable, oldest
// first. An order whose cell was built over in the meantime is cancelled.
func (a *Area) progressOrders(now uint64) OrderResult {
	var res OrderResult
	kept := a.Orders[:0]
	for _, o := range a.Orders {
		if now < o.ReadyTick {
			kept = append(kept, o)
			continue
		}
		if !a.Map.InBounds(o.Cell) || a.Map.SurfaceAt(o.Cell) != "" {
			res.Cancelled = append(res.Cancelled, *o)
			continue
		}
		if avail, err := a.ConsumableStock(); err != nil || avail < a.cost {
			res.Waiting++
			kept = append(kept, o)
			continue
		}
		a.Stock -= a.cost
		a.Map.SetSurface(o.Cell, o.Target)
		a.Soil.OnGroundPlaced(o.Cell, a.catalog.IsBase(o.Target))
		res.Built = append(res.Built, *o)
	}
	for i := len(kept); i < len(a.Orders); i++ {
		a.Orders[i] = nil
	}
	a.Orders = kept
	return res
}

// cancelOrdersAt drops open orders for c. Returns how many were dropped.
func (a *Area) cancelOrdersAt(c world.HexCoord) int {
	kept := a.Orders[:0]
	n := 0
	for _, o := range a.Orders {
		if o.Cell == c {
			n++
			continue
		}
		kept = append(kept, o)
	}
	a.Orders = kept
	return n
}

// Yield is the summed fertility of every classified soil cell, in whole
// "fields at 100%".
func (a *Area) Yield() float64 {
	total := 0
	for _, s := range a.Map.Surfaces() {
		if v, ok := a.catalog.Lookup(s.Variant); ok {
			total += v.FertilityPercent
		}
	}
	return float64(total) / 100
}

// AreaState is the persisted form of an Area. The map is regenerated from
// its seed; only placed surfaces are stored.
type AreaState struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Seed      int64           `json:"seed"`
	Radius    int             `json:"radius"`
	Stock     int             `json:"stock"`
	Forbidden int             `json:"forbidden"`
	Surfaces  []world.Surface `json:"surfaces"`
	Orders    []RebuildOrder  `json:"orders"`
	Soil      soil.Snapshot   `json:"soil"`
}

// State captures the area for persistence.
func (a *Area) State() AreaState {
	st := AreaState{
		ID:        a.ID,
		Name:      a.Name,
		Seed:      a.Seed,
		Radius:    a.Map.Radius,
		Stock:     a.Stock,
		Forbidden: a.Forbidden,
		Surfaces:  a.Map.Surfaces(),
		Orders:    make([]RebuildOrder, 0, len(a.Orders)),
		Soil:      a.Soil.Snapshot(),
	}
	for _, o := range a.Orders {
		st.Orders = append(st.Orders, *o)
	}
	return st
}

// areaGenConfig is the generator setup for an area's map.
func areaGenConfig(seed int64, radius int) world.GenConfig {
	gen := world.DefaultGenConfig()
	gen.Seed = seed
	gen.Radius = radius
	return gen
}

func newAreaLogger(a *Area) *slog.Logger {
	return slog.Default().With("area", a.Name)
}
