package soil

import (
	"log/slog"
	"sort"

	"github.com/talgya/tilth/internal/world"
)

// Gate holds depleted cells and renews them as bone meal allows.
type Gate struct {
	params  Params
	terrain Terrain
	stock   Stockpile
	catalog VariantCatalog
	log     *slog.Logger

	depleted  map[world.HexCoord]uint64 // cell -> insertion sequence
	seq       uint64
	nextRenew uint64
}

func newGate(p Params, t Terrain, s Stockpile, c VariantCatalog, log *slog.Logger) *Gate {
	return &Gate{
		params:   p,
		terrain:  t,
		stock:    s,
		catalog:  c,
		log:      log,
		depleted: make(map[world.HexCoord]uint64),
	}
}

// MarkDepleted adds c. A cell already present keeps its place in line.
func (g *Gate) MarkDepleted(c world.HexCoord) {
	if _, ok := g.depleted[c]; ok {
		return
	}
	g.seq++
	g.depleted[c] = g.seq
}

// Remove drops c. Reports whether it was present.
func (g *Gate) Remove(c world.HexCoord) bool {
	if _, ok := g.depleted[c]; !ok {
		return false
	}
	delete(g.depleted, c)
	return true
}

// Contains reports whether c is depleted.
func (g *Gate) Contains(c world.HexCoord) bool {
	_, ok := g.depleted[c]
	return ok
}

// Len returns the number of depleted cells.
func (g *Gate) Len() int {
	return len(g.depleted)
}

// Cells returns the depleted cells, oldest first.
func (g *Gate) Cells() []world.HexCoord {
	type entry struct {
		c   world.HexCoord
		seq uint64
	}
	entries := make([]entry, 0, len(g.depleted))
	for c, seq := range g.depleted {
		entries = append(entries, entry{c, seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]world.HexCoord, len(entries))
	for i, e := range entries {
		out[i] = e.c
	}
	return out
}

// NextRenewTick is the earliest tick at which Tick will run again.
func (g *Gate) NextRenewTick() uint64 {
	return g.nextRenew
}

// Budget returns how many cells the current stock can renew, net of orders
// already in flight. Query failures count as zero.
func (g *Gate) Budget() int {
	cost := g.params.CostPerCell
	if cost <= 0 {
		cost = 1
	}
	stock, err := g.stock.ConsumableStock()
	if err != nil {
		g.log.Warn("stock query failed, skipping renewal", "err", err)
		return 0
	}
	inflight, err := g.stock.InFlightOrders(g.catalog.BaseVariant())
	if err != nil {
		g.log.Warn("in-flight order query failed, skipping renewal", "err", err)
		return 0
	}
	available := stock - inflight*cost
	if available <= 0 {
		return 0
	}
	return available / cost
}

// Tick renews up to Budget depleted cells, oldest first. It runs at most
// once per renewal interval; calls in between return nil.
func (g *Gate) Tick(now uint64) []world.HexCoord {
	if now < g.nextRenew {
		return nil
	}
	g.nextRenew = now + uint64(max(1, g.params.RenewalIntervalTicks))

	if len(g.depleted) == 0 {
		return nil
	}
	budget := g.Budget()
	if budget == 0 {
		return nil
	}

	base := g.catalog.BaseVariant()
	var renewed []world.HexCoord
	for _, c := range g.Cells() {
		if len(renewed) >= budget {
			break
		}
		if !g.catalog.IsSoil(g.terrain.SurfaceAt(c)) {
			// Someone else already cleared or rebuilt it.
			delete(g.depleted, c)
			continue
		}
		g.terrain.RevertSurface(c)
		g.stock.PlaceRebuildOrder(c, base)
		delete(g.depleted, c)
		renewed = append(renewed, c)
	}
	if len(renewed) > 0 {
		g.log.Debug("renewal orders placed", "count", len(renewed), "budget", budget, "waiting", len(g.depleted))
	}
	return renewed
}

// restore replaces the depleted set, keeping the given order.
func (g *Gate) restore(cells []world.HexCoord, nextRenew uint64) {
	g.depleted = make(map[world.HexCoord]uint64, len(cells))
	g.seq = 0
	for _, c := range cells {
		g.MarkDepleted(c)
	}
	g.nextRenew = nextRenew
}
