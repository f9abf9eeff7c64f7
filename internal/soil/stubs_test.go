package soil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/tilth/internal/catalog"
	"github.com/talgya/tilth/internal/world"
)

const base = "SoilTilled"

var allStates = []string{"Rich", "Weathered", "Depleted"}

type stubTerrain struct {
	surfaces map[world.HexCoord]string
	baseline map[world.HexCoord]int
	writes   int
}

func newStubTerrain() *stubTerrain {
	return &stubTerrain{
		surfaces: make(map[world.HexCoord]string),
		baseline: make(map[world.HexCoord]int),
	}
}

func (t *stubTerrain) ground(c world.HexCoord, baseline int, surface string) {
	t.baseline[c] = baseline
	if surface != "" {
		t.surfaces[c] = surface
	}
}

func (t *stubTerrain) InBounds(c world.HexCoord) bool {
	_, ok := t.baseline[c]
	return ok
}

func (t *stubTerrain) SurfaceAt(c world.HexCoord) string { return t.surfaces[c] }

func (t *stubTerrain) BaselineFertility(c world.HexCoord) (int, bool) {
	v, ok := t.baseline[c]
	return v, ok
}

func (t *stubTerrain) SetSurface(c world.HexCoord, v string) {
	t.writes++
	t.surfaces[c] = v
}

func (t *stubTerrain) RevertSurface(c world.HexCoord) {
	t.writes++
	delete(t.surfaces, c)
}

func (t *stubTerrain) clone() *stubTerrain {
	out := newStubTerrain()
	for c, v := range t.surfaces {
		out.surfaces[c] = v
	}
	for c, v := range t.baseline {
		out.baseline[c] = v
	}
	return out
}

type rebuildOrder struct {
	cell   world.HexCoord
	target string
}

type stubStock struct {
	stock       int
	inflight    int
	stockErr    error
	inflightErr error
	orders      []rebuildOrder
}

func (s *stubStock) ConsumableStock() (int, error) { return s.stock, s.stockErr }

func (s *stubStock) InFlightOrders(string) (int, error) { return s.inflight, s.inflightErr }

func (s *stubStock) PlaceRebuildOrder(c world.HexCoord, target string) {
	s.orders = append(s.orders, rebuildOrder{c, target})
}

// countingCatalog counts every catalog read.
type countingCatalog struct {
	*catalog.Catalog
	reads int
}

func (c *countingCatalog) Lookup(id string) (catalog.Variant, bool) {
	c.reads++
	return c.Catalog.Lookup(id)
}

func (c *countingCatalog) IsBase(id string) bool {
	c.reads++
	return c.Catalog.IsBase(id)
}

func (c *countingCatalog) IsSoil(id string) bool {
	c.reads++
	return c.Catalog.IsSoil(id)
}

type stubClock struct{ tick uint64 }

func (c *stubClock) CurrentTick() uint64 { return c.tick }

func fullCatalog() *countingCatalog {
	return &countingCatalog{Catalog: catalog.Generate(base, base, allStates, 70, 170)}
}

func testParams() Params {
	return Params{
		TicksPerHour:         100,
		RichHours:            10,
		WeatheredHours:       5,
		VariantPrefix:        base,
		BonusRich:            20,
		BonusWeathered:       10,
		BonusDepleted:        0,
		MinPercent:           70,
		MaxPercent:           170,
		RenewalIntervalTicks: 100,
		CostPerCell:          1,
	}
}

type fixture struct {
	m       *Manager
	terrain *stubTerrain
	stock   *stubStock
	cat     *countingCatalog
	clock   *stubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, testParams(), fullCatalog())
}

func newFixtureWith(t *testing.T, p Params, cat *countingCatalog) *fixture {
	t.Helper()
	f := &fixture{
		terrain: newStubTerrain(),
		stock:   &stubStock{},
		cat:     cat,
		clock:   &stubClock{},
	}
	f.m = NewManager(p, Deps{
		Terrain: f.terrain,
		Stock:   f.stock,
		Catalog: f.cat,
		Clock:   f.clock,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

// till places fresh soil at c the way the host does.
func (f *fixture) till(c world.HexCoord, baseline int) {
	f.terrain.ground(c, baseline, base)
	f.m.OnGroundPlaced(c, true)
}

// requireSingleMembership fails if any cell sits in more than one collection.
func requireSingleMembership(t *testing.T, m *Manager) {
	t.Helper()
	seen := make(map[world.HexCoord]string)
	mark := func(c world.HexCoord, where string) {
		prev, dup := seen[c]
		require.Falsef(t, dup, "cell %v in both %s and %s", c, prev, where)
		seen[c] = where
	}
	for _, p := range m.PendingEntries() {
		mark(p.Cell, "pending")
	}
	for _, r := range m.Records() {
		mark(r.Cell, "scheduler")
	}
	for _, c := range m.DepletedCells() {
		mark(c, "depleted")
	}
}
