package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tilth/internal/catalog"
	"github.com/talgya/tilth/internal/config"
	"github.com/talgya/tilth/internal/soil"
	"github.com/talgya/tilth/internal/world"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TicksPerHour = 10
	cfg.DayTicks = 240
	cfg.CycleEveryTicks = 5
	cfg.Soil.RichHours = 2
	cfg.Soil.WeatheredHours = 1
	cfg.Renewal.IntervalTicks = 50
	cfg.World.BuildTicks = 20
	cfg.World.StockPerDay = 0
	return cfg
}

func testCatalog() *catalog.Catalog {
	return catalog.Generate("SoilTilled", "SoilTilled", []string{"Rich", "Weathered", "Depleted"}, 70, 170)
}

// flatMap is a radius-r disc of plains at the given fertility.
func flatMap(r, fertility int) *world.Map {
	m := world.NewMap(r)
	for q := -r; q <= r; q++ {
		for s := -r; s <= r; s++ {
			c := world.HexCoord{Q: q, R: s}
			if world.Distance(world.HexCoord{}, c) > r {
				continue
			}
			m.Set(&world.Hex{Coord: c, Terrain: world.TerrainPlains, Fertility: fertility})
		}
	}
	return m
}

func newTestSim(t *testing.T) (*Simulation, *Area, *Engine) {
	t.Helper()
	cfg := testConfig()
	sim := NewSimulation(cfg, testCatalog())
	sim.mu.Lock()
	a := sim.addArea(1, "Testacre", 1, flatMap(2, 100))
	sim.mu.Unlock()

	eng := NewEngine(cfg.CycleEveryTicks, cfg.DayTicks)
	eng.OnTick = sim.TickMinute
	eng.OnCycle = sim.TickCycle
	eng.OnDay = sim.TickDay
	return sim, a, eng
}

func TestLifecycleThroughEngine(t *testing.T) {
	sim, a, eng := newTestSim(t)
	cells := []world.HexCoord{{Q: 0, R: 0}, {Q: 1, R: 0}, {Q: 0, R: 1}}
	for _, c := range cells {
		_, err := sim.TillCell(a.ID, c)
		require.NoError(t, err)
	}
	a.Stock = 1

	eng.Advance(5)
	assert.Equal(t, soil.Counts{Rich: 3}, a.Soil.Counts())
	assert.Equal(t, "SoilTilled_Rich_120", a.Map.SurfaceAt(cells[0]))

	eng.Advance(30) // tick 35: weathered at 25, depleted at 35
	assert.Equal(t, soil.Counts{Depleted: 3}, a.Soil.Counts())

	eng.Advance(20) // tick 55: gate renews what one unit buys
	require.Len(t, a.Orders, 1)
	assert.Equal(t, cells[0], a.Orders[0].Cell, "oldest depleted cell first")
	assert.Equal(t, uint64(75), a.Orders[0].ReadyTick)
	assert.Empty(t, a.Map.SurfaceAt(cells[0]))
	assert.Equal(t, 1, a.Stock, "stock is only spent when the order is built")

	eng.Advance(20) // tick 75: order built, base soil placed
	assert.Empty(t, a.Orders)
	assert.Zero(t, a.Stock)
	assert.Equal(t, "SoilTilled", a.Map.SurfaceAt(cells[0]))
	assert.True(t, a.Soil.IsPending(cells[0]))

	eng.Advance(5) // tick 80: classified again at the same fertility
	assert.Equal(t, "SoilTilled_Rich_120", a.Map.SurfaceAt(cells[0]))
	assert.Equal(t, soil.Counts{Rich: 1, Depleted: 2}, a.Soil.Counts())

	assert.Equal(t, uint64(1), sim.Stats.Renewals)
	assert.Equal(t, uint64(1), sim.Stats.Rebuilds)
	assert.Equal(t, uint64(6), sim.Stats.Transitions)

	cats := map[string]int{}
	for _, e := range sim.RecentEvents(100) {
		cats[e.Category]++
	}
	assert.Equal(t, 3, cats["intervention"])
	assert.Equal(t, 1, cats["soil"])
	assert.Equal(t, 1, cats["renewal"])
	assert.Equal(t, 1, cats["rebuild"])
}

func TestRebuildWaitsForStock(t *testing.T) {
	sim, a, _ := newTestSim(t)
	c := world.HexCoord{Q: 1, R: -1}
	sim.SetTick(100)
	a.PlaceRebuildOrder(c, "SoilTilled")
	require.Equal(t, uint64(120), a.Orders[0].ReadyTick)

	res := a.progressOrders(120)
	assert.Equal(t, 1, res.Waiting)
	assert.Len(t, a.Orders, 1)

	a.Stock = 1
	res = a.progressOrders(125)
	require.Len(t, res.Built, 1)
	assert.Empty(t, a.Orders)
	assert.True(t, a.Soil.IsPending(c))
}

func TestRebuildCancelledWhenCellBuiltOver(t *testing.T) {
	_, a, _ := newTestSim(t)
	a.Stock = 5
	c := world.HexCoord{Q: 0, R: -1}
	a.PlaceRebuildOrder(c, "SoilTilled")
	a.Map.SetSurface(c, "Cobblestone")

	res := a.progressOrders(1000)
	assert.Len(t, res.Cancelled, 1)
	assert.Empty(t, a.Orders)
	assert.Equal(t, 5, a.Stock)
}

func TestStockpileAccounting(t *testing.T) {
	_, a, _ := newTestSim(t)
	a.Stock, a.Forbidden = 7, 2
	n, err := a.ConsumableStock()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	a.Forbidden = 10
	n, err = a.ConsumableStock()
	require.NoError(t, err)
	assert.Zero(t, n)

	a.Stock = -1
	_, err = a.ConsumableStock()
	assert.Error(t, err)

	a.PlaceRebuildOrder(world.HexCoord{Q: 0, R: 0}, "SoilTilled")
	a.PlaceRebuildOrder(world.HexCoord{Q: 1, R: 0}, "SoilTilled")
	a.PlaceRebuildOrder(world.HexCoord{Q: 2, R: 0}, "Other")
	inflight, err := a.InFlightOrders("SoilTilled")
	require.NoError(t, err)
	assert.Equal(t, 2, inflight)
	assert.NotEqual(t, a.Orders[0].ID, a.Orders[1].ID)
}

func TestInterventions(t *testing.T) {
	sim, a, _ := newTestSim(t)
	c := world.HexCoord{Q: 0, R: 0}

	_, err := sim.TillCell(a.ID, c)
	require.NoError(t, err)
	_, err = sim.TillCell(a.ID, c)
	assert.Error(t, err, "already tilled")
	_, err = sim.TillCell(99, c)
	assert.Error(t, err)
	_, err = sim.TillCell(a.ID, world.HexCoord{Q: 9, R: 9})
	assert.Error(t, err)

	a.PlaceRebuildOrder(world.HexCoord{Q: 1, R: 0}, "SoilTilled")
	_, err = sim.ClearCell(a.ID, world.HexCoord{Q: 1, R: 0})
	require.NoError(t, err)
	assert.Empty(t, a.Orders)

	_, err = sim.ClearCell(a.ID, c)
	require.NoError(t, err)
	assert.False(t, a.Soil.IsPending(c))
	assert.Empty(t, a.Map.SurfaceAt(c))

	_, err = sim.ProvisionArea(a.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, a.Stock)
	_, err = sim.ProvisionArea(a.ID, 0)
	assert.Error(t, err)

	_, err = sim.ForbidStock(a.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Soil.RenewalBudget())
}

func TestDailyProduction(t *testing.T) {
	cfg := testConfig()
	cfg.World.StockPerDay = 3
	sim := NewSimulation(cfg, testCatalog())
	sim.mu.Lock()
	a := sim.addArea(1, "Dayfield", 1, flatMap(1, 100))
	sim.mu.Unlock()

	sim.TickDay(240)
	sim.TickDay(480)
	assert.Equal(t, 6, a.Stock)
	assert.Equal(t, 6, sim.Stats.Stock)
}

func TestExportImportRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.World.Areas = 2
	cfg.World.Radius = 6
	cfg.World.InitialTilled = 8
	cfg.World.InitialStock = 2

	sim := NewSimulation(cfg, testCatalog())
	sim.GenerateAreas()
	require.Len(t, sim.Areas, 2)

	eng := NewEngine(cfg.CycleEveryTicks, cfg.DayTicks)
	eng.OnTick = sim.TickMinute
	eng.OnCycle = sim.TickCycle
	eng.OnDay = sim.TickDay
	eng.Advance(60)

	saved := sim.Export()
	assert.Equal(t, uint64(60), saved.Tick)

	restored := NewSimulation(cfg, testCatalog())
	require.NoError(t, restored.Import(saved))
	assert.Equal(t, saved, restored.Export())

	// Both continue identically.
	eng2 := NewEngine(cfg.CycleEveryTicks, cfg.DayTicks)
	eng2.Tick = 60
	eng2.OnTick = restored.TickMinute
	eng2.OnCycle = restored.TickCycle
	eng2.OnDay = restored.TickDay
	eng.Advance(200)
	eng2.Advance(200)

	a, b := sim.Export(), restored.Export()
	require.Len(t, b.Areas, len(a.Areas))
	for i := range a.Areas {
		assert.Equal(t, a.Areas[i].Surfaces, b.Areas[i].Surfaces)
		assert.Equal(t, a.Areas[i].Soil, b.Areas[i].Soil)
		assert.Equal(t, a.Areas[i].Stock, b.Areas[i].Stock)
		assert.Len(t, b.Areas[i].Orders, len(a.Areas[i].Orders))
	}
}

func TestImportRejectsBadRadius(t *testing.T) {
	sim := NewSimulation(testConfig(), testCatalog())
	err := sim.Import(WorldState{Areas: []AreaState{{ID: 1, Name: "Void"}}})
	assert.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	sim, _, _ := newTestSim(t)
	id, ch := sim.Subscribe()

	sim.EmitEvent(Event{Tick: 3, Category: "intervention", Description: "hello"})
	e := <-ch
	assert.Equal(t, "hello", e.Description)

	sim.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "Day 1, 0:00", SimTime(0, 2500, 60000))
	assert.Equal(t, "Day 2, 13:30", SimTime(60000+13*2500+1250, 2500, 60000))
	assert.Equal(t, "tick 7", SimTime(7, 0, 0))
}

func TestHexDetail(t *testing.T) {
	sim, a, eng := newTestSim(t)
	c := world.HexCoord{Q: -1, R: 1}
	_, err := sim.TillCell(a.ID, c)
	require.NoError(t, err)

	v, err := sim.HexDetail(a.ID, c)
	require.NoError(t, err)
	assert.Equal(t, "pending", v.Lifecycle)

	eng.Advance(5)
	v, err = sim.HexDetail(a.ID, c)
	require.NoError(t, err)
	assert.Equal(t, "Rich", v.Lifecycle)
	assert.Equal(t, 120, v.Displayed)
	require.NotNil(t, v.Record)
	assert.Equal(t, 100, v.Record.BaselineFertility)

	v, err = sim.HexDetail(a.ID, world.HexCoord{Q: 1, R: 1})
	require.NoError(t, err)
	assert.Equal(t, "raw", v.Lifecycle)
	assert.True(t, v.Tillable)

	_, err = sim.HexDetail(a.ID, world.HexCoord{Q: 5, R: 5})
	assert.Error(t, err)
}
