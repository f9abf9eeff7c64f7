package snapshot

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tilth/internal/catalog"
	"github.com/talgya/tilth/internal/config"
	"github.com/talgya/tilth/internal/engine"
)

func busySim(t *testing.T) *engine.Simulation {
	t.Helper()
	cfg := config.Default()
	cfg.TicksPerHour = 10
	cfg.DayTicks = 240
	cfg.CycleEveryTicks = 5
	cfg.Soil.RichHours = 2
	cfg.Soil.WeatheredHours = 1
	cfg.Renewal.IntervalTicks = 50
	cfg.World.BuildTicks = 20
	cfg.World.Areas = 2
	cfg.World.Radius = 5
	cfg.World.InitialTilled = 6
	cfg.World.InitialStock = 1

	cat := catalog.Generate("SoilTilled", "SoilTilled", []string{"Rich", "Weathered", "Depleted"}, 70, 170)
	sim := engine.NewSimulation(cfg, cat)
	sim.GenerateAreas()
	eng := engine.NewEngine(cfg.CycleEveryTicks, cfg.DayTicks)
	eng.OnTick = sim.TickMinute
	eng.OnCycle = sim.TickCycle
	eng.OnDay = sim.TickDay
	eng.Advance(70)
	return sim
}

func TestWriteReadFile(t *testing.T) {
	sim := busySim(t)
	ws := sim.Export()
	path := filepath.Join(t.TempDir(), "snaps", "world.snap")

	require.NoError(t, WriteFile(path, File{Header: NewHeader(ws, sim.Catalog.Digest), World: ws}))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Version, got.Header.Version)
	assert.Equal(t, uint64(70), got.Header.Tick)
	assert.Equal(t, 2, got.Header.Areas)
	assert.Equal(t, sim.Catalog.Digest, got.Header.CatalogDigest)

	restored := engine.NewSimulation(sim.Config, sim.Catalog)
	require.NoError(t, restored.Import(got.World))
	assert.Equal(t, ws, restored.Export())
}

func TestReadHeaderOnly(t *testing.T) {
	sim := busySim(t)
	ws := sim.Export()
	h := NewHeader(ws, "abc")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, File{Header: h, World: ws}))

	got, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, h.Tick, got.Tick)
	assert.Equal(t, h.Tracked, got.Tracked)
	assert.Equal(t, "abc", got.CatalogDigest)
	assert.Positive(t, got.Tracked)
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not a snapshot")))
	assert.Error(t, err)
}

func TestReadRejectsNewerVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, File{Header: Header{Version: Version + 1}}))
	_, err := Read(&buf)
	assert.ErrorContains(t, err, "unsupported snapshot version")
}
