package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceAndNeighbors(t *testing.T) {
	origin := HexCoord{}
	for _, n := range origin.Neighbors() {
		assert.Equal(t, 1, Distance(origin, n))
	}
	assert.Equal(t, 3, Distance(HexCoord{Q: -1, R: -1}, HexCoord{Q: 2, R: -1}))
	assert.Equal(t, 4, Distance(HexCoord{Q: 2, R: -4}, HexCoord{Q: 0, R: 0}))
	assert.Len(t, Ring(origin, 2), 19)
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a, b := Generate(cfg), Generate(cfg)

	require.Equal(t, 91, a.HexCount(), "radius 5 disc")
	require.Equal(t, a.HexCount(), b.HexCount())
	for c, h := range a.Hexes {
		other := b.Get(c)
		require.NotNil(t, other)
		assert.Equal(t, h.Terrain, other.Terrain)
		assert.Equal(t, h.Fertility, other.Fertility)
	}
	assert.Equal(t, "Map(radius=5, hexes=91)", a.String())
}

func TestGeneratedFertility(t *testing.T) {
	m := Generate(SmallTestConfig())
	total := 0
	for terrain, n := range TerrainCounts(m) {
		assert.NotEqual(t, "Unknown", TerrainName(terrain))
		total += n
	}
	assert.Equal(t, m.HexCount(), total)

	for c, h := range m.Hexes {
		assert.Zero(t, h.Fertility%10, "fertility at %v is not a step of ten", c)
		if h.Terrain == TerrainOcean || h.Terrain == TerrainMountain {
			assert.Zero(t, h.Fertility)
		}
		fert, ok := m.BaselineFertility(c)
		assert.True(t, ok)
		assert.Equal(t, h.Fertility, fert)
	}
	_, ok := m.BaselineFertility(HexCoord{Q: 40, R: 0})
	assert.False(t, ok)
}

func TestTillable(t *testing.T) {
	m := NewMap(1)
	m.Set(&Hex{Coord: HexCoord{Q: 0, R: 0}, Terrain: TerrainPlains, Fertility: 100})
	m.Set(&Hex{Coord: HexCoord{Q: 1, R: 0}, Terrain: TerrainOcean})
	m.Set(&Hex{Coord: HexCoord{Q: 0, R: 1}, Terrain: TerrainSwamp, Fertility: 50})

	assert.True(t, m.Tillable(HexCoord{Q: 0, R: 0}))
	assert.False(t, m.Tillable(HexCoord{Q: 1, R: 0}))
	assert.False(t, m.Tillable(HexCoord{Q: 0, R: 1}))
	assert.False(t, m.Tillable(HexCoord{Q: 5, R: 5}))

	m.SetSurface(HexCoord{Q: 0, R: 0}, "SoilTilled")
	assert.False(t, m.Tillable(HexCoord{Q: 0, R: 0}), "occupied")
	fert, _ := m.BaselineFertility(HexCoord{Q: 0, R: 0})
	assert.Equal(t, 100, fert, "surfaces never change the baseline")

	m.RevertSurface(HexCoord{Q: 0, R: 0})
	assert.True(t, m.Tillable(HexCoord{Q: 0, R: 0}))
}

func TestSurfacesRoundTrip(t *testing.T) {
	m := Generate(SmallTestConfig())
	m.SetSurface(HexCoord{Q: 1, R: 1}, "SoilTilled_Rich_120")
	m.SetSurface(HexCoord{Q: -2, R: 0}, "SoilTilled")
	m.SetSurface(HexCoord{Q: 9, R: 9}, "ignored")

	surfaces := m.Surfaces()
	require.Len(t, surfaces, 2)
	assert.Equal(t, HexCoord{Q: -2, R: 0}, surfaces[0].Coord, "coordinate order")

	fresh := Generate(SmallTestConfig())
	skipped := fresh.ApplySurfaces(append(surfaces, Surface{Coord: HexCoord{Q: 9, R: 9}, Variant: "x"}))
	assert.Equal(t, 1, skipped)
	assert.Equal(t, surfaces, fresh.Surfaces())
	assert.Equal(t, "SoilTilled_Rich_120", fresh.SurfaceAt(HexCoord{Q: 1, R: 1}))
	assert.Empty(t, fresh.SurfaceAt(HexCoord{Q: 0, R: 0}))
}

func TestPlaceFields(t *testing.T) {
	m := Generate(SmallTestConfig())
	fields := PlaceFields(m, 6)
	require.Len(t, fields, 6)
	seen := map[HexCoord]bool{}
	for _, c := range fields {
		assert.True(t, m.Tillable(c))
		assert.False(t, seen[c])
		seen[c] = true
	}
	assert.Equal(t, fields, PlaceFields(Generate(SmallTestConfig()), 6))
	assert.Nil(t, PlaceFields(m, 0))
}

func TestGenerateNames(t *testing.T) {
	names := GenerateNames(7, 12)
	require.Len(t, names, 12)
	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n])
		seen[n] = true
	}
	assert.Equal(t, names, GenerateNames(7, 12))
}
