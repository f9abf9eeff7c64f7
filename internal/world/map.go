package world

import (
	"fmt"
	"sort"
)

// Map holds the complete hex grid of one area.
type Map struct {
	Hexes  map[HexCoord]*Hex `json:"-"` // All hexes keyed by coordinate
	Radius int               `json:"radius"`
}

// Surface is a placed top layer at a coordinate.
type Surface struct {
	Coord   HexCoord `json:"coord"`
	Variant string   `json:"variant"`
}

// NewMap creates an empty map with the given radius.
// A hex grid of radius R contains hexes where max(|q|, |r|, |s|) <= R.
func NewMap(radius int) *Map {
	m := &Map{
		Hexes:  make(map[HexCoord]*Hex),
		Radius: radius,
	}
	return m
}

// Get returns the hex at the given coordinate, or nil if out of bounds.
func (m *Map) Get(coord HexCoord) *Hex {
	return m.Hexes[coord]
}

// Set places a hex at the given coordinate.
func (m *Map) Set(hex *Hex) {
	m.Hexes[hex.Coord] = hex
}

// InBounds returns true if the coordinate is within the map radius and has a hex.
func (m *Map) InBounds(coord HexCoord) bool {
	if Distance(HexCoord{}, coord) > m.Radius {
		return false
	}
	return m.Hexes[coord] != nil
}

// SurfaceAt returns the placed surface variant, or "" for raw ground.
func (m *Map) SurfaceAt(coord HexCoord) string {
	hex := m.Hexes[coord]
	if hex == nil {
		return ""
	}
	return hex.Surface
}

// BaselineFertility returns the fertility percent of the raw ground beneath
// any placed surface.
func (m *Map) BaselineFertility(coord HexCoord) (int, bool) {
	hex := m.Hexes[coord]
	if hex == nil {
		return 0, false
	}
	return hex.Fertility, true
}

// SetSurface places a surface variant on the hex. Out-of-bounds writes are ignored.
func (m *Map) SetSurface(coord HexCoord, variant string) {
	if hex := m.Hexes[coord]; hex != nil {
		hex.Surface = variant
	}
}

// RevertSurface strips the placed surface, leaving the raw terrain.
func (m *Map) RevertSurface(coord HexCoord) {
	m.SetSurface(coord, "")
}

// Tillable reports whether soil can be worked on this hex: fertile land
// with nothing placed on it.
func (m *Map) Tillable(coord HexCoord) bool {
	hex := m.Hexes[coord]
	if hex == nil || hex.Surface != "" {
		return false
	}
	switch hex.Terrain {
	case TerrainOcean, TerrainMountain, TerrainSwamp:
		return false
	}
	return hex.Fertility > 0
}

// Surfaces returns every placed surface in coordinate order.
func (m *Map) Surfaces() []Surface {
	var out []Surface
	for coord, hex := range m.Hexes {
		if hex.Surface != "" {
			out = append(out, Surface{Coord: coord, Variant: hex.Surface})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coord.Less(out[j].Coord) })
	return out
}

// ApplySurfaces restores placed surfaces, e.g. after regenerating the map from its seed.
// Entries for coordinates outside the map are skipped and counted.
func (m *Map) ApplySurfaces(surfaces []Surface) (skipped int) {
	for _, s := range surfaces {
		hex := m.Hexes[s.Coord]
		if hex == nil {
			skipped++
			continue
		}
		hex.Surface = s.Variant
	}
	return skipped
}

// HexCount returns the total number of hexes in the map.
func (m *Map) HexCount() int {
	return len(m.Hexes)
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(radius=%d, hexes=%d)", m.Radius, m.HexCount())
}
