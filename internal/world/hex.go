// Package world provides the hex grid, terrain, and placed ground surfaces.
// Uses axial coordinates (q, r) for the hex grid.
package world

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Less orders coordinates by q, then r. Used wherever iteration order must be
// deterministic.
func (h HexCoord) Less(o HexCoord) bool {
	if h.Q != o.Q {
		return h.Q < o.Q
	}
	return h.R < o.R
}

// Terrain types for hex tiles.
type Terrain uint8

const (
	TerrainPlains   Terrain = iota // Deep loam, best farmland
	TerrainForest                  // Rooty soil, tillable once cleared
	TerrainMountain                // Bare rock
	TerrainCoast                   // Sandy soil
	TerrainRiver                   // Alluvial silt
	TerrainDesert                  // Sand, barely fertile
	TerrainSwamp                   // Mud, waterlogged
	TerrainTundra                  // Frozen, shallow soil
	TerrainOcean                   // Open water
)

// Hex represents a single tile on the area map.
type Hex struct {
	Coord   HexCoord `json:"coord"`
	Terrain Terrain  `json:"terrain"`

	// Elevation and climate data (set during generation).
	Elevation   float64 `json:"elevation"`   // 0.0 (sea level) to 1.0 (peak)
	Rainfall    float64 `json:"rainfall"`    // 0.0 (arid) to 1.0 (tropical)
	Temperature float64 `json:"temperature"` // 0.0 (frozen) to 1.0 (hot)

	// Fertility of the raw ground in percent (100 = ordinary soil).
	// Fixed at generation; placed surfaces never change it.
	Fertility int `json:"fertility"`

	// Surface is the variant id of a placed top layer ("" = raw ground).
	Surface string `json:"surface,omitempty"`
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	// Max of the three absolute differences in cube coordinates.
	max := dq
	if dr > max {
		max = dr
	}
	if ds > max {
		max = ds
	}
	return max
}

// Ring returns all coordinates within radius of center, in q/r order.
func Ring(center HexCoord, radius int) []HexCoord {
	var out []HexCoord
	for q := -radius; q <= radius; q++ {
		for r := -radius; r <= radius; r++ {
			c := HexCoord{Q: center.Q + q, R: center.R + r}
			if Distance(center, c) <= radius {
				out = append(out, c)
			}
		}
	}
	return out
}
