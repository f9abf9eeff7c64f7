// Field placement: picks where the initial tilled soil goes in a fresh area.
package world

import (
	"math/rand"
	"sort"
)

// PlaceFields returns up to count tillable coordinates forming a field around the
// most desirable site. Deterministic for a given map.
func PlaceFields(m *Map, count int) []HexCoord {
	if count <= 0 {
		return nil
	}

	type scored struct {
		coord HexCoord
		score float64
	}
	var candidates []scored
	for coord := range m.Hexes {
		if !m.Tillable(coord) {
			continue
		}
		candidates = append(candidates, scored{coord, fieldScore(m, coord)})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].coord.Less(candidates[j].coord)
	})

	// Grow outward from the best site so the field stays contiguous where possible.
	center := candidates[0].coord
	sort.SliceStable(candidates, func(i, j int) bool {
		return Distance(center, candidates[i].coord) < Distance(center, candidates[j].coord)
	})

	if len(candidates) > count {
		candidates = candidates[:count]
	}
	out := make([]HexCoord, len(candidates))
	for i, c := range candidates {
		out[i] = c.coord
	}
	return out
}

// fieldScore prefers fertile ground with water nearby.
func fieldScore(m *Map, coord HexCoord) float64 {
	hex := m.Get(coord)
	score := float64(hex.Fertility) / 10

	for _, nc := range coord.Neighbors() {
		nh := m.Get(nc)
		if nh == nil {
			continue
		}
		if nh.Terrain == TerrainRiver || nh.Terrain == TerrainCoast {
			score += 1.5
			break
		}
	}
	return score
}

// sortCoords sorts coordinates in q/r order.
func sortCoords(coords []HexCoord) {
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
}

// GenerateNames produces procedural area names by combining syllables.
func GenerateNames(seed int64, count int) []string {
	rng := rand.New(rand.NewSource(seed + 200))
	prefixes := []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "Bright", "High", "Low",
		"Old", "New", "Far", "Deep", "Long", "Broad", "Gold",
		"Thorn", "Elm", "Oak", "Barley", "Rye", "Hay",
	}
	suffixes := []string{
		"acre", "ford", "hollow", "wick", "field", "furrow", "stead",
		"meadow", "dale", "croft", "vale", "garth", "mead", "lea",
		"brook", "moor", "ridge", "fold", "holm", "toft",
	}

	used := make(map[string]bool)
	names := make([]string, 0, count)

	for len(names) < count {
		name := prefixes[rng.Intn(len(prefixes))] + suffixes[rng.Intn(len(suffixes))]
		if !used[name] {
			used[name] = true
			names = append(names, name)
		}
	}

	return names
}
