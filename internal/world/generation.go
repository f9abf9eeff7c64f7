// Area generation using layered simplex noise.
// Generates elevation, rainfall, and temperature maps, then derives terrain and
// the baseline fertility of each hex.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds area generation parameters.
type GenConfig struct {
	Radius      int     // Hex grid radius
	Seed        int64   // Random seed (0 = random)
	SeaLevel    float64 // Elevation threshold for water (0.0–1.0)
	MountainLvl float64 // Elevation threshold for mountains (0.0–1.0)
}

// DefaultGenConfig returns a reasonable starting configuration for a farm-sized area.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:      12,
		Seed:        0,
		SeaLevel:    0.18,
		MountainLvl: 0.78,
	}
}

// SmallTestConfig returns a tiny area for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Radius:      5,
		Seed:        42,
		SeaLevel:    0.10,
		MountainLvl: 0.90,
	}
}

// Generate creates a complete area map with terrain and fertility.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	// Three noise generators for independent layers.
	elevNoise := opensimplex.NewNormalized(seed)
	rainNoise := opensimplex.NewNormalized(seed + 1)
	tempNoise := opensimplex.NewNormalized(seed + 2)

	m := NewMap(cfg.Radius)

	for _, coord := range Ring(HexCoord{}, cfg.Radius) {
		// Hex axial → cartesian: x = q + r*0.5, y = r * sqrt(3)/2
		x := float64(coord.Q) + float64(coord.R)*0.5
		y := float64(coord.R) * math.Sqrt(3.0) / 2.0

		elev := octaveNoise(elevNoise, x, y, 4, 0.08, 0.5)
		rain := octaveNoise(rainNoise, x, y, 3, 0.06, 0.5)
		temp := octaveNoise(tempNoise, x, y, 3, 0.05, 0.5)

		// Temperature drops with elevation.
		temp = temp*0.8 + (1.0-elev)*0.2

		terrain := deriveTerrain(elev, rain, temp, cfg)

		m.Set(&Hex{
			Coord:       coord,
			Terrain:     terrain,
			Elevation:   elev,
			Rainfall:    rain,
			Temperature: temp,
			Fertility:   baseFertility(terrain, rain),
		})
	}

	// Post-pass: land next to water becomes coast.
	markCoastalHexes(m)

	// Post-pass: a few rivers from high ground to the water.
	placeRivers(m, seed)

	return m
}

// deriveTerrain determines terrain type from environmental parameters.
func deriveTerrain(elev, rain, temp float64, cfg GenConfig) Terrain {
	if elev < cfg.SeaLevel {
		return TerrainOcean
	}
	if elev > cfg.MountainLvl {
		return TerrainMountain
	}
	if temp < 0.2 {
		return TerrainTundra
	}
	if rain < 0.25 && temp > 0.55 {
		return TerrainDesert
	}
	if rain > 0.75 && elev < 0.4 {
		return TerrainSwamp
	}
	if rain > 0.5 && elev > 0.5 {
		return TerrainForest
	}
	return TerrainPlains
}

// baseFertility gives the raw-ground fertility percent for a terrain, in steps of 10.
// Wetter ground is richer, up to +20.
func baseFertility(terrain Terrain, rain float64) int {
	wet := int(math.Round(rain*2)) * 10
	switch terrain {
	case TerrainPlains:
		return 90 + wet
	case TerrainRiver:
		return 110 + wet
	case TerrainForest:
		return 80 + wet
	case TerrainCoast:
		return 70
	case TerrainTundra:
		return 60
	case TerrainDesert:
		return 40
	case TerrainSwamp:
		return 50
	default:
		return 0
	}
}

// markCoastalHexes converts low land hexes adjacent to water into coast terrain.
func markCoastalHexes(m *Map) {
	var toMark []HexCoord

	for coord, hex := range m.Hexes {
		if hex.Terrain == TerrainOcean {
			continue
		}
		for _, neighbor := range coord.Neighbors() {
			nh := m.Get(neighbor)
			if nh != nil && nh.Terrain == TerrainOcean {
				toMark = append(toMark, coord)
				break
			}
		}
	}

	for _, coord := range toMark {
		hex := m.Get(coord)
		if hex.Terrain == TerrainPlains || hex.Terrain == TerrainForest {
			if hex.Elevation < 0.4 {
				hex.Terrain = TerrainCoast
				hex.Fertility = baseFertility(TerrainCoast, hex.Rainfall)
			}
		}
	}
}

// placeRivers traces paths from high elevation downhill, marking hexes as river.
func placeRivers(m *Map, seed int64) {
	rng := rand.New(rand.NewSource(seed + 100))

	var sources []HexCoord
	for coord, hex := range m.Hexes {
		if hex.Elevation > 0.65 && hex.Terrain != TerrainOcean {
			sources = append(sources, coord)
		}
	}
	// Map iteration order is random; sort before shuffling so the seed decides.
	sortCoords(sources)

	numRivers := len(sources) / 8
	if numRivers < 1 {
		numRivers = 1
	}
	if numRivers > 3 {
		numRivers = 3
	}

	rng.Shuffle(len(sources), func(i, j int) {
		sources[i], sources[j] = sources[j], sources[i]
	})
	if len(sources) > numRivers {
		sources = sources[:numRivers]
	}

	for _, start := range sources {
		traceRiver(m, start)
	}
}

// traceRiver follows the steepest descent from a source hex until reaching
// water or running out of downhill path.
func traceRiver(m *Map, start HexCoord) {
	current := start
	visited := make(map[HexCoord]bool)
	maxSteps := 30

	for step := 0; step < maxSteps; step++ {
		visited[current] = true
		hex := m.Get(current)
		if hex == nil || hex.Terrain == TerrainOcean {
			break
		}

		if hex.Terrain != TerrainMountain && hex.Terrain != TerrainCoast {
			hex.Terrain = TerrainRiver
			hex.Fertility = baseFertility(TerrainRiver, hex.Rainfall)
		}

		var bestNeighbor *HexCoord
		bestElev := hex.Elevation

		for _, nc := range current.Neighbors() {
			if visited[nc] {
				continue
			}
			nh := m.Get(nc)
			if nh == nil {
				continue
			}
			if nh.Elevation < bestElev {
				bestElev = nh.Elevation
				c := nc
				bestNeighbor = &c
			}
		}

		if bestNeighbor == nil {
			break
		}
		current = *bestNeighbor
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// TerrainCounts returns a summary of terrain type distribution.
func TerrainCounts(m *Map) map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, hex := range m.Hexes {
		counts[hex.Terrain]++
	}
	return counts
}

// TerrainName returns a human-readable name for a terrain type.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainPlains:
		return "Plains"
	case TerrainForest:
		return "Forest"
	case TerrainMountain:
		return "Mountain"
	case TerrainCoast:
		return "Coast"
	case TerrainRiver:
		return "River"
	case TerrainDesert:
		return "Desert"
	case TerrainSwamp:
		return "Swamp"
	case TerrainTundra:
		return "Tundra"
	case TerrainOcean:
		return "Ocean"
	default:
		return "Unknown"
	}
}
