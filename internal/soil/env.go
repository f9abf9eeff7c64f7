package soil

import (
	"github.com/talgya/tilth/internal/catalog"
	"github.com/talgya/tilth/internal/world"
)

// Terrain is the host's terrain grid. Only the placed surface is ever written.
type Terrain interface {
	InBounds(c world.HexCoord) bool
	SurfaceAt(c world.HexCoord) string
	// BaselineFertility is the fertility percent of the raw ground underneath.
	BaselineFertility(c world.HexCoord) (int, bool)
	SetSurface(c world.HexCoord, variant string)
	// RevertSurface restores the raw terrain.
	RevertSurface(c world.HexCoord)
}

// Stockpile is the host's view of the bone meal supply and its build queue.
type Stockpile interface {
	// ConsumableStock counts usable (unforbidden, unclaimed) units in the area.
	ConsumableStock() (int, error)
	// InFlightOrders counts rebuild orders for target that are placed but not built.
	InFlightOrders(target string) (int, error)
	// PlaceRebuildOrder is fire-and-forget; the host owns the order afterwards.
	PlaceRebuildOrder(c world.HexCoord, target string)
}

// VariantCatalog resolves soil variant ids.
type VariantCatalog interface {
	Lookup(id string) (catalog.Variant, bool)
	BaseVariant() string
	IsBase(id string) bool
	IsSoil(id string) bool
	Suggest(id string) string
}

// Clock reports the host's current tick.
type Clock interface {
	CurrentTick() uint64
}
