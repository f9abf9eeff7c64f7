package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/tilth/internal/world"
)

// TillCell places fresh soil on a raw, fertile hex. The lifecycle classifies
// it on the next scheduling cycle.
func (s *Simulation) TillCell(areaID int, c world.HexCoord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.area(areaID)
	if err != nil {
		return "", err
	}
	if !a.Map.Tillable(c) {
		return "", fmt.Errorf("hex (%d,%d) in %s cannot be tilled", c.Q, c.R, a.Name)
	}

	a.Map.SetSurface(c, s.Catalog.BaseVariant())
	a.Soil.OnGroundPlaced(c, true)

	desc := fmt.Sprintf("A new field is tilled in %s at (%d,%d)", a.Name, c.Q, c.R)
	s.emitLocked(Event{
		Tick:        s.CurrentTick(),
		Area:        a.ID,
		Description: desc,
		Category:    "intervention",
		Meta:        map[string]any{"action": "till", "q": c.Q, "r": c.R},
	})
	slog.Info("till intervention", "area", a.Name, "q", c.Q, "r", c.R)
	return desc, nil
}

// ClearCell strips whatever is placed on a hex and cancels any rebuild
// order for it.
func (s *Simulation) ClearCell(areaID int, c world.HexCoord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.area(areaID)
	if err != nil {
		return "", err
	}
	if !a.Map.InBounds(c) {
		return "", fmt.Errorf("hex (%d,%d) is outside %s", c.Q, c.R, a.Name)
	}

	prev := a.Map.SurfaceAt(c)
	a.Map.RevertSurface(c)
	a.Soil.OnGroundRemoved(c)
	cancelled := a.cancelOrdersAt(c)

	desc := fmt.Sprintf("Ground at (%d,%d) in %s is cleared", c.Q, c.R, a.Name)
	s.emitLocked(Event{
		Tick:        s.CurrentTick(),
		Area:        a.ID,
		Description: desc,
		Category:    "intervention",
		Meta:        map[string]any{"action": "clear", "q": c.Q, "r": c.R, "previous": prev, "orders_cancelled": cancelled},
	})
	slog.Info("clear intervention", "area", a.Name, "q", c.Q, "r", c.R, "previous", prev)
	return desc, nil
}

// ProvisionArea delivers bone meal to an area's stockpile.
func (s *Simulation) ProvisionArea(areaID, quantity int) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("quantity must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.area(areaID)
	if err != nil {
		return "", err
	}
	a.Stock += quantity

	desc := fmt.Sprintf("A cart arrives in %s bearing %d bone meal", a.Name, quantity)
	s.emitLocked(Event{
		Tick:        s.CurrentTick(),
		Area:        a.ID,
		Description: desc,
		Category:    "intervention",
		Meta:        map[string]any{"action": "provision", "quantity": quantity, "stock": a.Stock},
	})
	slog.Info("provision intervention", "area", a.Name, "quantity", quantity, "stock", a.Stock)
	return desc, nil
}

// ForbidStock sets how many units of an area's bone meal are held back from
// renewal. Forbidden units are never counted as consumable.
func (s *Simulation) ForbidStock(areaID, quantity int) (string, error) {
	if quantity < 0 {
		return "", fmt.Errorf("quantity must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.area(areaID)
	if err != nil {
		return "", err
	}
	a.Forbidden = quantity

	desc := fmt.Sprintf("%d bone meal in %s is set aside", quantity, a.Name)
	s.emitLocked(Event{
		Tick:        s.CurrentTick(),
		Area:        a.ID,
		Description: desc,
		Category:    "intervention",
		Meta:        map[string]any{"action": "forbid", "quantity": quantity},
	})
	slog.Info("forbid intervention", "area", a.Name, "quantity", quantity)
	return desc, nil
}
