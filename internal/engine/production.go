// Bone meal production: each area's livestock and butchery add a fixed
// amount to the stockpile every sim-day.
package engine

import (
	"fmt"
	"log/slog"
)

// produceBoneMeal credits the daily bone meal to every area. Caller holds mu.
func (s *Simulation) produceBoneMeal(tick uint64) {
	perDay := s.Config.World.StockPerDay
	if perDay <= 0 {
		return
	}
	for _, a := range s.Areas {
		a.Stock += perDay
		s.emitLocked(Event{
			Tick:        tick,
			Area:        a.ID,
			Category:    "production",
			Description: fmt.Sprintf("%s rendered %d bone meal (stock %d)", a.Name, perDay, a.Stock),
			Meta:        map[string]any{"produced": perDay, "stock": a.Stock},
		})
	}
	slog.Debug("bone meal produced", "per_area", perDay, "areas", len(s.Areas))
}
