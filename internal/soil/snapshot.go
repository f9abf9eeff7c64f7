package soil

import "github.com/talgya/tilth/internal/world"

// Snapshot is the complete persisted state of a Manager.
type Snapshot struct {
	Records       []Record         `json:"records"`
	Depleted      []world.HexCoord `json:"depleted"` // oldest first
	Pending       []Pending        `json:"pending"`
	NextWakeTick  uint64           `json:"next_wake_tick"`
	NextRenewTick uint64           `json:"next_renew_tick"`
}

// Snapshot captures the manager state.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		Records:       m.scheduler.Records(),
		Depleted:      m.gate.Cells(),
		Pending:       m.pending.Entries(),
		NextWakeTick:  m.scheduler.NextWakeTick(),
		NextRenewTick: m.gate.NextRenewTick(),
	}
}

// Restore replaces the manager state with s. Missing collections load as
// empty. Cells that appear in more than one collection are repaired from the
// surface on the ground.
func (m *Manager) Restore(s Snapshot) {
	m.pending = NewPendingQueue()
	for _, p := range s.Pending {
		m.pending.Enqueue(p.Cell, p.State, p.Hours)
	}
	wake := s.NextWakeTick
	if wake == 0 && len(s.Records) == 0 {
		wake = NeverTick
	}
	m.scheduler.restore(s.Records, wake)
	m.gate.restore(s.Depleted, s.NextRenewTick)
	if n := m.Repair(); n > 0 {
		m.log.Warn("repaired soil state after load", "cells", n)
	}
}
