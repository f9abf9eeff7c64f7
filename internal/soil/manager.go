package soil

import (
	"log/slog"
	"sort"

	"github.com/talgya/tilth/internal/world"
)

// Deps are the host collaborators of one Manager.
type Deps struct {
	Terrain Terrain
	Stock   Stockpile
	Catalog VariantCatalog
	Clock   Clock
	Logger  *slog.Logger // nil means slog.Default()
}

// Manager is the lifecycle engine of one area. It owns the pending queue,
// the scheduler and the gate.
type Manager struct {
	params   Params
	deps     Deps
	log      *slog.Logger
	resolver Resolver

	pending   *PendingQueue
	scheduler *Scheduler
	gate      *Gate
}

// CycleReport summarizes one RunSchedulingCycle call.
type CycleReport struct {
	Tick        uint64           `json:"tick"`
	Drained     int              `json:"drained"`
	Registered  int              `json:"registered"`
	Skipped     int              `json:"skipped"`
	Transitions []Transition     `json:"transitions,omitempty"`
	Renewed     []world.HexCoord `json:"renewed,omitempty"`
}

// Counts is a point-in-time population summary.
type Counts struct {
	Pending   int `json:"pending"`
	Rich      int `json:"rich"`
	Weathered int `json:"weathered"`
	Depleted  int `json:"depleted"`
}

// Tracked is the number of cells known to the manager in any collection.
func (c Counts) Tracked() int {
	return c.Pending + c.Rich + c.Weathered + c.Depleted
}

// NewManager wires a manager over the host collaborators.
func NewManager(p Params, d Deps) *Manager {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	r := NewResolver(p, d.Catalog)
	g := newGate(p, d.Terrain, d.Stock, d.Catalog, log)
	return &Manager{
		params:    p,
		deps:      d,
		log:       log,
		resolver:  r,
		pending:   NewPendingQueue(),
		scheduler: newScheduler(p, r, d.Terrain, g, log),
		gate:      g,
	}
}

// Resolver returns the variant resolver used by the manager.
func (m *Manager) Resolver() Resolver {
	return m.resolver
}

// OnGroundPlaced registers soil placed at c. Fresh (base) soil is classified
// on the next cycle; a classified variant is registered immediately with the
// state it declares.
func (m *Manager) OnGroundPlaced(c world.HexCoord, isBase bool) {
	m.forget(c)
	if isBase {
		m.pending.Enqueue(c, Rich, m.params.RichHours)
		return
	}
	m.registerFromSurface(c)
}

// OnGroundRemoved forgets c everywhere. Idempotent.
func (m *Manager) OnGroundRemoved(c world.HexCoord) {
	m.forget(c)
}

func (m *Manager) forget(c world.HexCoord) {
	m.pending.Remove(c)
	m.scheduler.Unregister(c)
	m.gate.Remove(c)
}

// registerFromSurface classifies c from whatever variant currently sits on
// it. Unknown soil falls back to a fresh base placement.
func (m *Manager) registerFromSurface(c world.HexCoord) {
	surface := m.deps.Terrain.SurfaceAt(c)
	v, ok := m.deps.Catalog.Lookup(surface)
	if !ok {
		if !m.deps.Catalog.IsBase(surface) {
			m.log.Warn("unknown soil variant placed, treating as fresh", "cell", c, "variant", surface)
		}
		m.pending.Enqueue(c, Rich, m.params.RichHours)
		return
	}
	st, err := ParseState(v.State)
	if err != nil {
		m.log.Warn("variant declares unknown state, treating as fresh", "cell", c, "variant", surface, "err", err)
		m.pending.Enqueue(c, Rich, m.params.RichHours)
		return
	}
	baseline, _ := m.deps.Terrain.BaselineFertility(c)
	m.scheduler.Register(m.now(), c, st, m.params.HoursFor(st), baseline)
}

func (m *Manager) now() uint64 {
	if m.deps.Clock == nil {
		return 0
	}
	return m.deps.Clock.CurrentTick()
}

// RunSchedulingCycle drains the pending queue, advances the scheduler and
// lets the gate renew. The host calls it on a coarse cadence, never per tick.
func (m *Manager) RunSchedulingCycle(now uint64) CycleReport {
	rep := CycleReport{Tick: now}

	for _, p := range m.pending.Drain() {
		rep.Drained++
		if !m.deps.Terrain.InBounds(p.Cell) || !m.deps.Catalog.IsBase(m.deps.Terrain.SurfaceAt(p.Cell)) {
			rep.Skipped++
			continue
		}
		baseline, _ := m.deps.Terrain.BaselineFertility(p.Cell)
		variant, err := m.resolver.Resolve(baseline, p.State)
		if err != nil {
			m.log.Warn("initial classification failed, leaving base variant",
				"cell", p.Cell,
				"missing", variant,
				"closest", m.deps.Catalog.Suggest(variant),
			)
		} else {
			m.deps.Terrain.SetSurface(p.Cell, variant)
		}
		m.scheduler.Register(now, p.Cell, p.State, p.Hours, baseline)
		rep.Registered++
	}

	rep.Transitions = m.scheduler.Advance(now)
	rep.Renewed = m.gate.Tick(now)
	return rep
}

// Repair enforces single membership. Cells found in more than one
// collection are removed from all of them and re-registered from the
// surface currently on the ground. Returns the number of cells repaired.
func (m *Manager) Repair() int {
	seen := make(map[world.HexCoord]int)
	for _, p := range m.pending.Entries() {
		seen[p.Cell]++
	}
	for c := range m.scheduler.records {
		seen[c]++
	}
	for c := range m.gate.depleted {
		seen[c]++
	}

	var bad []world.HexCoord
	for c, n := range seen {
		if n > 1 {
			bad = append(bad, c)
		}
	}
	sortCells(bad)
	for _, c := range bad {
		m.log.Warn("cell tracked twice, re-registering from ground truth", "cell", c)
		m.forget(c)
		if m.deps.Catalog.IsSoil(m.deps.Terrain.SurfaceAt(c)) {
			m.registerFromSurface(c)
		}
	}
	return len(bad)
}

// Records returns the tracked records in coordinate order.
func (m *Manager) Records() []Record {
	return m.scheduler.Records()
}

// Record returns the tracked record for c.
func (m *Manager) Record(c world.HexCoord) (Record, bool) {
	return m.scheduler.Lookup(c)
}

// DepletedCells returns the depleted cells, oldest first.
func (m *Manager) DepletedCells() []world.HexCoord {
	return m.gate.Cells()
}

// IsDepleted reports whether c waits for renewal.
func (m *Manager) IsDepleted(c world.HexCoord) bool {
	return m.gate.Contains(c)
}

// IsPending reports whether c waits for its first classification.
func (m *Manager) IsPending(c world.HexCoord) bool {
	return m.pending.Contains(c)
}

// PendingEntries returns the queued placements in coordinate order.
func (m *Manager) PendingEntries() []Pending {
	return m.pending.Entries()
}

// NextWakeTick returns the scheduler's wake pointer.
func (m *Manager) NextWakeTick() uint64 {
	return m.scheduler.NextWakeTick()
}

// RenewalBudget reports what the gate could renew right now.
func (m *Manager) RenewalBudget() int {
	return m.gate.Budget()
}

// Counts tallies the population by collection and state.
func (m *Manager) Counts() Counts {
	c := Counts{Pending: m.pending.Len(), Depleted: m.gate.Len()}
	for _, r := range m.scheduler.records {
		switch r.State {
		case Rich:
			c.Rich++
		case Weathered:
			c.Weathered++
		}
	}
	return c
}

func sortCells(cells []world.HexCoord) {
	sort.Slice(cells, func(i, j int) bool { return cells[i].Less(cells[j]) })
}
