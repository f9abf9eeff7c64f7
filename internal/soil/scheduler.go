package soil

import (
	"errors"
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/tilth/internal/world"
)

// NeverTick is the wake pointer of an empty scheduler.
const NeverTick uint64 = math.MaxUint64

// Record is one tracked, non-terminal soil cell.
type Record struct {
	Cell              world.HexCoord `json:"cell"`
	State             State          `json:"state"`
	DueTick           uint64         `json:"due_tick"`
	RegisteredTick    uint64         `json:"registered_tick"`
	BaselineFertility int            `json:"baseline_fertility"`
}

// Transition is one state change applied during Advance.
type Transition struct {
	Cell     world.HexCoord `json:"cell"`
	From     State          `json:"from"`
	To       State          `json:"to"`
	Variant  string         `json:"variant"`
	Fallback bool           `json:"fallback,omitempty"` // content gap forced Depleted
	Tick     uint64         `json:"tick"`
}

// Scheduler owns the tracked records and the wake pointer.
type Scheduler struct {
	params   Params
	resolver Resolver
	terrain  Terrain
	gate     *Gate
	log      *slog.Logger

	records  map[world.HexCoord]*Record
	nextWake uint64
}

func newScheduler(p Params, r Resolver, t Terrain, g *Gate, log *slog.Logger) *Scheduler {
	return &Scheduler{
		params:   p,
		resolver: r,
		terrain:  t,
		gate:     g,
		log:      log,
		records:  make(map[world.HexCoord]*Record),
		nextWake: NeverTick,
	}
}

// Register creates or replaces the record for c. A Depleted registration
// goes straight to the gate instead.
func (s *Scheduler) Register(now uint64, c world.HexCoord, st State, hours, baseline int) {
	s.gate.Remove(c)
	if st.Terminal() {
		delete(s.records, c)
		s.gate.MarkDepleted(c)
		return
	}

	d := uint64(1)
	if hours > 0 && s.params.TicksPerHour > 0 {
		d = uint64(hours) * uint64(s.params.TicksPerHour)
	}
	due := now + d
	s.records[c] = &Record{
		Cell:              c,
		State:             st,
		DueTick:           due,
		RegisteredTick:    now,
		BaselineFertility: baseline,
	}
	if due < s.nextWake {
		s.nextWake = due
	}
}

// Unregister drops the record for c. Safe on untracked cells. The wake
// pointer is left alone; a stale early wake costs one scan.
func (s *Scheduler) Unregister(c world.HexCoord) bool {
	if _, ok := s.records[c]; !ok {
		return false
	}
	delete(s.records, c)
	if len(s.records) == 0 {
		s.nextWake = NeverTick
	}
	return true
}

// Lookup returns a copy of the record for c.
func (s *Scheduler) Lookup(c world.HexCoord) (Record, bool) {
	r, ok := s.records[c]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Len returns the number of tracked records.
func (s *Scheduler) Len() int {
	return len(s.records)
}

// NextWakeTick returns the earliest due tick, or NeverTick.
func (s *Scheduler) NextWakeTick() uint64 {
	return s.nextWake
}

// Advance applies every transition due at or before now.
func (s *Scheduler) Advance(now uint64) []Transition {
	if now < s.nextWake {
		return nil
	}

	var due []*Record
	for _, r := range s.records {
		if r.DueTick <= now {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].DueTick != due[j].DueTick {
			return due[i].DueTick < due[j].DueTick
		}
		return due[i].Cell.Less(due[j].Cell)
	})

	var out []Transition
	for _, r := range due {
		if t, ok := s.transition(now, r); ok {
			out = append(out, t)
		}
	}
	s.recomputeWake()
	return out
}

func (s *Scheduler) transition(now uint64, r *Record) (Transition, bool) {
	c := r.Cell
	if !s.resolver.Catalog.IsSoil(s.terrain.SurfaceAt(c)) {
		// Ground was replaced under us without a removal event.
		delete(s.records, c)
		s.log.Debug("dropping record, surface is no longer soil", "cell", c)
		return Transition{}, false
	}

	next := r.State.Next()
	t := Transition{Cell: c, From: r.State, To: next, Tick: now}

	variant, err := s.resolver.Resolve(r.BaselineFertility, next)
	if err != nil {
		if !errors.Is(err, ErrVariantNotFound) {
			s.log.Warn("variant resolve failed", "cell", c, "err", err)
		} else {
			s.log.Warn("content gap, degrading to depleted",
				"cell", c,
				"missing", variant,
				"closest", s.resolver.Catalog.Suggest(variant),
			)
		}
		next = Depleted
		t.To = Depleted
		t.Fallback = true
		variant, err = s.resolver.Resolve(r.BaselineFertility, Depleted)
		if err != nil {
			// No depleted variant either; the surface keeps its current look.
			variant = ""
		}
	}

	if variant != "" {
		s.terrain.SetSurface(c, variant)
	}
	t.Variant = variant

	if next.Terminal() {
		delete(s.records, c)
		s.gate.MarkDepleted(c)
	} else {
		s.Register(now, c, next, s.params.HoursFor(next), r.BaselineFertility)
	}
	s.log.Debug("soil transition", "cell", c, "from", t.From, "to", t.To, "variant", variant)
	return t, true
}

func (s *Scheduler) recomputeWake() {
	s.nextWake = NeverTick
	for _, r := range s.records {
		if r.DueTick < s.nextWake {
			s.nextWake = r.DueTick
		}
	}
}

// Records returns copies of all tracked records in coordinate order.
func (s *Scheduler) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell.Less(out[j].Cell) })
	return out
}

// restore replaces the record set. The saved wake pointer is kept unless a
// record is due earlier.
func (s *Scheduler) restore(records []Record, wake uint64) {
	s.records = make(map[world.HexCoord]*Record, len(records))
	for i := range records {
		r := records[i]
		s.records[r.Cell] = &r
	}
	s.recomputeWake()
	if wake < s.nextWake {
		s.nextWake = wake
	}
}
