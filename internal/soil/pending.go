package soil

import (
	"sort"

	"github.com/talgya/tilth/internal/world"
)

// Pending is a placement waiting one scheduling cycle for classification.
// The terrain layer finishes attaching freshly placed ground during that
// cycle; classifying earlier would race it.
type Pending struct {
	Cell  world.HexCoord `json:"cell"`
	State State          `json:"state"`
	Hours int            `json:"hours"`
}

// PendingQueue holds at most one entry per cell.
type PendingQueue struct {
	entries map[world.HexCoord]Pending
}

// NewPendingQueue returns an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{entries: make(map[world.HexCoord]Pending)}
}

// Enqueue queues c, replacing any earlier entry for the same cell.
func (q *PendingQueue) Enqueue(c world.HexCoord, s State, hours int) {
	q.entries[c] = Pending{Cell: c, State: s, Hours: hours}
}

// Remove drops the entry for c. Reports whether one existed.
func (q *PendingQueue) Remove(c world.HexCoord) bool {
	if _, ok := q.entries[c]; !ok {
		return false
	}
	delete(q.entries, c)
	return true
}

// Contains reports whether c is queued.
func (q *PendingQueue) Contains(c world.HexCoord) bool {
	_, ok := q.entries[c]
	return ok
}

// Len returns the number of queued cells.
func (q *PendingQueue) Len() int {
	return len(q.entries)
}

// Drain empties the queue and returns its entries in coordinate order.
func (q *PendingQueue) Drain() []Pending {
	if len(q.entries) == 0 {
		return nil
	}
	out := q.Entries()
	q.entries = make(map[world.HexCoord]Pending)
	return out
}

// Entries returns the queued entries in coordinate order without draining.
func (q *PendingQueue) Entries() []Pending {
	out := make([]Pending, 0, len(q.entries))
	for _, p := range q.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell.Less(out[j].Cell) })
	return out
}
