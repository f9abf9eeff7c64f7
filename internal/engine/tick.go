// Package engine provides the tick-based host simulation that drives the
// soil lifecycle of every area.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Engine drives the simulation forward.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Base tick interval at speed 1.0

	CycleEvery uint64 // Ticks between scheduling cycles
	DayTicks   uint64 // Ticks per sim-day

	// Callbacks for each tick layer, populated during setup.
	OnTick  func(tick uint64) // Every tick
	OnCycle func(tick uint64) // Every CycleEvery ticks
	OnDay   func(tick uint64) // Every DayTicks ticks

	mu      sync.Mutex
	speed   float64
	running bool
	stop    chan struct{}
}

// NewEngine creates an engine with the given cadences. A tick lasts one
// millisecond of wall time at speed 1.0.
func NewEngine(cycleEvery, dayTicks int) *Engine {
	return &Engine{
		Interval:   time.Millisecond,
		CycleEvery: uint64(max(1, cycleEvery)),
		DayTicks:   uint64(max(1, dayTicks)),
		speed:      1.0,
	}
}

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.mu.Lock()
	e.running = true
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed())

	for {
		select {
		case <-stop:
			slog.Info("simulation engine stopped", "tick", e.Tick)
			return
		default:
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.running = false
		close(e.stop)
	}
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Speed returns the current speed multiplier. 0 means paused.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = speed
}

// Advance runs n ticks synchronously, for headless runs and tests.
func (e *Engine) Advance(n uint64) {
	for i := uint64(0); i < n; i++ {
		e.step()
	}
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}

	// Scheduling cycle: pending drain, aging, renewal.
	if e.Tick%e.CycleEvery == 0 && e.OnCycle != nil {
		e.OnCycle(e.Tick)
	}

	// Every sim-day: bone meal production, daily report.
	if e.Tick%e.DayTicks == 0 && e.OnDay != nil {
		e.OnDay(e.Tick)
	}
}

// SimTime returns a human-readable simulation time string from a tick number.
func SimTime(tick uint64, ticksPerHour, dayTicks int) string {
	if ticksPerHour <= 0 || dayTicks <= 0 {
		return fmt.Sprintf("tick %d", tick)
	}
	day := tick/uint64(dayTicks) + 1
	inDay := tick % uint64(dayTicks)
	hour := inDay / uint64(ticksPerHour)
	minute := inDay % uint64(ticksPerHour) * 60 / uint64(ticksPerHour)
	return fmt.Sprintf("Day %d, %d:%02d", day, hour, minute)
}
