// Command worldsim runs the Tilth soil lifecycle simulation.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/tilth/internal/api"
	"github.com/talgya/tilth/internal/catalog"
	"github.com/talgya/tilth/internal/config"
	"github.com/talgya/tilth/internal/engine"
	"github.com/talgya/tilth/internal/persistence"
	"github.com/talgya/tilth/internal/snapshot"
	"github.com/talgya/tilth/internal/soil"
)

func main() {
	configPath := flag.String("config", "configs/tuning.yaml", "tuning file (missing file = defaults)")
	catalogPath := flag.String("catalog", "", "soil variant catalog JSON (empty = generated from tuning)")
	dbPath := flag.String("db", "data/tilth.db", "SQLite database path")
	snapPath := flag.String("snapshot", "", "snapshot file written on shutdown and read when the database is empty")
	ticks := flag.Uint64("ticks", 0, "run this many ticks headless, save and exit (0 = serve)")
	port := flag.Int("port", 0, "HTTP port (0 = from tuning)")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("Tilth: tilled soil lifecycle simulation")

	// ── Tuning and catalog ────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("tuning file not found, using defaults", "path", *configPath)
		cfg = config.Default()
	} else if err != nil {
		slog.Error("failed to load tuning", "error", err)
		os.Exit(1)
	}

	cat, err := loadCatalog(*catalogPath, cfg)
	if err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("catalog ready", "variants", cat.Len(), "base", cat.BaseVariant(), "digest", cat.Digest[:12])

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", *dbPath)

	// ── Load or Generate World State ─────────────────────────────────
	sim := engine.NewSimulation(cfg, cat)
	fresh, err := loadWorld(sim, db, *snapPath)
	if err != nil {
		slog.Error("failed to load world", "error", err)
		os.Exit(1)
	}
	startTick := sim.CurrentTick()

	// Save on fresh generation only (loaded worlds are already saved).
	if fresh {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	eng := engine.NewEngine(cfg.CycleEveryTicks, cfg.DayTicks)
	eng.Tick = startTick

	// Wire tick callbacks; auto-save every sim-day.
	eng.OnTick = sim.TickMinute
	eng.OnCycle = sim.TickCycle
	eng.OnDay = func(tick uint64) {
		sim.TickDay(tick)
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("daily save failed", "error", err)
		}
	}

	if *ticks > 0 {
		slog.Info("headless run", "from", startTick, "ticks", *ticks)
		eng.Advance(*ticks)
		shutdown(sim, db, *snapPath)
		return
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("WORLDSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("WORLDSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiPort := cfg.API.Port
	if *port > 0 {
		apiPort = *port
	}

	apiServer := &api.Server{
		Sim:          sim,
		Eng:          eng,
		DB:           db,
		SnapshotPath: *snapPath,
		Port:         apiPort,
		AdminKey:     adminKey,
		RelayKey:     os.Getenv("WORLDSIM_RELAY_KEY"),
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	st := sim.Status()
	fmt.Printf("\nTilth is alive: %s tracked fields across %d areas.\n",
		humanize.Comma(int64(st.Stats.Pending+st.Stats.Rich+st.Stats.Weathered+st.Stats.Depleted)), st.Stats.Areas)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", startTick, st.SimTime)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()
	shutdown(sim, db, *snapPath)
	fmt.Println("Simulation stopped. World state saved.")
}

func loadCatalog(path string, cfg config.Config) (*catalog.Catalog, error) {
	if path != "" {
		return catalog.Load(path)
	}
	states := []string{soil.Rich.String(), soil.Weathered.String(), soil.Depleted.String()}
	return catalog.Generate(cfg.Soil.VariantPrefix, cfg.Soil.BaseVariant, states,
		cfg.Soil.MinPercent, cfg.Soil.MaxPercent), nil
}

// loadWorld restores from the database, else from the snapshot file, else
// generates fresh areas. Reports whether the world is freshly generated.
func loadWorld(sim *engine.Simulation, db *persistence.DB, snapPath string) (bool, error) {
	ws, err := db.LoadWorldState()
	switch {
	case err == nil:
		slog.Info("found saved world state, loading...", "tick", ws.Tick, "areas", len(ws.Areas))
		checkDigest(db, sim.Catalog.Digest)
		return false, sim.Import(ws)
	case !errors.Is(err, persistence.ErrNoState):
		return false, err
	}

	if snapPath != "" {
		f, err := snapshot.ReadFile(snapPath)
		switch {
		case err == nil:
			slog.Info("restoring from snapshot", "path", snapPath, "tick", f.Header.Tick, "written_at", f.Header.WrittenAt)
			if f.Header.CatalogDigest != sim.Catalog.Digest {
				slog.Warn("snapshot was written with a different catalog", "snapshot", f.Header.CatalogDigest, "current", sim.Catalog.Digest)
			}
			if err := sim.Import(f.World); err != nil {
				return false, err
			}
			return true, nil
		case !errors.Is(err, os.ErrNotExist):
			return false, fmt.Errorf("snapshot %s: %w", snapPath, err)
		}
	}

	slog.Info("no saved state found, generating new world...")
	sim.GenerateAreas()
	return true, nil
}

func checkDigest(db *persistence.DB, current string) {
	saved, err := db.GetMeta("catalog_digest")
	if err == nil && saved != current {
		slog.Warn("catalog changed since last save; unknown variants will be reclassified", "saved", saved, "current", current)
	}
}

// shutdown writes the final database save and the snapshot file.
func shutdown(sim *engine.Simulation, db *persistence.DB, snapPath string) {
	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}
	if snapPath == "" {
		return
	}
	ws := sim.Export()
	f := snapshot.File{Header: snapshot.NewHeader(ws, sim.Catalog.Digest), World: ws}
	if err := snapshot.WriteFile(snapPath, f); err != nil {
		slog.Error("snapshot write failed", "path", snapPath, "error", err)
		return
	}
	slog.Info("snapshot written", "path", snapPath, "tick", ws.Tick)
}
