// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/tilth/internal/engine"
	"github.com/talgya/tilth/internal/soil"
	"github.com/talgya/tilth/internal/world"
)

// ErrNoState is returned by LoadWorldState on a database that was never saved to.
var ErrNoState = errors.New("no saved world state")

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; SQLite serializes anyway and this keeps the tx simple.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS areas (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		seed INTEGER NOT NULL,
		radius INTEGER NOT NULL,
		stock INTEGER NOT NULL,
		forbidden INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS surfaces (
		area_id INTEGER NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		variant TEXT NOT NULL,
		PRIMARY KEY (area_id, q, r)
	);

	CREATE TABLE IF NOT EXISTS soil_records (
		area_id INTEGER NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		state INTEGER NOT NULL,
		due_tick INTEGER NOT NULL,
		registered_tick INTEGER NOT NULL,
		baseline INTEGER NOT NULL,
		PRIMARY KEY (area_id, q, r)
	);

	CREATE TABLE IF NOT EXISTS depleted_cells (
		area_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		PRIMARY KEY (area_id, q, r)
	);

	CREATE TABLE IF NOT EXISTS pending_cells (
		area_id INTEGER NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		state INTEGER NOT NULL,
		hours INTEGER NOT NULL,
		PRIMARY KEY (area_id, q, r)
	);

	CREATE TABLE IF NOT EXISTS lifecycle (
		area_id INTEGER PRIMARY KEY,
		next_wake_tick INTEGER NOT NULL,
		next_renew_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rebuild_orders (
		id TEXT PRIMARY KEY,
		area_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		target TEXT NOT NULL,
		placed_tick INTEGER NOT NULL,
		ready_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		area_id INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_depleted_seq ON depleted_cells(area_id, seq);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Row types. SQLite integers are signed, so ticks go through tickToDB.

type areaRow struct {
	ID        int    `db:"id"`
	Name      string `db:"name"`
	Seed      int64  `db:"seed"`
	Radius    int    `db:"radius"`
	Stock     int    `db:"stock"`
	Forbidden int    `db:"forbidden"`
}

type surfaceRow struct {
	AreaID  int    `db:"area_id"`
	Q       int    `db:"q"`
	R       int    `db:"r"`
	Variant string `db:"variant"`
}

type recordRow struct {
	AreaID         int   `db:"area_id"`
	Q              int   `db:"q"`
	R              int   `db:"r"`
	State          uint8 `db:"state"`
	DueTick        int64 `db:"due_tick"`
	RegisteredTick int64 `db:"registered_tick"`
	Baseline       int   `db:"baseline"`
}

type depletedRow struct {
	AreaID int `db:"area_id"`
	Seq    int `db:"seq"`
	Q      int `db:"q"`
	R      int `db:"r"`
}

type pendingRow struct {
	AreaID int   `db:"area_id"`
	Q      int   `db:"q"`
	R      int   `db:"r"`
	State  uint8 `db:"state"`
	Hours  int   `db:"hours"`
}

type lifecycleRow struct {
	AreaID        int   `db:"area_id"`
	NextWakeTick  int64 `db:"next_wake_tick"`
	NextRenewTick int64 `db:"next_renew_tick"`
}

type orderRow struct {
	ID         string `db:"id"`
	AreaID     int    `db:"area_id"`
	Seq        int    `db:"seq"`
	Q          int    `db:"q"`
	R          int    `db:"r"`
	Target     string `db:"target"`
	PlacedTick int64  `db:"placed_tick"`
	ReadyTick  int64  `db:"ready_tick"`
}

type eventRow struct {
	Tick        int64  `db:"tick"`
	AreaID      int    `db:"area_id"`
	Description string `db:"description"`
	Category    string `db:"category"`
}

// tickToDB maps NeverTick to -1.
func tickToDB(t uint64) int64 {
	if t == soil.NeverTick {
		return -1
	}
	return int64(t)
}

func tickFromDB(v int64) uint64 {
	if v < 0 {
		return soil.NeverTick
	}
	return uint64(v)
}

var stateTables = []string{
	"areas", "surfaces", "soil_records", "depleted_cells",
	"pending_cells", "lifecycle", "rebuild_orders",
}

// SaveAreas writes every area and its soil state (full replace, one transaction).
func (db *DB) SaveAreas(ws engine.WorldState) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range stateTables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, a := range ws.Areas {
		if _, err := tx.NamedExec(`INSERT INTO areas (id, name, seed, radius, stock, forbidden)
			VALUES (:id, :name, :seed, :radius, :stock, :forbidden)`,
			areaRow{a.ID, a.Name, a.Seed, a.Radius, a.Stock, a.Forbidden}); err != nil {
			return fmt.Errorf("insert area %d: %w", a.ID, err)
		}
		if err := insertAreaRows(tx, a); err != nil {
			return fmt.Errorf("area %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

func insertAreaRows(tx *sqlx.Tx, a engine.AreaState) error {
	for _, s := range a.Surfaces {
		if _, err := tx.NamedExec(`INSERT INTO surfaces (area_id, q, r, variant)
			VALUES (:area_id, :q, :r, :variant)`,
			surfaceRow{a.ID, s.Coord.Q, s.Coord.R, s.Variant}); err != nil {
			return fmt.Errorf("insert surface: %w", err)
		}
	}

	for _, rec := range a.Soil.Records {
		row := recordRow{
			AreaID:         a.ID,
			Q:              rec.Cell.Q,
			R:              rec.Cell.R,
			State:          uint8(rec.State),
			DueTick:        tickToDB(rec.DueTick),
			RegisteredTick: tickToDB(rec.RegisteredTick),
			Baseline:       rec.BaselineFertility,
		}
		if _, err := tx.NamedExec(`INSERT INTO soil_records
			(area_id, q, r, state, due_tick, registered_tick, baseline)
			VALUES (:area_id, :q, :r, :state, :due_tick, :registered_tick, :baseline)`, row); err != nil {
			return fmt.Errorf("insert soil record: %w", err)
		}
	}

	for i, c := range a.Soil.Depleted {
		if _, err := tx.NamedExec(`INSERT INTO depleted_cells (area_id, seq, q, r)
			VALUES (:area_id, :seq, :q, :r)`,
			depletedRow{a.ID, i, c.Q, c.R}); err != nil {
			return fmt.Errorf("insert depleted cell: %w", err)
		}
	}

	for _, p := range a.Soil.Pending {
		if _, err := tx.NamedExec(`INSERT INTO pending_cells (area_id, q, r, state, hours)
			VALUES (:area_id, :q, :r, :state, :hours)`,
			pendingRow{a.ID, p.Cell.Q, p.Cell.R, uint8(p.State), p.Hours}); err != nil {
			return fmt.Errorf("insert pending cell: %w", err)
		}
	}

	if _, err := tx.NamedExec(`INSERT INTO lifecycle (area_id, next_wake_tick, next_renew_tick)
		VALUES (:area_id, :next_wake_tick, :next_renew_tick)`,
		lifecycleRow{a.ID, tickToDB(a.Soil.NextWakeTick), tickToDB(a.Soil.NextRenewTick)}); err != nil {
		return fmt.Errorf("insert lifecycle: %w", err)
	}

	for i, o := range a.Orders {
		row := orderRow{
			ID:         o.ID.String(),
			AreaID:     a.ID,
			Seq:        i,
			Q:          o.Cell.Q,
			R:          o.Cell.R,
			Target:     o.Target,
			PlacedTick: tickToDB(o.PlacedTick),
			ReadyTick:  tickToDB(o.ReadyTick),
		}
		if _, err := tx.NamedExec(`INSERT INTO rebuild_orders
			(id, area_id, seq, q, r, target, placed_tick, ready_tick)
			VALUES (:id, :area_id, :seq, :q, :r, :target, :placed_tick, :ready_tick)`, row); err != nil {
			return fmt.Errorf("insert rebuild order: %w", err)
		}
	}
	return nil
}

// LoadAreas reads every saved area. Collections with no rows load as empty.
func (db *DB) LoadAreas() ([]engine.AreaState, error) {
	var areas []areaRow
	if err := db.conn.Select(&areas, "SELECT * FROM areas ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load areas: %w", err)
	}

	out := make([]engine.AreaState, 0, len(areas))
	for _, ar := range areas {
		st, err := db.loadArea(ar)
		if err != nil {
			return nil, fmt.Errorf("area %d: %w", ar.ID, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func (db *DB) loadArea(ar areaRow) (engine.AreaState, error) {
	st := engine.AreaState{
		ID:        ar.ID,
		Name:      ar.Name,
		Seed:      ar.Seed,
		Radius:    ar.Radius,
		Stock:     ar.Stock,
		Forbidden: ar.Forbidden,
		Surfaces:  []world.Surface{},
		Orders:    []engine.RebuildOrder{},
		Soil: soil.Snapshot{
			Records:       []soil.Record{},
			Depleted:      []world.HexCoord{},
			Pending:       []soil.Pending{},
			NextWakeTick:  soil.NeverTick,
			NextRenewTick: 0,
		},
	}

	var surfaces []surfaceRow
	if err := db.conn.Select(&surfaces,
		"SELECT * FROM surfaces WHERE area_id = ? ORDER BY q, r", ar.ID); err != nil {
		return st, fmt.Errorf("load surfaces: %w", err)
	}
	for _, s := range surfaces {
		st.Surfaces = append(st.Surfaces, world.Surface{Coord: world.HexCoord{Q: s.Q, R: s.R}, Variant: s.Variant})
	}

	var records []recordRow
	if err := db.conn.Select(&records,
		"SELECT * FROM soil_records WHERE area_id = ? ORDER BY q, r", ar.ID); err != nil {
		return st, fmt.Errorf("load soil records: %w", err)
	}
	for _, r := range records {
		st.Soil.Records = append(st.Soil.Records, soil.Record{
			Cell:              world.HexCoord{Q: r.Q, R: r.R},
			State:             soil.State(r.State),
			DueTick:           tickFromDB(r.DueTick),
			RegisteredTick:    tickFromDB(r.RegisteredTick),
			BaselineFertility: r.Baseline,
		})
	}

	var depleted []depletedRow
	if err := db.conn.Select(&depleted,
		"SELECT * FROM depleted_cells WHERE area_id = ? ORDER BY seq", ar.ID); err != nil {
		return st, fmt.Errorf("load depleted cells: %w", err)
	}
	for _, d := range depleted {
		st.Soil.Depleted = append(st.Soil.Depleted, world.HexCoord{Q: d.Q, R: d.R})
	}

	var pending []pendingRow
	if err := db.conn.Select(&pending,
		"SELECT * FROM pending_cells WHERE area_id = ? ORDER BY q, r", ar.ID); err != nil {
		return st, fmt.Errorf("load pending cells: %w", err)
	}
	for _, p := range pending {
		st.Soil.Pending = append(st.Soil.Pending, soil.Pending{
			Cell:  world.HexCoord{Q: p.Q, R: p.R},
			State: soil.State(p.State),
			Hours: p.Hours,
		})
	}

	var lc lifecycleRow
	err := db.conn.Get(&lc, "SELECT * FROM lifecycle WHERE area_id = ?", ar.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		slog.Warn("no lifecycle row, scheduler pointers reset", "area", ar.Name)
	case err != nil:
		return st, fmt.Errorf("load lifecycle: %w", err)
	default:
		st.Soil.NextWakeTick = tickFromDB(lc.NextWakeTick)
		st.Soil.NextRenewTick = tickFromDB(lc.NextRenewTick)
	}

	var orders []orderRow
	if err := db.conn.Select(&orders,
		"SELECT * FROM rebuild_orders WHERE area_id = ? ORDER BY seq", ar.ID); err != nil {
		return st, fmt.Errorf("load rebuild orders: %w", err)
	}
	for _, o := range orders {
		id, err := uuid.Parse(o.ID)
		if err != nil {
			return st, fmt.Errorf("rebuild order %q: %w", o.ID, err)
		}
		st.Orders = append(st.Orders, engine.RebuildOrder{
			ID:         id,
			Cell:       world.HexCoord{Q: o.Q, R: o.R},
			Target:     o.Target,
			PlacedTick: tickFromDB(o.PlacedTick),
			ReadyTick:  tickFromDB(o.ReadyTick),
		})
	}
	return st, nil
}

// SaveEvents appends events newer than the last saved one.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	var after int64 = -1
	if v, err := db.GetMeta("events_saved_tick"); err == nil {
		after, _ = strconv.ParseInt(v, 10, 64)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	last := after
	for _, e := range events {
		if int64(e.Tick) <= after {
			continue
		}
		if _, err := tx.NamedExec(`INSERT INTO events (tick, area_id, description, category)
			VALUES (:tick, :area_id, :description, :category)`,
			eventRow{int64(e.Tick), e.Area, e.Description, e.Category}); err != nil {
			return err
		}
		last = max(last, int64(e.Tick))
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		"events_saved_tick", strconv.FormatInt(last, 10)); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// SaveWorldState performs a full save of all world state.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	ws := sim.Export()
	slog.Info("saving world state", "areas", len(ws.Areas), "tick", ws.Tick)

	if err := db.SaveAreas(ws); err != nil {
		return fmt.Errorf("save areas: %w", err)
	}
	if err := db.SaveEvents(sim.RecentEvents(1000)); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(ws.Tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta("catalog_digest", sim.Catalog.Digest); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("world state saved")
	return nil
}

// LoadWorldState reads the last full save. Returns ErrNoState on a fresh database.
func (db *DB) LoadWorldState() (engine.WorldState, error) {
	v, err := db.GetMeta("last_tick")
	if errors.Is(err, sql.ErrNoRows) {
		return engine.WorldState{}, ErrNoState
	}
	if err != nil {
		return engine.WorldState{}, fmt.Errorf("load meta: %w", err)
	}
	tick, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return engine.WorldState{}, fmt.Errorf("last_tick %q: %w", v, err)
	}

	areas, err := db.LoadAreas()
	if err != nil {
		return engine.WorldState{}, err
	}
	return engine.WorldState{Tick: tick, Areas: areas}, nil
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, area_id, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, engine.Event{
			Tick:        uint64(r.Tick),
			Area:        r.AreaID,
			Description: r.Description,
			Category:    r.Category,
		})
	}
	return events, nil
}
