// Package api provides the HTTP API for querying soil state.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/tilth/internal/engine"
	"github.com/talgya/tilth/internal/persistence"
	"github.com/talgya/tilth/internal/snapshot"
	"github.com/talgya/tilth/internal/world"
)

const (
	maxStreamConns = 4
	catchUpEvents  = 50
)

// Server serves the world state over HTTP.
type Server struct {
	Sim          *engine.Simulation
	Eng          *engine.Engine
	DB           *persistence.DB // nil = database snapshots disabled
	SnapshotPath string          // "" = file snapshots disabled
	Port         int
	AdminKey     string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey     string // Bearer token for the event stream. Empty = streaming disabled.

	// Interventions per client per minute. 0 uses the default.
	InterventionRate int

	streamConns atomic.Int32
	upgrader    websocket.Upgrader
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	rate := s.InterventionRate
	if rate <= 0 {
		rate = 30
	}
	interventionLimiter := NewRateLimiter(rate, time.Minute)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // relay key gates access
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/areas", s.handleAreas)
	mux.HandleFunc("/api/v1/area/", s.handleAreaDetail)
	mux.HandleFunc("/api/v1/map/", s.handleHexDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	// Event stream (websocket, relay key).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/intervention", s.adminOnly(RateLimitMiddleware(interventionLimiter, s.handleIntervention)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no WORLDSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if bearerToken(r) != s.AdminKey {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	resp := map[string]any{
		"name":           "Tilth",
		"tick":           st.Tick,
		"sim_time":       st.SimTime,
		"stats":          st.Stats,
		"catalog_digest": st.Catalog,
	}
	if s.Eng != nil {
		resp["speed"] = s.Eng.Speed()
		resp["running"] = s.Eng.Running()
	}
	writeJSON(w, resp)
}

func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.AreaSummaries())
}

// handleAreaDetail serves GET /api/v1/area/:id.
func (s *Server) handleAreaDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/area/")
	id, err := strconv.Atoi(strings.TrimSuffix(idStr, "/"))
	if err != nil {
		http.Error(w, "invalid area id", http.StatusBadRequest)
		return
	}
	d, err := s.Sim.AreaDetail(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, d)
}

// handleHexDetail serves GET /api/v1/map/:area/:q/:r.
func (s *Server) handleHexDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	// /api/v1/map/:area/:q/:r → parts[0]="" [1]="api" [2]="v1" [3]="map" [4]=area [5]=q [6]=r
	if len(parts) < 7 {
		http.Error(w, "usage: /api/v1/map/:area/:q/:r", http.StatusBadRequest)
		return
	}
	areaID, err0 := strconv.Atoi(parts[4])
	q, err1 := strconv.Atoi(parts[5])
	rr, err2 := strconv.Atoi(parts[6])
	if err0 != nil || err1 != nil || err2 != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	v, err := s.Sim.HexDetail(areaID, world.HexCoord{Q: q, R: rr})
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, v)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var areaID int
	if a := r.URL.Query().Get("area"); a != "" {
		n, err := strconv.Atoi(a)
		if err != nil {
			http.Error(w, "invalid area", http.StatusBadRequest)
			return
		}
		areaID = n
	}
	category := r.URL.Query().Get("category")

	events := s.Sim.RecentEvents(1000)
	filtered := make([]engine.Event, 0, len(events))
	for _, e := range events {
		if areaID != 0 && e.Area != areaID {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		filtered = append(filtered, e)
	}

	start := max(0, len(filtered)-limit)
	writeJSON(w, filtered[start:])
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil && s.SnapshotPath == "" {
		http.Error(w, "no snapshot target configured", http.StatusServiceUnavailable)
		return
	}

	resp := map[string]any{"tick": s.Sim.CurrentTick()}
	if s.DB != nil {
		if err := s.DB.SaveWorldState(s.Sim); err != nil {
			slog.Error("database save failed", "error", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		resp["database"] = true
	}
	if s.SnapshotPath != "" {
		ws := s.Sim.Export()
		f := snapshot.File{Header: snapshot.NewHeader(ws, s.Sim.Catalog.Digest), World: ws}
		if err := snapshot.WriteFile(s.SnapshotPath, f); err != nil {
			slog.Error("snapshot write failed", "path", s.SnapshotPath, "error", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		resp["file"] = s.SnapshotPath
	}
	resp["message"] = "snapshot saved"
	writeJSON(w, resp)
}

// InterventionRequest is the body of POST /api/v1/intervention.
type InterventionRequest struct {
	Type     string `json:"type"` // till, clear, provision, forbid
	Area     int    `json:"area"`
	Q        int    `json:"q,omitempty"`
	R        int    `json:"r,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

func (s *Server) handleIntervention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req InterventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Area == 0 {
		http.Error(w, "area required", http.StatusBadRequest)
		return
	}

	var (
		desc string
		err  error
	)
	c := world.HexCoord{Q: req.Q, R: req.R}
	switch req.Type {
	case "till":
		desc, err = s.Sim.TillCell(req.Area, c)
	case "clear":
		desc, err = s.Sim.ClearCell(req.Area, c)
	case "provision":
		desc, err = s.Sim.ProvisionArea(req.Area, req.Quantity)
	case "forbid":
		desc, err = s.Sim.ForbidStock(req.Area, req.Quantity)
	default:
		http.Error(w, "unknown intervention type (use: till, clear, provision, forbid)", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"success": true, "details": desc})
}

// handleStream upgrades to a websocket and pushes events as JSON text
// messages. Requires the relay key and limits concurrent connections.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	if bearerToken(r) != s.RelayKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if s.streamConns.Add(1) > maxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before catch-up so nothing emitted in between is lost.
	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	for _, e := range s.Sim.RecentEvents(catchUpEvents) {
		if err := writeEvent(conn, e); err != nil {
			return
		}
	}
	slog.Info("stream client connected", "sub_id", subID)

	// Reader: only control frames are expected; any read error ends the session.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(conn, e); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e engine.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := conn.WriteJSON(e)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		slog.Debug("stream write failed", "error", err)
	}
	return err
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
