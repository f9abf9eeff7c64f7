package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tilth/internal/catalog"
	"github.com/talgya/tilth/internal/config"
	"github.com/talgya/tilth/internal/engine"
	"github.com/talgya/tilth/internal/snapshot"
	"github.com/talgya/tilth/internal/world"
)

const (
	testAdminKey = "admin-secret"
	testRelayKey = "relay-secret"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.World.Areas = 2
	cfg.World.Radius = 6
	cfg.World.InitialTilled = 4
	cat := catalog.Generate("SoilTilled", "SoilTilled", []string{"Rich", "Weathered", "Depleted"}, 70, 170)
	sim := engine.NewSimulation(cfg, cat)
	sim.GenerateAreas()

	s := &Server{
		Sim:      sim,
		Eng:      engine.NewEngine(cfg.CycleEveryTicks, cfg.DayTicks),
		AdminKey: testAdminKey,
		RelayKey: testRelayKey,
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func tillableHex(t *testing.T, sim *engine.Simulation, area int) world.HexCoord {
	t.Helper()
	for q := -6; q <= 6; q++ {
		for r := -6; r <= 6; r++ {
			v, err := sim.HexDetail(area, world.HexCoord{Q: q, R: r})
			if err == nil && v.Tillable {
				return v.Coord
			}
		}
	}
	t.Fatal("no tillable hex in area")
	return world.HexCoord{}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func post(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatusAndAreas(t *testing.T) {
	_, srv := newTestServer(t)

	var status map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/status", &status))
	assert.Equal(t, "Tilth", status["name"])
	assert.Contains(t, status, "catalog_digest")
	assert.Equal(t, 1.0, status["speed"])

	var areas []engine.AreaSummary
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/areas", &areas))
	require.Len(t, areas, 2)
	assert.Positive(t, areas[0].Counts.Pending)
	assert.LessOrEqual(t, areas[0].Counts.Pending, 4)
}

func TestAreaDetail(t *testing.T) {
	_, srv := newTestServer(t)

	var d engine.AreaDetail
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/area/1", &d))
	assert.Equal(t, 1, d.ID)
	assert.Equal(t, 6, d.Radius)
	assert.Len(t, d.Pending, d.Counts.Pending)
	assert.Nil(t, d.NextWakeTick)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/area/42", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/area/north", nil))
}

func TestHexDetail(t *testing.T) {
	s, srv := newTestServer(t)
	c := tillableHex(t, s.Sim, 1)

	var v engine.HexView
	url := fmt.Sprintf("%s/api/v1/map/1/%d/%d", srv.URL, c.Q, c.R)
	require.Equal(t, http.StatusOK, getJSON(t, url, &v))
	assert.Equal(t, c, v.Coord)
	assert.Equal(t, "raw", v.Lifecycle)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/map/1/0", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/map/1/x/0", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/map/1/99/99", nil))
}

func TestInterventionAuth(t *testing.T) {
	s, srv := newTestServer(t)
	body := InterventionRequest{Type: "provision", Area: 1, Quantity: 3}

	assert.Equal(t, http.StatusUnauthorized, post(t, srv.URL+"/api/v1/intervention", "", body).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post(t, srv.URL+"/api/v1/intervention", "wrong", body).StatusCode)

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, post(t, srv.URL+"/api/v1/intervention", testAdminKey, body).StatusCode)
}

func TestInterventions(t *testing.T) {
	s, srv := newTestServer(t)
	c := tillableHex(t, s.Sim, 1)
	url := srv.URL + "/api/v1/intervention"

	resp := post(t, url, testAdminKey, InterventionRequest{Type: "till", Area: 1, Q: c.Q, R: c.R})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Success bool   `json:"success"`
		Details string `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)

	v, err := s.Sim.HexDetail(1, c)
	require.NoError(t, err)
	assert.Equal(t, "pending", v.Lifecycle)

	assert.Equal(t, http.StatusBadRequest,
		post(t, url, testAdminKey, InterventionRequest{Type: "till", Area: 1, Q: c.Q, R: c.R}).StatusCode,
		"already tilled")
	assert.Equal(t, http.StatusOK,
		post(t, url, testAdminKey, InterventionRequest{Type: "clear", Area: 1, Q: c.Q, R: c.R}).StatusCode)
	assert.Equal(t, http.StatusOK,
		post(t, url, testAdminKey, InterventionRequest{Type: "forbid", Area: 1, Quantity: 2}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		post(t, url, testAdminKey, InterventionRequest{Type: "provision", Area: 1}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		post(t, url, testAdminKey, InterventionRequest{Type: "flood", Area: 1}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		post(t, url, testAdminKey, InterventionRequest{Type: "provision", Quantity: 1}).StatusCode)
}

func TestInterventionRateLimit(t *testing.T) {
	s, _ := newTestServer(t)
	s.InterventionRate = 2
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := InterventionRequest{Type: "provision", Area: 2, Quantity: 1}
	url := srv.URL + "/api/v1/intervention"
	assert.Equal(t, http.StatusOK, post(t, url, testAdminKey, body).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, url, testAdminKey, body).StatusCode)
	resp := post(t, url, testAdminKey, body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestSnapshotEndpoint(t *testing.T) {
	s, srv := newTestServer(t)
	url := srv.URL + "/api/v1/snapshot"

	assert.Equal(t, http.StatusServiceUnavailable, post(t, url, testAdminKey, nil).StatusCode)

	s.SnapshotPath = filepath.Join(t.TempDir(), "world.snap")
	require.Equal(t, http.StatusOK, post(t, url, testAdminKey, nil).StatusCode)

	f, err := snapshot.ReadFile(s.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Header.Areas)
	assert.Len(t, f.World.Areas, 2)
}

func TestSpeed(t *testing.T) {
	s, srv := newTestServer(t)
	url := srv.URL + "/api/v1/speed"

	assert.Equal(t, http.StatusOK, post(t, url, testAdminKey, map[string]float64{"speed": 4}).StatusCode)
	assert.Equal(t, 4.0, s.Eng.Speed())
	assert.Equal(t, http.StatusBadRequest, post(t, url, testAdminKey, map[string]float64{"speed": -1}).StatusCode)
}

func streamURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
}

func TestStreamRequiresRelayKey(t *testing.T) {
	_, srv := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(streamURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamDeliversEvents(t *testing.T) {
	s, srv := newTestServer(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testRelayKey)
	conn, _, err := websocket.DefaultDialer.Dial(streamURL(srv), header)
	require.NoError(t, err)
	defer conn.Close()

	_, err = s.Sim.ProvisionArea(1, 5)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var e engine.Event
		require.NoError(t, conn.ReadJSON(&e))
		if e.Category == "intervention" && e.Area == 1 {
			assert.Contains(t, e.Description, "5 bone meal")
			return
		}
	}
}
