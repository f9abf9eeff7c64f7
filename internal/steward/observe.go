// Package steward implements the autonomous soil steward.
// It observes areas via the API, triages renewal backlog against stock,
// and provisions bone meal via the admin intervention endpoint.
package steward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Observation holds all data collected during an observation cycle.
type Observation struct {
	Status StatusInfo `json:"status"`
	Areas  []AreaInfo `json:"areas"`
}

// StatusInfo mirrors GET /api/v1/status.
type StatusInfo struct {
	Name    string  `json:"name"`
	Tick    uint64  `json:"tick"`
	SimTime string  `json:"sim_time"`
	Speed   float64 `json:"speed"`
	Running bool    `json:"running"`
	Catalog string  `json:"catalog_digest"`
}

// AreaInfo mirrors items from GET /api/v1/areas.
type AreaInfo struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Stock      int     `json:"stock"`
	Forbidden  int     `json:"forbidden"`
	OpenOrders int     `json:"open_orders"`
	Budget     int     `json:"renewal_budget"`
	Yield      float64 `json:"yield"`
	Counts     struct {
		Pending   int `json:"pending"`
		Rich      int `json:"rich"`
		Weathered int `json:"weathered"`
		Depleted  int `json:"depleted"`
	} `json:"counts"`
}

// Fields is every soil cell the area tracks.
func (a AreaInfo) Fields() int {
	return a.Counts.Pending + a.Counts.Rich + a.Counts.Weathered + a.Counts.Depleted
}

// Observer fetches world state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status and areas.
func (o *Observer) Observe(ctx context.Context) (*Observation, error) {
	obs := &Observation{}
	if err := o.fetchJSON(ctx, "/api/v1/status", &obs.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/areas", &obs.Areas); err != nil {
		return nil, fmt.Errorf("fetch areas: %w", err)
	}
	return obs, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
