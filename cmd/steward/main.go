// Command steward runs the autonomous soil steward for Tilth.
// It observes areas, triages renewal backlog against bone meal stock,
// and provisions stock via the admin intervention API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/tilth/internal/steward"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	dryRun := flag.Bool("dry-run", false, "decide but never act")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("WORLDSIM_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("WORLDSIM_ADMIN_KEY")
	intervalMin := envIntOrDefault("STEWARD_INTERVAL", 30)

	policy := steward.DefaultPolicy()
	policy.CostPerCell = envIntOrDefault("STEWARD_COST_PER_CELL", policy.CostPerCell)
	policy.MaxProvision = envIntOrDefault("STEWARD_MAX_PROVISION", policy.MaxProvision)
	policy.CooldownTicks = uint64(envIntOrDefault("STEWARD_COOLDOWN_TICKS", int(policy.CooldownTicks)))

	if adminKey == "" && !*dryRun {
		slog.Error("WORLDSIM_ADMIN_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalMin) * time.Minute
	slog.Info("Tilth steward starting",
		"api_url", apiURL,
		"interval", interval,
		"max_provision", policy.MaxProvision,
		"dry_run", *dryRun,
	)

	s := steward.New(apiURL, adminKey, policy, steward.LoadMemory(envOrDefault("STEWARD_MEMORY", "steward_memory.json")))
	s.DryRun = *dryRun

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wait for worldsim API to be ready before first cycle.
	slog.Info("waiting for worldsim API...")
	if err := waitForAPI(ctx, apiURL); err != nil {
		slog.Error("worldsim API not ready", "error", err)
		os.Exit(1)
	}

	runCycle(ctx, s)
	if *once {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCycle(ctx, s)
		case <-ctx.Done():
			slog.Info("shutting down")
			return
		}
	}
}

func runCycle(ctx context.Context, s *steward.Steward) {
	slog.Info("steward cycle starting")
	if _, err := s.RunCycle(ctx); err != nil {
		slog.Error("steward cycle failed", "error", err)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds, for at most five minutes.
func waitForAPI(ctx context.Context, apiURL string) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/status", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("worldsim API is ready")
				return nil
			}
		}
		slog.Info("worldsim not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
