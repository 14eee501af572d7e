package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

type queueStatus struct {
	Queued          int `json:"queued"`
	Running         int `json:"running"`
	HealthScore     int `json:"health_score"`
	EstimatedWaitMS int `json:"estimated_wait_ms"`
}

// Status queries a running server's queue snapshot. With --watch it
// polls every two seconds until interrupted.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	status, err := r.fetchStatus(ctx)
	if err != nil {
		return err
	}

	if err := r.renderStatus(status, cmd.Bool("json")); err != nil {
		return err
	}

	if !cmd.Bool("watch") {
		return nil
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			status, err := r.fetchStatus(ctx)
			if err != nil {
				return err
			}
			if err := r.renderStatus(status, cmd.Bool("json")); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) fetchStatus(ctx context.Context) (queueStatus, error) {
	cfg := r.config
	url := fmt.Sprintf("http://%s:%d/api/sort/status", cfg.Server.Host, cfg.Server.Port)

	var status queueStatus

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return status, fmt.Errorf("failed to build request: %w", err)
	}
	if cfg.Server.AuthToken != "" {
		req.Header.Set("X-Client-Token", cfg.Server.AuthToken)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("status request failed: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("failed to decode status: %w", err)
	}

	return status, nil
}

func (r *Runner) renderStatus(status queueStatus, asJSON bool) error {
	if asJSON {
		return r.writeJSON(status, true)
	}

	r.writePlain("Queue health: %d/100\n", status.HealthScore)
	r.writePlain("Queued: %d\n", status.Queued)
	r.writePlain("Running: %d\n", status.Running)
	r.writePlain("Estimated wait: %dms\n", status.EstimatedWaitMS)
	return nil
}
