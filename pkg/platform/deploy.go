// Package platform holds the concrete strategy backends: deploy webhooks,
// blueprint-driven config generation, and env-file reconciliation.
package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DeployHooks drives deployments through provider deploy hooks (Render and
// Netlify expose retry/rollback as plain webhook URLs).
type DeployHooks struct {
	RetryURL    string
	RollbackURL string

	client *http.Client
	logger *slog.Logger
}

// NewDeployHooks builds the webhook client. Empty URLs make the matching
// operation unavailable.
func NewDeployHooks(retryURL, rollbackURL string) *DeployHooks {
	return &DeployHooks{
		RetryURL:    retryURL,
		RollbackURL: rollbackURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      slog.Default().With("component", "platform.deploy"),
	}
}

// RetryLastDeploy triggers the retry hook.
func (d *DeployHooks) RetryLastDeploy(ctx context.Context) (map[string]any, error) {
	return d.post(ctx, "retry", d.RetryURL)
}

// RollbackLastDeploy triggers the rollback hook.
func (d *DeployHooks) RollbackLastDeploy(ctx context.Context) (map[string]any, error) {
	return d.post(ctx, "rollback", d.RollbackURL)
}

func (d *DeployHooks) post(ctx context.Context, op, url string) (map[string]any, error) {
	if url == "" {
		return nil, fmt.Errorf("platform: no %s hook configured", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("platform: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: %s hook: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("platform: %s hook returned %d", op, resp.StatusCode)
	}

	d.logger.Info("deploy hook fired", "op", op, "status", resp.StatusCode)
	return map[string]any{
		"hook_status": resp.StatusCode,
		"response":    strings.TrimSpace(string(body)),
	}, nil
}
