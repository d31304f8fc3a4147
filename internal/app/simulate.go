package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SimulateAttack calls a running instance's POST /api/admin/simulate-attack,
// letting an operator without dashboard access rehearse the defense
// pipeline from the CLI.
func (a *App) SimulateAttack(ctx context.Context) (map[string]interface{}, error) {
	return a.postAdmin(ctx, "/api/admin/simulate-attack")
}

// ResetAMM calls a running instance's POST /api/admin/reset-amm,
// triggering the restore sequence out of band from the normal
// pause-then-restore cycle.
func (a *App) ResetAMM(ctx context.Context) (map[string]interface{}, error) {
	return a.postAdmin(ctx, "/api/admin/reset-amm")
}

func (a *App) postAdmin(ctx context.Context, path string) (map[string]interface{}, error) {
	url := a.apiBaseURL() + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach running instance at %s: %w", a.apiBaseURL(), err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode admin response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return body, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return body, nil
}
