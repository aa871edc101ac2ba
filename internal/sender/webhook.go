package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type webhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`  // optional, default POST
	Headers map[string]string `json:"headers"` // optional
}

func parseWebhookConfig(configJSON string) (*webhookConfig, error) {
	var cfg webhookConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.URL == "" {
		return nil, &ConfigError{Reason: "webhook requires url"}
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	return &cfg, nil
}

// sendWebhook delivers a generic JSON body to an arbitrary endpoint with the
// configured method and headers.
func sendWebhook(ctx context.Context, configJSON, title, content, level string) error {
	cfg, err := parseWebhookConfig(configJSON)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"title":     title,
		"content":   content,
		"level":     level,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	_, err = postJSON(ctx, cfg.Method, cfg.URL, cfg.Headers, payload)
	return err
}
