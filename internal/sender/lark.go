package sender

import (
	"context"
	"encoding/json"
	"fmt"
)

type larkConfig struct {
	WebhookURL string `json:"webhook_url"`
}

func parseLarkConfig(configJSON string) (*larkConfig, error) {
	var cfg larkConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.WebhookURL == "" {
		return nil, &ConfigError{Reason: "lark requires webhook_url"}
	}
	return &cfg, nil
}

// larkHeaderColor maps message level onto the card header template.
func larkHeaderColor(level string) string {
	switch level {
	case LevelError:
		return "red"
	case LevelWarning:
		return "yellow"
	default:
		return "blue"
	}
}

// sendLark posts an interactive card. Lark returns HTTP 200 even on failure;
// the real result is the code field in the body.
func sendLark(ctx context.Context, configJSON, title, content, level string) error {
	cfg, err := parseLarkConfig(configJSON)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"config": map[string]interface{}{"wide_screen_mode": true},
			"header": map[string]interface{}{
				"template": larkHeaderColor(level),
				"title":    map[string]interface{}{"tag": "plain_text", "content": title},
			},
			"elements": []map[string]interface{}{
				{"tag": "div", "text": map[string]interface{}{"tag": "lark_md", "content": content}},
			},
		},
	}
	body, err := postJSON(ctx, "POST", cfg.WebhookURL, nil, payload)
	if err != nil {
		return err
	}
	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Code != 0 {
		return fmt.Errorf("lark api error: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}
