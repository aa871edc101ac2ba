package sender

import (
	"context"
	"encoding/json"
	"fmt"
)

// telegramAPIBase is overridable in tests.
var telegramAPIBase = "https://api.telegram.org"

type telegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

func parseTelegramConfig(configJSON string) (*telegramConfig, error) {
	var cfg telegramConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, &ConfigError{Reason: "telegram requires bot_token and chat_id"}
	}
	return &cfg, nil
}

// sendTelegram posts a Markdown-parsed message via the bot API.
func sendTelegram(ctx context.Context, configJSON, title, content string) error {
	cfg, err := parseTelegramConfig(configJSON)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, cfg.BotToken)
	payload := map[string]interface{}{
		"chat_id":    cfg.ChatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", title, content),
		"parse_mode": "Markdown",
	}
	body, err := postJSON(ctx, "POST", url, nil, payload)
	if err != nil {
		return err
	}
	var resp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && !resp.OK {
		return fmt.Errorf("telegram api error: %s", resp.Description)
	}
	return nil
}
