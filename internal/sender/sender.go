// Package sender delivers alert notifications to heterogeneous channels.
// Each channel type has its own payload format and transport; Dispatch fans
// out to all configured channels with independent bounded retries.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Message levels used for payload styling (card colors etc.).
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// ConfigError marks a channel whose config is missing required keys or is not
// valid JSON. Hard failure: retrying a misconfiguration wastes attempts, so
// it is detected before any retry slot is consumed.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "channel config: " + e.Reason }

// LevelForSeverity maps alert severity tiers onto message levels:
// P1/P2 render as error, P3 as warning, everything else as info.
func LevelForSeverity(severity string) string {
	switch severity {
	case "P1", "P2":
		return LevelError
	case "P3":
		return LevelWarning
	default:
		return LevelInfo
	}
}

// ValidateConfig parses the channel config and checks the required keys for
// its type without sending anything.
func ValidateConfig(channelType, configJSON string) error {
	switch channelType {
	case "lark":
		_, err := parseLarkConfig(configJSON)
		return err
	case "wecom":
		_, err := parseWecomConfig(configJSON)
		return err
	case "email":
		_, err := parseEmailConfig(configJSON)
		return err
	case "dingtalk":
		_, err := parseDingtalkConfig(configJSON)
		return err
	case "telegram":
		_, err := parseTelegramConfig(configJSON)
		return err
	case "webhook":
		_, err := parseWebhookConfig(configJSON)
		return err
	default:
		return &ConfigError{Reason: "unsupported channel type: " + channelType}
	}
}

// Send delivers one message through a channel of the given type. Exactly one
// attempt; the Dispatcher owns the retry policy. The context bounds the whole
// attempt including the network call.
func Send(ctx context.Context, channelType, configJSON, title, content, level string) error {
	switch channelType {
	case "lark":
		return sendLark(ctx, configJSON, title, content, level)
	case "wecom":
		return sendWecom(ctx, configJSON, title, content)
	case "email":
		return sendEmail(ctx, configJSON, title, content)
	case "dingtalk":
		return sendDingtalk(ctx, configJSON, title, content)
	case "telegram":
		return sendTelegram(ctx, configJSON, title, content)
	case "webhook":
		return sendWebhook(ctx, configJSON, title, content, level)
	default:
		return &ConfigError{Reason: "unsupported channel type: " + channelType}
	}
}

// httpClient is shared by all webhook-style senders. No client timeout;
// per-attempt deadlines come from the caller's context.
var httpClient = &http.Client{}

// postJSON marshals payload and sends it with the given method, returning an
// error on non-2xx responses. Response body is returned for senders that need
// to inspect API-level result codes.
func postJSON(ctx context.Context, method, url string, headers map[string]string, payload interface{}) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(body))
	}
	return body, nil
}
