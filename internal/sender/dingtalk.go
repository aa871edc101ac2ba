package sender

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// dingtalkAPIBase is overridable in tests.
var dingtalkAPIBase = "https://oapi.dingtalk.com"

type dingtalkConfig struct {
	AccessToken string `json:"access_token"`
	Secret      string `json:"secret"` // optional; enables HMAC-SHA256 signed URLs
}

func parseDingtalkConfig(configJSON string) (*dingtalkConfig, error) {
	var cfg dingtalkConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.AccessToken == "" {
		return nil, &ConfigError{Reason: "dingtalk requires access_token"}
	}
	return &cfg, nil
}

// dingtalkSign computes the robot signature: HMAC-SHA256 of
// "<timestampMillis>\n<secret>" keyed by the secret, base64 then URL encoded.
func dingtalkSign(secret string, timestampMillis int64) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestampMillis, secret)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stringToSign))
	return url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

// sendDingtalk posts a markdown message to a DingTalk group robot, signing
// the webhook URL when a secret is configured.
func sendDingtalk(ctx context.Context, configJSON, title, content string) error {
	cfg, err := parseDingtalkConfig(configJSON)
	if err != nil {
		return err
	}
	webhookURL := fmt.Sprintf("%s/robot/send?access_token=%s", dingtalkAPIBase, cfg.AccessToken)
	if cfg.Secret != "" {
		ts := time.Now().UnixMilli()
		webhookURL += fmt.Sprintf("&timestamp=%d&sign=%s", ts, dingtalkSign(cfg.Secret, ts))
	}
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]interface{}{
			"title": title,
			"text":  fmt.Sprintf("**%s**\n\n%s", title, content),
		},
	}
	body, err := postJSON(ctx, "POST", webhookURL, nil, payload)
	if err != nil {
		return err
	}
	var resp struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.ErrCode != 0 {
		return fmt.Errorf("dingtalk api error: errcode=%d errmsg=%s", resp.ErrCode, resp.ErrMsg)
	}
	return nil
}
