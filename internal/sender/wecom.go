package sender

import (
	"context"
	"encoding/json"
	"fmt"
)

// wecomAPIBase is overridable in tests.
var wecomAPIBase = "https://qyapi.weixin.qq.com"

type wecomConfig struct {
	Key string `json:"key"`
}

func parseWecomConfig(configJSON string) (*wecomConfig, error) {
	var cfg wecomConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.Key == "" {
		return nil, &ConfigError{Reason: "wecom requires key"}
	}
	return &cfg, nil
}

// sendWecom posts a markdown message to an enterprise WeChat group robot.
func sendWecom(ctx context.Context, configJSON, title, content string) error {
	cfg, err := parseWecomConfig(configJSON)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/cgi-bin/webhook/send?key=%s", wecomAPIBase, cfg.Key)
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]interface{}{
			"content":        fmt.Sprintf("**%s**\n\n%s", title, content),
			"mentioned_list": []string{},
		},
	}
	body, err := postJSON(ctx, "POST", url, nil, payload)
	if err != nil {
		return err
	}
	var resp struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.ErrCode != 0 {
		return fmt.Errorf("wecom api error: errcode=%d errmsg=%s", resp.ErrCode, resp.ErrMsg)
	}
	return nil
}
