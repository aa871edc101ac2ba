package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLevelForSeverity(t *testing.T) {
	for sev, want := range map[string]string{
		"P1": LevelError,
		"P2": LevelError,
		"P3": LevelWarning,
		"P4": LevelInfo,
		"P7": LevelInfo,
		"":   LevelInfo,
	} {
		if got := LevelForSeverity(sev); got != want {
			t.Errorf("LevelForSeverity(%q)=%q, want %q", sev, got, want)
		}
	}
}

func TestValidateConfigRequiredKeys(t *testing.T) {
	cases := []struct {
		channelType string
		config      string
		ok          bool
	}{
		{"lark", `{"webhook_url":"https://example.com/hook"}`, true},
		{"lark", `{}`, false},
		{"wecom", `{"key":"abc"}`, true},
		{"wecom", `{}`, false},
		{"dingtalk", `{"access_token":"tok"}`, true},
		{"dingtalk", `{"secret":"only"}`, false},
		{"telegram", `{"bot_token":"t","chat_id":"1"}`, true},
		{"telegram", `{"bot_token":"t"}`, false},
		{"webhook", `{"url":"https://example.com"}`, true},
		{"webhook", `{"method":"PUT"}`, false},
		{"email", `{"smtp_host":"mail","smtp_port":587,"username":"u","from_address":"a@b","to_addresses":["c@d"]}`, true},
		{"email", `{"smtp_host":"mail","smtp_port":587}`, false},
		{"sms", `{}`, false},
		{"lark", `not json`, false},
	}
	for _, tc := range cases {
		err := ValidateConfig(tc.channelType, tc.config)
		if tc.ok && err != nil {
			t.Errorf("%s %s: unexpected error %v", tc.channelType, tc.config, err)
		}
		if !tc.ok {
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("%s %s: want ConfigError, got %v", tc.channelType, tc.config, err)
			}
		}
	}
}

func TestSendLark(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		fmt.Fprint(w, `{"code":0,"msg":"success"}`)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"webhook_url":"%s"}`, srv.URL)
	if err := Send(context.Background(), "lark", cfg, "VaR breach", "details", LevelError); err != nil {
		t.Fatal(err)
	}
	if got["msg_type"] != "interactive" {
		t.Errorf("msg_type=%v", got["msg_type"])
	}
	card := got["card"].(map[string]interface{})
	header := card["header"].(map[string]interface{})
	if header["template"] != "red" {
		t.Errorf("error level should render red header, got %v", header["template"])
	}
}

func TestSendLarkAPIError(t *testing.T) {
	// Lark reports failure in the body with HTTP 200.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":19001,"msg":"param invalid"}`)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"webhook_url":"%s"}`, srv.URL)
	err := Send(context.Background(), "lark", cfg, "t", "c", LevelInfo)
	if err == nil || !strings.Contains(err.Error(), "19001") {
		t.Fatalf("want api error, got %v", err)
	}
}

func TestSendWecom(t *testing.T) {
	var gotPath string
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		fmt.Fprint(w, `{"errcode":0,"errmsg":"ok"}`)
	}))
	defer srv.Close()

	orig := wecomAPIBase
	wecomAPIBase = srv.URL
	defer func() { wecomAPIBase = orig }()

	if err := Send(context.Background(), "wecom", `{"key":"k123"}`, "Title", "Body", LevelWarning); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotPath, "key=k123") {
		t.Errorf("key missing from URL: %s", gotPath)
	}
	md := got["markdown"].(map[string]interface{})
	if !strings.HasPrefix(md["content"].(string), "**Title**") {
		t.Errorf("markdown content: %v", md["content"])
	}
}

func TestSendDingtalkSignsURLWhenSecretSet(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"errcode":0}`)
	}))
	defer srv.Close()

	orig := dingtalkAPIBase
	dingtalkAPIBase = srv.URL
	defer func() { dingtalkAPIBase = orig }()

	if err := Send(context.Background(), "dingtalk", `{"access_token":"tok"}`, "t", "c", LevelInfo); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gotQuery, "sign=") {
		t.Errorf("unsigned config produced a signature: %s", gotQuery)
	}

	if err := Send(context.Background(), "dingtalk", `{"access_token":"tok","secret":"s"}`, "t", "c", LevelInfo); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotQuery, "timestamp=") || !strings.Contains(gotQuery, "sign=") {
		t.Errorf("signed config missing timestamp/sign: %s", gotQuery)
	}
}

func TestDingtalkSignDeterministic(t *testing.T) {
	a := dingtalkSign("secret", 1700000000000)
	b := dingtalkSign("secret", 1700000000000)
	if a != b {
		t.Error("same inputs must sign identically")
	}
	if a == dingtalkSign("other", 1700000000000) {
		t.Error("different secrets must sign differently")
	}
	if a == dingtalkSign("secret", 1700000000001) {
		t.Error("different timestamps must sign differently")
	}
}

func TestSendTelegram(t *testing.T) {
	var gotPath string
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	orig := telegramAPIBase
	telegramAPIBase = srv.URL
	defer func() { telegramAPIBase = orig }()

	if err := Send(context.Background(), "telegram", `{"bot_token":"bt","chat_id":"42"}`, "T", "C", LevelInfo); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/botbt/sendMessage" {
		t.Errorf("path=%s", gotPath)
	}
	if got["chat_id"] != "42" || got["parse_mode"] != "Markdown" {
		t.Errorf("payload: %v", got)
	}
}

func TestSendWebhook(t *testing.T) {
	var gotMethod, gotHeader string
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Token")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"url":"%s","method":"PUT","headers":{"X-Token":"abc"}}`, srv.URL)
	if err := Send(context.Background(), "webhook", cfg, "T", "C", LevelWarning); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPut || gotHeader != "abc" {
		t.Errorf("method=%s header=%s", gotMethod, gotHeader)
	}
	if got["title"] != "T" || got["level"] != LevelWarning || got["timestamp"] == nil {
		t.Errorf("payload: %v", got)
	}
}

func TestSendWebhookNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`{"url":"%s"}`, srv.URL)
	err := Send(context.Background(), "webhook", cfg, "T", "C", LevelInfo)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("want status error, got %v", err)
	}
}
