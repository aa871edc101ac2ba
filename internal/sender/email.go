package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type emailConfig struct {
	SMTPHost    string   `json:"smtp_host"`
	SMTPPort    int      `json:"smtp_port"`
	Username    string   `json:"username"`
	Password    string   `json:"password"` // optional; empty skips AUTH
	FromAddress string   `json:"from_address"`
	ToAddresses []string `json:"to_addresses"`
}

func parseEmailConfig(configJSON string) (*emailConfig, error) {
	var cfg emailConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.SMTPHost == "" || cfg.SMTPPort == 0 {
		return nil, &ConfigError{Reason: "email requires smtp_host and smtp_port"}
	}
	if cfg.Username == "" {
		return nil, &ConfigError{Reason: "email requires username"}
	}
	if cfg.FromAddress == "" {
		return nil, &ConfigError{Reason: "email requires from_address"}
	}
	if len(cfg.ToAddresses) == 0 {
		return nil, &ConfigError{Reason: "email requires to_addresses"}
	}
	return &cfg, nil
}

// sendEmail delivers a plaintext message over SMTP. The context deadline is
// applied to the connection so a hung server counts as a failed attempt.
func sendEmail(ctx context.Context, configJSON, title, content string) error {
	cfg, err := parseEmailConfig(configJSON)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}
	c, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if cfg.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.FromAddress); err != nil {
		return err
	}
	for _, to := range cfg.ToAddresses {
		if err := c.Rcpt(to); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		cfg.FromAddress, strings.Join(cfg.ToAddresses, ","), title, content)
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
