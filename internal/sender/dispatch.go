package sender

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/riskwatch/backend/internal/models"
	"gorm.io/gorm"
)

// Outcome is the final result for one channel after all attempts.
type Outcome struct {
	ChannelCode string `json:"channel_code"`
	Success     bool   `json:"success"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
}

// Dispatcher fans one message out to the channels a rule names. Channels are
// tried independently and concurrently: one channel exhausting its retries
// never blocks or consumes another channel's attempt budget. The overall
// concurrency is bounded so a burst of alerts cannot overwhelm downstream
// webhook endpoints.
type Dispatcher struct {
	db         *gorm.DB
	MaxRetry   int           // attempts per channel
	RetryDelay time.Duration // fixed delay between attempts
	Timeout    time.Duration // per-attempt deadline
	sem        chan struct{}
}

// NewDispatcher builds a dispatcher; zero values fall back to defaults
// (3 attempts, 5s delay, 10s attempt timeout, 8 concurrent sends).
func NewDispatcher(db *gorm.DB, maxRetry int, retryDelay, timeout time.Duration, maxConcurrent int) *Dispatcher {
	if maxRetry <= 0 {
		maxRetry = 3
	}
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Dispatcher{
		db:         db,
		MaxRetry:   maxRetry,
		RetryDelay: retryDelay,
		Timeout:    timeout,
		sem:        make(chan struct{}, maxConcurrent),
	}
}

// Dispatch sends title/content to every named channel and waits for all
// outcomes. The returned slice preserves the input channel order; every code
// appears exactly once, attempted or not.
func (d *Dispatcher) Dispatch(ctx context.Context, title, content, level string, channelCodes []string) []Outcome {
	outcomes := make([]Outcome, len(channelCodes))
	var wg sync.WaitGroup
	for i, code := range channelCodes {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			outcomes[i] = d.sendChannel(ctx, code, title, content, level)
		}(i, code)
	}
	wg.Wait()
	return outcomes
}

// sendChannel resolves one channel by code and runs its attempt loop.
func (d *Dispatcher) sendChannel(ctx context.Context, code, title, content, level string) Outcome {
	out := Outcome{ChannelCode: code}

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		out.Error = ctx.Err().Error()
		return out
	}

	var ch models.NotifyChannel
	err := d.db.Where("code = ? AND status = ?", code, "active").First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		out.Error = "channel not found or inactive"
		return out
	}
	if err != nil {
		out.Error = err.Error()
		return out
	}

	// Misconfiguration is a hard failure: fail before consuming a retry slot.
	if err := ValidateConfig(ch.ChannelType, ch.Config); err != nil {
		log.Printf("[dispatch] channel %s misconfigured: %v", code, err)
		out.Error = err.Error()
		return out
	}

	var lastErr error
	for attempt := 1; attempt <= d.MaxRetry; attempt++ {
		out.Attempts = attempt
		attemptCtx, cancel := context.WithTimeout(ctx, d.Timeout)
		lastErr = Send(attemptCtx, ch.ChannelType, ch.Config, title, content, level)
		cancel()
		if lastErr == nil {
			out.Success = true
			return out
		}
		var cfgErr *ConfigError
		if errors.As(lastErr, &cfgErr) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < d.MaxRetry {
			log.Printf("[dispatch] channel %s attempt %d/%d failed: %v; retrying in %v",
				code, attempt, d.MaxRetry, lastErr, d.RetryDelay)
			if !sleepCtx(ctx, d.RetryDelay) {
				break
			}
		}
	}
	log.Printf("[dispatch] channel %s failed after %d attempts: %v", code, out.Attempts, lastErr)
	out.Error = lastErr.Error()
	return out
}

// SendOnce validates and sends a single message through an already loaded
// channel, without retries. Used by the channel test endpoint.
func (d *Dispatcher) SendOnce(ctx context.Context, ch *models.NotifyChannel, title, content, level string) error {
	if err := ValidateConfig(ch.ChannelType, ch.Config); err != nil {
		return err
	}
	attemptCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	return Send(attemptCtx, ch.ChannelType, ch.Config, title, content, level)
}

// AnySuccess reports whether at least one channel outcome succeeded.
func AnySuccess(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Success {
			return true
		}
	}
	return false
}

// MarshalOutcomes serializes outcomes for the alert record's
// notification_channels column.
func MarshalOutcomes(outcomes []Outcome) string {
	b, err := json.Marshal(outcomes)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// sleepCtx waits for the delay or until the context is canceled. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
