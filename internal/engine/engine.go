// Package engine evaluates enabled alert rules against the latest metric
// values and turns triggered conditions into alert records plus channel
// notifications. One RunCycle call is one evaluation pass over all rules.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riskwatch/backend/internal/lifecycle"
	"github.com/riskwatch/backend/internal/models"
	"github.com/riskwatch/backend/internal/sender"
	"github.com/riskwatch/backend/internal/store"
	"gorm.io/gorm"
)

// RuleError is one failed rule inside a cycle report.
type RuleError struct {
	RuleCode string `json:"rule_code"`
	Error    string `json:"error"`
}

// CycleReport summarizes one evaluation cycle.
type CycleReport struct {
	CycleID       string      `json:"cycle_id"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
	RulesChecked  int         `json:"rules_checked"`
	AlertsCreated int         `json:"alerts_created"`
	Errors        []RuleError `json:"errors,omitempty"`
}

// Engine orchestrates rule evaluation. Per-rule failures are isolated into
// the cycle report; only a dead store at cycle start fails the cycle itself.
type Engine struct {
	db         *store.DB
	lifecycle  *lifecycle.Manager
	dispatcher *sender.Dispatcher
	workers    int

	// ruleLocks serializes cooldown-check+create per rule so two workers (or
	// an overlapping on-demand trigger) can never double-create one alert.
	mu        sync.Mutex
	ruleLocks map[uint]*sync.Mutex
}

// New builds an engine. workers bounds per-rule concurrency inside a cycle;
// values below 1 fall back to 4.
func New(db *store.DB, lm *lifecycle.Manager, d *sender.Dispatcher, workers int) *Engine {
	if workers < 1 {
		workers = 4
	}
	return &Engine{
		db:         db,
		lifecycle:  lm,
		dispatcher: d,
		workers:    workers,
		ruleLocks:  make(map[uint]*sync.Mutex),
	}
}

func (e *Engine) lockRule(id uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.ruleLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.ruleLocks[id] = l
	}
	return l
}

// RunCycle evaluates all enabled rules once. Rules are distributed over a
// bounded worker pool; each rule's outcome (created alert, error, skip) lands
// in the returned report. A connectivity failure before any work begins
// aborts the cycle with nothing persisted.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		CycleID:   uuid.New().String(),
		StartedAt: time.Now(),
	}

	if err := e.db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store unreachable: %w", err)
	}
	rules, err := e.db.ListEnabledRules()
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	report.RulesChecked = len(rules)

	jobs := make(chan models.AlertRule)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rule := range jobs {
				created, err := e.checkRule(ctx, &rule)
				mu.Lock()
				if err != nil {
					report.Errors = append(report.Errors, RuleError{RuleCode: rule.Code, Error: err.Error()})
				}
				if created {
					report.AlertsCreated++
				}
				mu.Unlock()
			}
		}()
	}
	for _, rule := range rules {
		select {
		case jobs <- rule:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = time.Now()
	log.Printf("[engine] cycle %s: %d rules checked, %d alerts created, %d errors",
		report.CycleID, report.RulesChecked, report.AlertsCreated, len(report.Errors))
	return report, ctx.Err()
}

// checkRule runs one rule end to end: fetch value, evaluate, cooldown-gated
// create, dispatch. Returns whether an alert was created.
func (e *Engine) checkRule(ctx context.Context, rule *models.AlertRule) (bool, error) {
	latest, err := e.db.LatestMetric(rule.MetricCode)
	if err != nil {
		return false, fmt.Errorf("fetch metric %s: %w", rule.MetricCode, err)
	}
	if latest == nil {
		// Expected for freshly configured rules; not a fault.
		log.Printf("[engine] rule %s: metric %s has no data, skipping", rule.Code, rule.MetricCode)
		return false, nil
	}

	history, err := e.ruleHistory(rule)
	if err != nil {
		return false, err
	}

	res, err := Evaluate(latest.Value, history, rule.ConditionType, rule.ConditionConfig)
	if err != nil {
		return false, err
	}
	if !res.Triggered {
		return false, nil
	}

	rec, err := e.createIfNotCooling(rule, latest.Value, res)
	if err != nil || rec == nil {
		return false, err
	}
	log.Printf("[engine] rule %s fired: value=%.4f severity=%s record=%d",
		rule.Code, latest.Value, rule.Severity, rec.ID)

	e.dispatch(ctx, rule, rec)
	return true, nil
}

// ruleHistory loads the sample window for conditions that need one.
func (e *Engine) ruleHistory(rule *models.AlertRule) ([]models.MetricData, error) {
	switch rule.ConditionType {
	case models.ConditionChangeRate:
		period := ChangeRatePeriod(rule.ConditionConfig)
		return e.db.RecentMetrics(rule.MetricCode, time.Duration(period)*time.Minute)
	case models.ConditionTrend:
		// A day of samples comfortably covers any realistic consecutive-run length.
		return e.db.RecentMetrics(rule.MetricCode, 24*time.Hour)
	default:
		return nil, nil
	}
}

// createIfNotCooling checks the cooldown window and creates the record inside
// one transaction, serialized per rule. Returns nil record when suppressed.
func (e *Engine) createIfNotCooling(rule *models.AlertRule, value float64, res EvalResult) (*models.AlertRecord, error) {
	l := e.lockRule(rule.ID)
	l.Lock()
	defer l.Unlock()

	var rec *models.AlertRecord
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if rule.CooldownMinutes > 0 {
			since := time.Now().Add(-time.Duration(rule.CooldownMinutes) * time.Minute)
			existing, err := store.FindActiveAlert(tx, rule.ID, rule.MetricCode, since)
			if err != nil {
				return err
			}
			if existing != nil {
				log.Printf("[engine] rule %s in cooldown (record %d), skipping", rule.Code, existing.ID)
				return nil
			}
		}
		created, err := e.lifecycle.Create(tx, rule, value, res.Threshold, res.Display)
		if err != nil {
			return err
		}
		rec = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return rec, nil
}

// dispatch fans the alert out to the rule's channels and writes the aggregate
// outcome back onto the record. notification_sent is written only after every
// attempted channel has resolved.
func (e *Engine) dispatch(ctx context.Context, rule *models.AlertRule, rec *models.AlertRecord) {
	codes := parseChannelCodes(rule.NotifyChannels)
	if len(codes) == 0 {
		return
	}
	title := fmt.Sprintf("[%s] %s", rec.Severity, rule.Name)
	level := sender.LevelForSeverity(rec.Severity)
	outcomes := e.dispatcher.Dispatch(ctx, title, rec.Message, level, codes)
	sent := sender.AnySuccess(outcomes)
	if err := e.lifecycle.MarkNotified(rec.ID, sent, sender.MarshalOutcomes(outcomes)); err != nil {
		log.Printf("[engine] record %d: mark notified failed: %v", rec.ID, err)
	}
}

// parseChannelCodes decodes the rule's notify_channels JSON array; malformed
// or empty input means no channels.
func parseChannelCodes(raw string) []string {
	if raw == "" {
		return nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil
	}
	return codes
}
