package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/riskwatch/backend/internal/models"
)

// ConfigError marks a rule whose condition_config cannot be evaluated. It is
// reported into the cycle report and the rule is skipped; it must never be
// confused with "condition not triggered".
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "condition config: " + e.Reason }

// EvalResult is the outcome of evaluating one condition against a value.
type EvalResult struct {
	Triggered bool
	Threshold *float64 // scalar reference when the condition has one (threshold, change_rate)
	Display   string   // reference text for rendered messages, e.g. "10000000" or "0.2-0.8"
}

// defaultChangeRatePeriod is the lookback window in minutes when a
// change_rate config omits "period".
const defaultChangeRatePeriod = 60

type thresholdConfig struct {
	Operator  string   `json:"operator"`
	Threshold *float64 `json:"threshold"`
}

type rangeConfig struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type changeRateConfig struct {
	Period    int      `json:"period"` // minutes
	Threshold *float64 `json:"threshold"`
}

type trendConfig struct {
	Direction   string `json:"direction"`
	Consecutive int    `json:"consecutive"`
}

// Evaluate applies a condition to the latest value of a metric. history holds
// recent samples oldest-first and is only consulted by change_rate and trend.
// Pure: no I/O, no side effects.
func Evaluate(value float64, history []models.MetricData, conditionType, configJSON string) (EvalResult, error) {
	switch conditionType {
	case models.ConditionThreshold:
		return evalThreshold(value, configJSON)
	case models.ConditionRange:
		return evalRange(value, configJSON)
	case models.ConditionChangeRate:
		return evalChangeRate(value, history, configJSON)
	case models.ConditionTrend:
		return evalTrend(history, configJSON)
	case models.ConditionCombine:
		// Accepted by the rule schema but has no evaluation semantics yet.
		return EvalResult{}, &ConfigError{Reason: "combine conditions are not supported"}
	default:
		return EvalResult{}, &ConfigError{Reason: "unknown condition type: " + conditionType}
	}
}

// evalThreshold compares value against a single scalar. The == operator is an
// exact float comparison; fragile for computed metrics, but the operator is
// chosen by the rule author.
func evalThreshold(value float64, configJSON string) (EvalResult, error) {
	var cfg thresholdConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return EvalResult{}, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.Threshold == nil {
		return EvalResult{}, &ConfigError{Reason: "threshold is required"}
	}
	op := cfg.Operator
	if op == "" {
		op = ">"
	}
	th := *cfg.Threshold
	var triggered bool
	switch op {
	case ">":
		triggered = value > th
	case ">=":
		triggered = value >= th
	case "<":
		triggered = value < th
	case "<=":
		triggered = value <= th
	case "==":
		triggered = value == th
	default:
		return EvalResult{}, &ConfigError{Reason: "unknown operator: " + op}
	}
	return EvalResult{Triggered: triggered, Threshold: &th, Display: formatFloat(th)}, nil
}

// evalRange triggers when the value leaves [min, max]. A missing bound is
// open-ended.
func evalRange(value float64, configJSON string) (EvalResult, error) {
	var cfg rangeConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return EvalResult{}, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.Min == nil && cfg.Max == nil {
		return EvalResult{}, &ConfigError{Reason: "range needs min and/or max"}
	}
	min, max := math.Inf(-1), math.Inf(1)
	if cfg.Min != nil {
		min = *cfg.Min
	}
	if cfg.Max != nil {
		max = *cfg.Max
	}
	if min > max {
		return EvalResult{}, &ConfigError{Reason: "min is greater than max"}
	}
	out := value < min || value > max
	return EvalResult{Triggered: out, Display: formatFloat(min) + "-" + formatFloat(max)}, nil
}

// evalChangeRate computes the percent change between the latest value and the
// oldest sample inside the period window, and triggers when its magnitude
// reaches the threshold. Fewer than two samples in the window is treated like
// no data (the metric is too fresh), not a configuration fault.
func evalChangeRate(value float64, history []models.MetricData, configJSON string) (EvalResult, error) {
	var cfg changeRateConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return EvalResult{}, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	if cfg.Threshold == nil {
		return EvalResult{}, &ConfigError{Reason: "threshold is required"}
	}
	if cfg.Period < 0 {
		return EvalResult{}, &ConfigError{Reason: "period must be positive"}
	}
	th := *cfg.Threshold
	res := EvalResult{Threshold: &th, Display: fmt.Sprintf("±%s%%/%dm", formatFloat(th), changeRatePeriod(cfg.Period))}
	if len(history) < 2 {
		return res, nil
	}
	baseline := history[0].Value
	if baseline == 0 {
		// Rate from a zero baseline is undefined; any nonzero move triggers.
		res.Triggered = value != 0
		return res, nil
	}
	rate := (value - baseline) / math.Abs(baseline) * 100
	res.Triggered = math.Abs(rate) >= th
	return res, nil
}

// ChangeRatePeriod returns the lookback window in minutes for a change_rate
// config, applying the default when unset. The engine uses it to size the
// history query.
func ChangeRatePeriod(configJSON string) int {
	var cfg changeRateConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return defaultChangeRatePeriod
	}
	return changeRatePeriod(cfg.Period)
}

func changeRatePeriod(period int) int {
	if period <= 0 {
		return defaultChangeRatePeriod
	}
	return period
}

// evalTrend triggers when the last `consecutive` deltas over the most recent
// samples all move strictly in the configured direction. Plateaus break the
// run.
func evalTrend(history []models.MetricData, configJSON string) (EvalResult, error) {
	var cfg trendConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return EvalResult{}, &ConfigError{Reason: "invalid JSON: " + err.Error()}
	}
	dir := cfg.Direction
	if dir == "" {
		dir = "up"
	}
	if dir != "up" && dir != "down" {
		return EvalResult{}, &ConfigError{Reason: "direction must be up or down"}
	}
	n := cfg.Consecutive
	if n <= 0 {
		n = 3
	}
	res := EvalResult{Display: fmt.Sprintf("%d consecutive %s", n, dir)}
	if len(history) < n+1 {
		return res, nil
	}
	recent := history[len(history)-(n+1):]
	for i := 1; i < len(recent); i++ {
		delta := recent[i].Value - recent[i-1].Value
		if dir == "up" && delta <= 0 {
			return res, nil
		}
		if dir == "down" && delta >= 0 {
			return res, nil
		}
	}
	res.Triggered = true
	return res, nil
}

// ValidateRuleConfig checks that configJSON is usable for conditionType
// without evaluating it against real data. combine passes the schema check
// even though the evaluator rejects it at runtime.
func ValidateRuleConfig(conditionType, configJSON string) error {
	if conditionType == models.ConditionCombine {
		if !json.Valid([]byte(configJSON)) {
			return &ConfigError{Reason: "invalid JSON"}
		}
		return nil
	}
	_, err := Evaluate(0, nil, conditionType, configJSON)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
