package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riskwatch/backend/internal/engine"
	"github.com/riskwatch/backend/internal/lifecycle"
	"github.com/riskwatch/backend/internal/models"
	"github.com/riskwatch/backend/internal/sender"
	"github.com/riskwatch/backend/internal/store"
)

func newTestScheduler(t *testing.T, interval time.Duration) (*Scheduler, *store.DB) {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	lm := lifecycle.NewManager(db.DB)
	disp := sender.NewDispatcher(db.DB, 1, time.Millisecond, time.Second, 2)
	eng := engine.New(db, lm, disp, 2)
	return New(eng, interval), db
}

func TestTriggerNowReturnsReport(t *testing.T) {
	s, db := newTestScheduler(t, time.Hour)

	rule := models.AlertRule{
		Code:            "r1",
		MetricCode:      "m",
		ConditionType:   models.ConditionThreshold,
		ConditionConfig: `{"operator":">","threshold":1}`,
		Enabled:         true,
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMetric(&models.MetricData{MetricCode: "m", DataTime: time.Now(), Value: 5}); err != nil {
		t.Fatal(err)
	}

	report, err := s.TriggerNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.RulesChecked != 1 || report.AlertsCreated != 1 {
		t.Fatalf("checked=%d created=%d", report.RulesChecked, report.AlertsCreated)
	}
}

func TestTriggerNowRejectsOverlap(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)

	s.running.Store(true)
	if _, err := s.TriggerNow(context.Background()); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("want ErrCycleRunning, got %v", err)
	}
	s.running.Store(false)

	if _, err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestTickSkipsWhileRunning(t *testing.T) {
	s, db := newTestScheduler(t, time.Hour)

	rule := models.AlertRule{
		Code:            "r1",
		MetricCode:      "m",
		ConditionType:   models.ConditionThreshold,
		ConditionConfig: `{"operator":">","threshold":1}`,
		CooldownMinutes: 0,
		Enabled:         true,
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMetric(&models.MetricData{MetricCode: "m", DataTime: time.Now(), Value: 5}); err != nil {
		t.Fatal(err)
	}

	s.running.Store(true)
	s.tick(context.Background())
	s.running.Store(false)

	var n int64
	db.Model(&models.AlertRecord{}).Count(&n)
	if n != 0 {
		t.Fatalf("records=%d, overlapping tick must not run a cycle", n)
	}
}

func TestStartRunsFirstCycleImmediately(t *testing.T) {
	s, db := newTestScheduler(t, time.Hour)

	rule := models.AlertRule{
		Code:            "r1",
		MetricCode:      "m",
		ConditionType:   models.ConditionThreshold,
		ConditionConfig: `{"operator":">","threshold":1}`,
		Enabled:         true,
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMetric(&models.MetricData{MetricCode: "m", DataTime: time.Now(), Value: 5}); err != nil {
		t.Fatal(err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var n int64
		db.Model(&models.AlertRecord{}).Count(&n)
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("first cycle did not run")
}

func TestStopWithoutStart(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)
	s.Stop() // must not block or panic
}

func TestStopIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)
	s.Start()
	s.Stop()
	s.Stop()
}
