package sender

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskwatch/backend/internal/models"
	"github.com/riskwatch/backend/internal/store"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	return db.DB
}

func addChannel(t *testing.T, db *gorm.DB, code, channelType, config, status string) {
	t.Helper()
	ch := models.NotifyChannel{Code: code, Name: code, ChannelType: channelType, Config: config, Status: status}
	if err := db.Create(&ch).Error; err != nil {
		t.Fatal(err)
	}
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := newTestDB(t)
	addChannel(t, db, "flappy", "webhook", fmt.Sprintf(`{"url":"%s"}`, srv.URL), "active")

	d := NewDispatcher(db, 3, time.Millisecond, time.Second, 4)
	outcomes := d.Dispatch(context.Background(), "t", "c", LevelInfo, []string{"flappy"})

	if len(outcomes) != 1 {
		t.Fatalf("outcomes=%d", len(outcomes))
	}
	o := outcomes[0]
	if !o.Success || o.Attempts != 3 {
		t.Fatalf("success=%v attempts=%d, want success on 3rd", o.Success, o.Attempts)
	}
	if calls.Load() != 3 {
		t.Errorf("server calls=%d, want exactly 3", calls.Load())
	}
}

func TestDispatchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	db := newTestDB(t)
	addChannel(t, db, "dead", "webhook", fmt.Sprintf(`{"url":"%s"}`, srv.URL), "active")

	d := NewDispatcher(db, 3, time.Millisecond, time.Second, 4)
	outcomes := d.Dispatch(context.Background(), "t", "c", LevelInfo, []string{"dead"})

	o := outcomes[0]
	if o.Success || o.Attempts != 3 || o.Error == "" {
		t.Fatalf("outcome=%+v, want 3 failed attempts", o)
	}
	if calls.Load() != 3 {
		t.Errorf("server calls=%d, want exactly 3", calls.Load())
	}
}

func TestDispatchMisconfiguredChannelConsumesNoRetries(t *testing.T) {
	db := newTestDB(t)
	// written straight into the store, bypassing API validation
	addChannel(t, db, "broken", "webhook", `{"method":"POST"}`, "active")

	d := NewDispatcher(db, 3, time.Millisecond, time.Second, 4)
	outcomes := d.Dispatch(context.Background(), "t", "c", LevelInfo, []string{"broken"})

	o := outcomes[0]
	if o.Success || o.Attempts != 0 || o.Error == "" {
		t.Fatalf("outcome=%+v, want hard failure with zero attempts", o)
	}
}

func TestDispatchUnknownAndInactiveChannels(t *testing.T) {
	db := newTestDB(t)
	addChannel(t, db, "paused", "webhook", `{"url":"http://example.invalid"}`, "inactive")

	d := NewDispatcher(db, 3, time.Millisecond, time.Second, 4)
	outcomes := d.Dispatch(context.Background(), "t", "c", LevelInfo, []string{"ghost", "paused"})

	for _, o := range outcomes {
		if o.Success || o.Attempts != 0 {
			t.Errorf("channel %s: outcome=%+v, want not attempted", o.ChannelCode, o)
		}
	}
	if AnySuccess(outcomes) {
		t.Error("AnySuccess should be false")
	}
}

func TestDispatchIsolatesChannelFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := newTestDB(t)
	addChannel(t, db, "bad", "webhook", `{"headers":{}}`, "active")
	addChannel(t, db, "good", "webhook", fmt.Sprintf(`{"url":"%s"}`, srv.URL), "active")

	d := NewDispatcher(db, 2, time.Millisecond, time.Second, 4)
	outcomes := d.Dispatch(context.Background(), "t", "c", LevelError, []string{"bad", "good"})

	if len(outcomes) != 2 {
		t.Fatalf("outcomes=%d", len(outcomes))
	}
	// input order preserved
	if outcomes[0].ChannelCode != "bad" || outcomes[1].ChannelCode != "good" {
		t.Fatalf("order: %+v", outcomes)
	}
	if outcomes[0].Success {
		t.Error("misconfigured channel should fail")
	}
	if !outcomes[1].Success {
		t.Errorf("healthy channel should succeed: %+v", outcomes[1])
	}
	if !AnySuccess(outcomes) {
		t.Error("AnySuccess should be true")
	}
}

func TestMarshalOutcomes(t *testing.T) {
	s := MarshalOutcomes([]Outcome{{ChannelCode: "x", Success: true, Attempts: 1}})
	if s == "" || s == "[]" {
		t.Fatalf("marshal: %q", s)
	}
}

func TestSendOnceValidatesFirst(t *testing.T) {
	db := newTestDB(t)
	d := NewDispatcher(db, 3, time.Millisecond, time.Second, 4)

	ch := &models.NotifyChannel{Code: "c", ChannelType: "lark", Config: `{}`}
	if err := d.SendOnce(context.Background(), ch, "t", "c", LevelInfo); err == nil {
		t.Fatal("want config error")
	}
}
