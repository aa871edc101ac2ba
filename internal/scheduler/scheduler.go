// Package scheduler drives the rule engine on a fixed interval and on
// demand. A tick that arrives while a cycle is still running is skipped,
// never queued, so cycles can never pile up behind a slow store or a slow
// notification endpoint.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskwatch/backend/internal/engine"
)

// ErrCycleRunning is returned by TriggerNow when a cycle is already in
// flight.
var ErrCycleRunning = errors.New("an evaluation cycle is already running")

type Scheduler struct {
	engine   *engine.Engine
	interval time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// New builds a scheduler over the engine; intervals below 1s fall back to
// one minute.
func New(e *engine.Engine, interval time.Duration) *Scheduler {
	if interval < time.Second {
		interval = time.Minute
	}
	return &Scheduler{
		engine:   e,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop in its own goroutine. The first cycle runs
// immediately rather than one interval in.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	log.Printf("[scheduler] starting, interval %v", s.interval)

	go func() {
		defer close(s.done)
		s.tick(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// tick runs one cycle unless one is already in flight.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("[scheduler] previous cycle still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	if _, err := s.engine.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[scheduler] cycle failed: %v", err)
	}
}

// TriggerNow runs one cycle immediately and returns its report. It shares
// the overlap guard with the ticker: if a cycle is already running the
// caller gets ErrCycleRunning instead of a queued run.
func (s *Scheduler) TriggerNow(ctx context.Context) (*engine.CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer s.running.Store(false)
	return s.engine.RunCycle(ctx)
}

// Stop cancels the in-flight cycle (if any) and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		if s.cancel == nil {
			return
		}
		log.Println("[scheduler] stopping")
		s.cancel()
		<-s.done
	})
}
