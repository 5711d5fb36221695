// Package scheduler implements the scheduler (C10): a single ticker that
// fans collect_now REQUESTs out to the flood and scout collectors.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/bus"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
)

// ContentCollectNow is the content type collectors listen for.
const ContentCollectNow = "collect_now"

// Config controls tick period, whether the scout feed is scheduled, and
// how long Stop waits for an in-flight fire to finish before abandoning
// it.
type Config struct {
	Period       time.Duration
	ScoutEnabled bool
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = 300 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
	return c
}

// Stats mirrors the counters the spec requires the scheduler to expose.
type Stats struct {
	Ticks    uint64
	LastFire time.Time
	JitterMs int64
}

// Scheduler owns the tick loop. It never waits for a collector's reply;
// fan-out is fire-and-forget by design (§4.10).
type Scheduler struct {
	cfg      Config
	b        *bus.Bus
	selfID   string
	floodID  string
	scoutID  string
	log      *zap.Logger

	statsMu sync.Mutex
	stats   Stats

	triggerNow chan chan Stats
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    atomic.Bool
}

// New constructs a Scheduler. scoutID may be empty if ScoutEnabled is
// false.
func New(b *bus.Bus, selfID, floodID, scoutID string, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cfg:        cfg.withDefaults(),
		b:          b,
		selfID:     selfID,
		floodID:    floodID,
		scoutID:    scoutID,
		log:        log,
		triggerNow: make(chan chan Stats),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the tick loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.running.Store(true)
	go s.loop(ctx)
}

// Stop asks the loop to exit and waits up to cfg.DrainTimeout for the
// current fire to finish before abandoning it.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-time.After(s.cfg.DrainTimeout):
		s.log.Warn("scheduler: drain timeout exceeded, abandoning in-flight fire")
	}
}

// TriggerNow fires one collect_now fan-out immediately, bypassing the
// ticker, and returns the updated stats. This is the admin hook the
// spec calls trigger_now().
func (s *Scheduler) TriggerNow(ctx context.Context) Stats {
	reply := make(chan Stats, 1)
	select {
	case s.triggerNow <- reply:
		select {
		case st := <-reply:
			return st
		case <-ctx.Done():
			return s.Stats()
		}
	case <-ctx.Done():
		return s.Stats()
	case <-s.stopCh:
		return s.Stats()
	}
}

// Stats returns a snapshot of the running counters.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case scheduled := <-ticker.C:
			s.fire(scheduled)
		case reply := <-s.triggerNow:
			s.fire(time.Now())
			reply <- s.Stats()
		}
	}
}

func (s *Scheduler) fire(scheduled time.Time) {
	now := time.Now()
	jitter := now.Sub(scheduled)

	s.statsMu.Lock()
	s.stats.Ticks++
	s.stats.LastFire = now
	s.stats.JitterMs = jitter.Milliseconds()
	s.statsMu.Unlock()

	metrics.SchedulerTicksTotal.Inc()

	s.sendCollectNow(s.floodID)
	if s.cfg.ScoutEnabled && s.scoutID != "" {
		s.sendCollectNow(s.scoutID)
	}
}

func (s *Scheduler) sendCollectNow(receiver string) {
	if s.b == nil || receiver == "" {
		return
	}
	if err := s.b.Send(bus.Envelope{
		Performative: bus.REQUEST,
		SenderID:     s.selfID,
		ReceiverID:   receiver,
		ContentType:  ContentCollectNow,
	}); err != nil {
		s.log.Warn("scheduler: collect_now send failed", zap.String("receiver", receiver), zap.Error(err))
	}
}
