// Package flood implements the flood collector (C5): a ticker-driven
// component that polls official river, rainfall, and dam telemetry and
// hands successfully parsed readings to the hazard fusion core as one
// batch per tick.
package flood

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/bus"
	"github.com/kubilitics/kubilitics-ai/internal/hazard"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
)

// ContentFloodDataBatch is the bus content type for a completed batch.
const ContentFloodDataBatch = "flood_data_batch"

// Source fetches readings from one upstream (a river gauge feed, a
// rainfall feed, a dam spillway feed). Implementations are expected to
// respect ctx's deadline; the collector applies its own timeout on top
// regardless.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]hazard.HydroSample, error)
}

// Config controls tick period, per-source timeout, and retry policy.
type Config struct {
	Period     time.Duration
	Timeout    time.Duration
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = 300 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}

// Stats mirrors the counters the spec requires the collector to expose.
type Stats struct {
	TotalRuns          uint64
	SuccessfulRuns      uint64
	FailedRuns          uint64
	LastDurationMs      int64
	DataPointsCollected uint64
}

// Collector owns the source list and the background tick loop.
type Collector struct {
	cfg     Config
	sources []Source
	bus     *bus.Bus
	selfID  string
	hazard  string // receiver id of the hazard component's mailbox
	log     *zap.Logger

	statsMu sync.Mutex
	stats   Stats

	collectNow chan chan collectOutcome
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    atomic.Bool
}

// collectOutcome carries both the stats snapshot and whether this
// specific run was an all-source failure, the signal Listen needs to
// choose between a CONFIRM and a FAILURE reply.
type collectOutcome struct {
	stats     Stats
	allFailed bool
}

// New constructs a Collector. b and the two mailbox ids may be nil/empty
// for tests that only exercise collection, not bus delivery.
func New(sources []Source, cfg Config, b *bus.Bus, selfID, hazardID string, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		cfg:        cfg.withDefaults(),
		sources:    sources,
		bus:        b,
		selfID:     selfID,
		hazard:     hazardID,
		log:        log,
		collectNow: make(chan chan collectOutcome),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the tick loop in a background goroutine.
func (c *Collector) Start(ctx context.Context) {
	c.running.Store(true)
	go c.loop(ctx)
}

// Stop requests the loop to exit and waits for it to drain.
func (c *Collector) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.stopCh)
	<-c.doneCh
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.runOnce(ctx)
		case reply := <-c.collectNow:
			allFailed := c.runOnce(ctx)
			reply <- collectOutcome{stats: c.Stats(), allFailed: allFailed}
		}
	}
}

// CollectNow bypasses the tick and runs (and waits for) one collection
// pass immediately, returning the stats snapshot and whether this run
// was an all-source failure. It is the admin trigger the collect_now()
// content type invokes. When the tick loop has not been started, the
// pass runs on the caller's goroutine.
func (c *Collector) CollectNow(ctx context.Context) (Stats, bool) {
	if !c.running.Load() {
		select {
		case <-c.stopCh:
			return c.Stats(), false
		default:
		}
		allFailed := c.runOnce(ctx)
		return c.Stats(), allFailed
	}
	reply := make(chan collectOutcome, 1)
	select {
	case c.collectNow <- reply:
		select {
		case o := <-reply:
			return o.stats, o.allFailed
		case <-ctx.Done():
			return c.Stats(), false
		}
	case <-ctx.Done():
		return c.Stats(), false
	case <-c.stopCh:
		return c.Stats(), false
	}
}

// Stats returns a snapshot of the running counters.
func (c *Collector) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// runOnce fetches every source once and reports whether the run was an
// all-source failure, the signal Listen needs to reply FAILURE instead
// of CONFIRM for a collect_now request.
func (c *Collector) runOnce(ctx context.Context) bool {
	start := time.Now()

	type result struct {
		source  string
		samples []hazard.HydroSample
		err     error
	}
	results := make([]result, len(c.sources))
	var wg sync.WaitGroup
	for i, src := range c.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			samples, err := c.fetchWithRetry(ctx, src)
			results[i] = result{source: src.Name(), samples: samples, err: err}
		}(i, src)
	}
	wg.Wait()

	var batch []hazard.HydroSample
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			c.log.Warn("flood source failed", zap.String("source", r.source), zap.Error(r.err))
			metrics.CollectorSourceFailures.WithLabelValues("flood", r.source).Inc()
			continue
		}
		batch = append(batch, r.samples...)
		metrics.CollectorDataPoints.WithLabelValues("flood", r.source).Add(float64(len(r.samples)))
	}

	duration := time.Since(start)
	allFailed := len(c.sources) > 0 && failures == len(c.sources)

	c.statsMu.Lock()
	c.stats.TotalRuns++
	c.stats.LastDurationMs = duration.Milliseconds()
	c.stats.DataPointsCollected += uint64(len(batch))
	if allFailed {
		c.stats.FailedRuns++
	} else {
		c.stats.SuccessfulRuns++
	}
	c.statsMu.Unlock()

	status := "success"
	if allFailed {
		status = "failed"
	} else if failures > 0 {
		status = "partial"
	}
	metrics.CollectorRunsTotal.WithLabelValues("flood", status).Inc()
	metrics.CollectorRunDuration.WithLabelValues("flood").Observe(duration.Seconds())

	if allFailed || c.bus == nil {
		return allFailed
	}
	c.emit(batch)
	return false
}

func (c *Collector) emit(batch []hazard.HydroSample) {
	_ = c.bus.Send(bus.Envelope{
		Performative: bus.INFORM,
		SenderID:     c.selfID,
		ReceiverID:   c.hazard,
		ContentType:  ContentFloodDataBatch,
		Payload:      batch,
	})
}

// fetchWithRetry applies the per-source timeout and retry policy: up to
// MaxRetries attempts, exponential backoff 1/2/4s with up to 500ms of
// full jitter.
func (c *Collector) fetchWithRetry(ctx context.Context, src Source) ([]hazard.HydroSample, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			jitter := time.Duration(rand.Int64N(int64(500 * time.Millisecond)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		samples, err := src.Fetch(attemptCtx)
		cancel()
		if err == nil {
			return samples, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
