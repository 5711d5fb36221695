package scout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/bus"
	"github.com/kubilitics/kubilitics-ai/internal/hazard"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
)

// ContentScoutReportBatch is the bus content type for a completed batch.
const ContentScoutReportBatch = "scout_report_batch"

// LocationExtractor pulls a location mention out of raw text. The
// default implementation is a trivial gazetteer-name substring search;
// it is pluggable so a future NLP-backed extractor can replace it
// without touching the collector loop.
type LocationExtractor interface {
	Extract(text string, g *Gazetteer) (mention string, ok bool)
}

// naiveExtractor takes the gazetteer's own names as the candidate
// vocabulary and accepts the text if Gazetteer.Lookup resolves it: the
// first name (in gazetteer order) that appears as a substring of the
// text, or else a name within the edit-distance bound of the whole text.
// The whole text is returned as the mention. This is intentionally
// simple: the gazetteer is small (a few hundred named areas of one city)
// so an exhaustive pass is cheap.
type naiveExtractor struct{}

func (naiveExtractor) Extract(text string, g *Gazetteer) (string, bool) {
	_, _, ok := g.Lookup(text)
	if !ok {
		return "", false
	}
	return text, true
}

// StrictMode controls what happens to a report with no resolvable
// location.
type StrictMode bool

const (
	Lenient StrictMode = false
	Strict  StrictMode = true
)

// Config controls polling period and strictness.
type Config struct {
	Period     time.Duration
	Strict     StrictMode
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = 300 * time.Second
	}
	return c
}

// Collector polls or replays a feed, classifies and geocodes each
// mention, and emits a batch of scout reports to the hazard core.
type Collector struct {
	cfg       Config
	feed      Feed
	gazetteer *Gazetteer
	extractor LocationExtractor
	bus       *bus.Bus
	selfID    string
	hazard    string
	log       *zap.Logger

	statsMu sync.Mutex
	stats   Stats

	collectNow chan chan collectOutcome
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    atomic.Bool
}

// collectOutcome carries both the stats snapshot and whether this
// specific run was a feed-poll failure, the signal Listen needs to
// choose between a CONFIRM and a FAILURE reply.
type collectOutcome struct {
	stats     Stats
	allFailed bool
}

// Stats mirrors the flood collector's counters.
type Stats struct {
	TotalRuns           uint64
	SuccessfulRuns      uint64
	FailedRuns          uint64
	LastDurationMs      int64
	ReportsCollected    uint64
	ReportsDiscarded    uint64
}

// New constructs a scout Collector.
func New(feed Feed, gazetteer *Gazetteer, cfg Config, b *bus.Bus, selfID, hazardID string, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		cfg:        cfg.withDefaults(),
		feed:       feed,
		gazetteer:  gazetteer,
		extractor:  naiveExtractor{},
		bus:        b,
		selfID:     selfID,
		hazard:     hazardID,
		log:        log,
		collectNow: make(chan chan collectOutcome),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	c.running.Store(true)
	go c.loop(ctx)
}

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

// CollectNow bypasses the tick, matching the flood collector's admin
// trigger shape, and reports whether this run was a feed-poll failure.
// When the tick loop has not been started, the pass runs on the caller's
// goroutine.
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

func (c *Collector) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// runOnce polls the feed once and reports whether the run failed
// outright (the feed itself errored), the signal Listen needs to reply
// FAILURE instead of CONFIRM for a collect_now request.
func (c *Collector) runOnce(ctx context.Context) bool {
	start := time.Now()

	mentions, err := c.feed.Poll(ctx)
	duration := time.Since(start)

	c.statsMu.Lock()
	c.stats.TotalRuns++
	c.stats.LastDurationMs = duration.Milliseconds()
	c.statsMu.Unlock()

	if err != nil {
		c.statsMu.Lock()
		c.stats.FailedRuns++
		c.statsMu.Unlock()
		c.log.Warn("scout feed poll failed", zap.Error(err))
		metrics.CollectorRunsTotal.WithLabelValues("scout", "failed").Inc()
		metrics.CollectorSourceFailures.WithLabelValues("scout", "feed").Inc()
		return true
	}

	batch, discarded := c.classify(mentions)

	c.statsMu.Lock()
	c.stats.SuccessfulRuns++
	c.stats.ReportsCollected += uint64(len(batch))
	c.stats.ReportsDiscarded += uint64(discarded)
	c.statsMu.Unlock()

	metrics.CollectorRunsTotal.WithLabelValues("scout", "success").Inc()
	metrics.CollectorRunDuration.WithLabelValues("scout").Observe(duration.Seconds())
	metrics.CollectorDataPoints.WithLabelValues("scout", "feed").Add(float64(len(batch)))

	if len(batch) == 0 || c.bus == nil {
		return false
	}
	c.emit(batch)
	return false
}

// classify runs the relevance classifier, location extractor, and
// severity scorer over each mention, applying the strict/lenient policy
// for unresolvable locations.
func (c *Collector) classify(mentions []RawMention) ([]hazard.ScoutReport, int) {
	var out []hazard.ScoutReport
	discarded := 0
	for _, m := range mentions {
		if !IsFloodRelated(m.Text) {
			discarded++
			continue
		}

		report := hazard.ScoutReport{
			Text:           m.Text,
			Severity:       Severity(m.Text),
			Confidence:     0.6,
			ReportType:     "crowdsourced",
			IsFloodRelated: true,
			ObservedAt:     m.ObservedAt,
		}
		if report.ObservedAt.IsZero() {
			report.ObservedAt = time.Now()
		}

		if c.gazetteer != nil {
			if mention, ok := c.extractor.Extract(m.Text, c.gazetteer); ok {
				if name, coord, ok := c.gazetteer.Lookup(mention); ok {
					report.LocationName = name
					coord := coord
					report.Coord = &coord
				}
			}
		}

		if report.LocationName == "" {
			if bool(c.cfg.Strict) {
				discarded++
				continue
			}
			// Lenient mode: forward with coord=nil; the hazard core's
			// fusion pass applies the global-fallback contribution.
			report.LocationName = "unresolved:" + truncate(m.Text, 40)
		}

		out = append(out, report)
	}
	return out, discarded
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (c *Collector) emit(batch []hazard.ScoutReport) {
	hasCoords := false
	for _, r := range batch {
		if r.Coord != nil {
			hasCoords = true
			break
		}
	}
	_ = c.bus.Send(bus.Envelope{
		Performative: bus.INFORM,
		SenderID:     c.selfID,
		ReceiverID:   c.hazard,
		ContentType:  ContentScoutReportBatch,
		Payload: map[string]any{
			"reports":          batch,
			"has_coordinates": hasCoords,
		},
	})
}
