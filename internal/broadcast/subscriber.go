package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/hazard"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
)

// subscriber is one live-broadcast recipient: a bounded channel plus
// the bookkeeping needed to detect idleness and overflow.
type subscriber struct {
	id   string
	ch   chan hazard.LiveUpdate
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	lastSent time.Time
}

func newSubscriber(id string, bufferSize int) *subscriber {
	return &subscriber{
		id:       id,
		ch:       make(chan hazard.LiveUpdate, bufferSize),
		done:     make(chan struct{}),
		lastSent: time.Now(),
	}
}

func (s *subscriber) closeDone() {
	s.once.Do(func() { close(s.done) })
}

// heartbeatLoop sends a synthetic system_status frame whenever the
// subscriber has gone a full interval without a real update, the same
// cadence as a per-connection WebSocket keepalive ticker.
func (b *Broadcaster) heartbeatLoop(ctx context.Context, sub *subscriber) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			sub.mu.Lock()
			idle := time.Since(sub.lastSent) >= HeartbeatInterval
			sub.mu.Unlock()
			if !idle {
				continue
			}
			b.deliver(sub, hazard.LiveUpdate{
				Kind:      hazard.KindSystemStatus,
				Data:      map[string]any{"heartbeat": true},
				EmittedAt: time.Now(),
			})
		}
	}
}

// deliver attempts a non-blocking send to sub. A full buffer
// unsubscribes the subscriber instead of blocking the publisher or the
// heartbeat loop.
func (b *Broadcaster) deliver(sub *subscriber, update hazard.LiveUpdate) {
	select {
	case <-sub.done:
		return
	default:
	}

	sub.mu.Lock()
	select {
	case sub.ch <- update:
		sub.lastSent = time.Now()
		sub.mu.Unlock()
		metrics.BroadcastMessagesTotal.WithLabelValues(string(update.Kind)).Inc()
	default:
		sub.mu.Unlock()
		b.log.Warn("broadcast: subscriber fell behind, unsubscribing",
			zap.String("subscriber_id", sub.id))
		metrics.BroadcastSubscriberDrops.Inc()
		b.unsubscribe(sub.id)
	}
}
