// Package broadcast implements the live broadcaster (C12): a fan-out
// publish channel for fused risk updates and critical alerts, with
// per-subscriber bounded buffers and idle heartbeats. It satisfies
// internal/hazard's Publisher interface directly, so the fusion core
// never imports this package.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/hazard"
	"github.com/kubilitics/kubilitics-ai/internal/metrics"
)

// DefaultBufferSize is the per-subscriber channel depth. A subscriber
// that falls this far behind is unsubscribed and must reconnect.
const DefaultBufferSize = 64

// HeartbeatInterval matches the idle period after which a subscriber
// receives a synthetic system_status frame, mirroring the 30 s
// heartbeat cadence of a WebSocket keepalive.
const HeartbeatInterval = 30 * time.Second

// DefaultFlushTimeout bounds how long Shutdown waits for subscriber
// buffers to drain before dropping them.
const DefaultFlushTimeout = 2 * time.Second

// Subscription is handed back by Subscribe. Updates is closed never;
// callers detect a dropped subscription via Done and must call
// Subscribe again to reconnect.
type Subscription struct {
	ID          string
	Updates     <-chan hazard.LiveUpdate
	Done        <-chan struct{}
	Unsubscribe func()
}

// Broadcaster fans hazard.LiveUpdate values out to every live
// subscriber. The zero value is not usable; construct with New.
type Broadcaster struct {
	bufferSize int
	log        *zap.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Broadcaster. bufferSize <= 0 uses DefaultBufferSize.
func New(bufferSize int, log *zap.Logger) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		bufferSize: bufferSize,
		log:        log,
		subs:       make(map[string]*subscriber),
		stopCh:     make(chan struct{}),
	}
}

// Subscribe registers a new subscriber and starts its heartbeat
// goroutine. The subscription is torn down when ctx is done, when the
// caller invokes Unsubscribe, or when the subscriber falls behind.
func (b *Broadcaster) Subscribe(ctx context.Context) Subscription {
	sub := newSubscriber(uuid.New().String(), b.bufferSize)

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	metrics.BroadcastSubscribers.Inc()

	go b.heartbeatLoop(ctx, sub)

	return Subscription{
		ID:          sub.id,
		Updates:     sub.ch,
		Done:        sub.done,
		Unsubscribe: func() { b.unsubscribe(sub.id) },
	}
}

// SubscriberCount reports the number of currently live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish fans update out to every live subscriber, satisfying
// hazard.Publisher. A subscriber whose buffer is full is unsubscribed
// rather than blocking the publisher.
func (b *Broadcaster) Publish(update hazard.LiveUpdate) {
	if update.EmittedAt.IsZero() {
		update.EmittedAt = time.Now()
	}

	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, update)
	}
}

// Shutdown stops heartbeats and waits up to timeout (DefaultFlushTimeout
// if <= 0) for subscriber buffers to drain before dropping every
// subscription, per the cooperative-shutdown contract: the broadcaster
// flushes within a bounded window before dropping.
func (b *Broadcaster) Shutdown(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()
	metrics.BroadcastSubscribers.Sub(float64(len(subs)))

	b.stopOnce.Do(func() { close(b.stopCh) })

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		drained := true
		for _, s := range subs {
			if len(s.ch) > 0 {
				drained = false
				break
			}
		}
		if drained {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, s := range subs {
		s.closeDone()
	}
}

func (b *Broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		metrics.BroadcastSubscribers.Dec()
		sub.closeDone()
	}
}
