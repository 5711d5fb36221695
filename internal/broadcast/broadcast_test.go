package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/hazard"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub1 := b.Subscribe(ctx)
	sub2 := b.Subscribe(ctx)

	b.Publish(hazard.LiveUpdate{Kind: hazard.KindRiskUpdate, Data: map[string]any{"edge": 1}})

	for _, sub := range []Subscription{sub1, sub2} {
		select {
		case u := <-sub.Updates:
			assert.Equal(t, hazard.KindRiskUpdate, u.Kind)
			assert.False(t, u.EmittedAt.IsZero())
		case <-time.After(time.Second):
			t.Fatal("expected update on subscriber channel")
		}
	}
}

func TestSubscriberUnsubscribedWhenBufferOverflows(t *testing.T) {
	b := New(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.Subscribe(ctx)

	// Fill the buffer past capacity without ever draining it.
	for i := 0; i < 5; i++ {
		b.Publish(hazard.LiveUpdate{Kind: hazard.KindFloodUpdate})
	}

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("expected subscriber to be unsubscribed after overflow")
	}
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestUnsubscribeRemovesSubscriberAndClosesDone(t *testing.T) {
	b := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.Subscribe(ctx)
	require.Equal(t, 1, b.SubscriberCount())

	sub.Unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount())

	select {
	case <-sub.Done:
	default:
		t.Fatal("expected Done to be closed after Unsubscribe")
	}

	// Further publishes must not panic or deliver to the stale channel.
	b.Publish(hazard.LiveUpdate{Kind: hazard.KindCriticalAlert})
	select {
	case _, ok := <-sub.Updates:
		if ok {
			t.Fatal("did not expect delivery after unsubscribe")
		}
	default:
	}
}

func TestHeartbeatFrameDeliveredToIdleSubscriber(t *testing.T) {
	b := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// heartbeatLoop only ticks every 30 s, so instead of waiting it out,
	// backdate lastSent to make the subscriber idle and deliver the
	// system_status frame the loop would send, checking it arrives.
	sub := b.Subscribe(ctx)
	id := sub.ID
	b.mu.RLock()
	s := b.subs[id]
	b.mu.RUnlock()
	s.mu.Lock()
	s.lastSent = time.Now().Add(-HeartbeatInterval - time.Second)
	s.mu.Unlock()

	b.deliver(s, hazard.LiveUpdate{Kind: hazard.KindSystemStatus, Data: map[string]any{"heartbeat": true}})

	select {
	case u := <-sub.Updates:
		assert.Equal(t, hazard.KindSystemStatus, u.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected heartbeat frame")
	}
}

func TestShutdownDrainsThenClosesSubscriptions(t *testing.T) {
	b := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.Subscribe(ctx)
	b.Publish(hazard.LiveUpdate{Kind: hazard.KindRiskUpdate})

	b.Shutdown(50 * time.Millisecond)

	select {
	case <-sub.Done:
	default:
		t.Fatal("expected subscription done after Shutdown")
	}
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestContextCancelDoesNotPanicHeartbeatLoop(t *testing.T) {
	b := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())

	_ = b.Subscribe(ctx)
	cancel()
	time.Sleep(20 * time.Millisecond)
}
