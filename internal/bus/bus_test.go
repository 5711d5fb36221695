package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwiceFails(t *testing.T) {
	b := New(0)
	require.NoError(t, b.Register("hazard"))
	err := b.Register("hazard")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestSendToUnregisteredFails(t *testing.T) {
	b := New(0)
	err := b.Send(Envelope{ReceiverID: "nobody"})
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestDeliversExactlyOnceAndPreservesSenderOrder(t *testing.T) {
	b := New(0)
	require.NoError(t, b.Register("hazard"))

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Send(Envelope{
			Performative: INFORM, SenderID: "flood", ReceiverID: "hazard",
			ContentType: "flood_data_batch", Payload: i,
		}))
	}

	ctx := context.Background()
	var got []int
	for i := 0; i < 5; i++ {
		env, ok, err := b.Receive(ctx, "hazard", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, env.Payload.(int))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)

	// Exactly once: a further receive with no timeout finds nothing left.
	_, ok, err := b.Receive(ctx, "hazard", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReceiveTimesOutWhenEmpty(t *testing.T) {
	b := New(0)
	require.NoError(t, b.Register("hazard"))

	start := time.Now()
	_, ok, err := b.Receive(context.Background(), "hazard", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestReceiveUnblocksOnSend(t *testing.T) {
	b := New(0)
	require.NoError(t, b.Register("hazard"))

	done := make(chan Envelope, 1)
	go func() {
		env, ok, err := b.Receive(context.Background(), "hazard", 2*time.Second)
		if err == nil && ok {
			done <- env
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Send(Envelope{
		Performative: REQUEST, SenderID: "scheduler", ReceiverID: "hazard",
		ContentType: "collect_now",
	}))

	select {
	case env := <-done:
		assert.Equal(t, "scheduler", env.SenderID)
	case <-time.After(time.Second):
		t.Fatal("receive did not unblock on send")
	}
}

func TestSoftCapDropsOldestInformNotRequest(t *testing.T) {
	b := New(2)
	require.NoError(t, b.Register("hazard"))

	require.NoError(t, b.Send(Envelope{Performative: INFORM, ReceiverID: "hazard", Payload: "first-inform"}))
	require.NoError(t, b.Send(Envelope{Performative: REQUEST, ReceiverID: "hazard", Payload: "a-request"}))
	require.NoError(t, b.Send(Envelope{Performative: INFORM, ReceiverID: "hazard", Payload: "second-inform"}))

	assert.Equal(t, uint64(1), b.Dropped("hazard"))

	ctx := context.Background()
	env1, _, _ := b.Receive(ctx, "hazard", 0)
	env2, _, _ := b.Receive(ctx, "hazard", 0)

	assert.Equal(t, "a-request", env1.Payload)
	assert.Equal(t, "second-inform", env2.Payload)
}

func TestSequenceNumbersAreMonotonic(t *testing.T) {
	b := New(0)
	require.NoError(t, b.Register("a"))
	require.NoError(t, b.Register("b"))

	require.NoError(t, b.Send(Envelope{ReceiverID: "a"}))
	require.NoError(t, b.Send(Envelope{ReceiverID: "b"}))
	require.NoError(t, b.Send(Envelope{ReceiverID: "a"}))

	ctx := context.Background()
	a1, _, _ := b.Receive(ctx, "a", 0)
	a2, _, _ := b.Receive(ctx, "a", 0)
	b1, _, _ := b.Receive(ctx, "b", 0)

	assert.Less(t, a1.Seq, a2.Seq)
	assert.Less(t, b1.Seq, a2.Seq)
}
