package flood

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/bus"
	"github.com/kubilitics/kubilitics-ai/internal/hazard"
)

type fakeSource struct {
	name       string
	failCount  int32
	calls      int32
	sample     hazard.HydroSample
	alwaysFail bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) ([]hazard.HydroSample, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.alwaysFail {
		return nil, errors.New("permanent failure")
	}
	if atomic.AddInt32(&f.failCount, -1) >= 0 {
		return nil, errors.New("transient failure")
	}
	return []hazard.HydroSample{f.sample}, nil
}

func TestCollectNowRetriesTransientFailures(t *testing.T) {
	src := &fakeSource{name: "river-1", failCount: 1, sample: hazard.HydroSample{StationID: "river-1"}}
	c := New([]Source{src}, Config{MaxRetries: 3, Timeout: time.Second}, nil, "", "", nil)

	stats, allFailed := c.CollectNow(context.Background())
	assert.False(t, allFailed)
	assert.Equal(t, uint64(1), stats.TotalRuns)
	assert.Equal(t, uint64(1), stats.SuccessfulRuns)
	assert.Equal(t, uint64(1), stats.DataPointsCollected)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&src.calls), int32(2))
}

func TestCollectNowPartialFailureStillEmits(t *testing.T) {
	good := &fakeSource{name: "river-1", sample: hazard.HydroSample{StationID: "river-1"}}
	bad := &fakeSource{name: "dam-1", alwaysFail: true}

	b := bus.New(0)
	require.NoError(t, b.Register("flood-collector"))
	require.NoError(t, b.Register("hazard"))

	c := New([]Source{good, bad}, Config{MaxRetries: 1, Timeout: time.Second}, b, "flood-collector", "hazard", nil)
	stats, allFailed := c.CollectNow(context.Background())

	assert.False(t, allFailed)
	assert.Equal(t, uint64(1), stats.SuccessfulRuns)
	assert.Equal(t, uint64(0), stats.FailedRuns)
	assert.Equal(t, uint64(1), stats.DataPointsCollected)

	env, ok, err := b.Receive(context.Background(), "hazard", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ContentFloodDataBatch, env.ContentType)
	batch, ok := env.Payload.([]hazard.HydroSample)
	require.True(t, ok)
	assert.Len(t, batch, 1)
}

func TestCollectNowAllSourcesFailedIsFailureOutcome(t *testing.T) {
	bad1 := &fakeSource{name: "river-1", alwaysFail: true}
	bad2 := &fakeSource{name: "dam-1", alwaysFail: true}

	b := bus.New(0)
	require.NoError(t, b.Register("flood-collector"))
	require.NoError(t, b.Register("hazard"))

	c := New([]Source{bad1, bad2}, Config{MaxRetries: 1, Timeout: time.Second}, b, "flood-collector", "hazard", nil)
	stats, allFailed := c.CollectNow(context.Background())

	assert.True(t, allFailed)
	assert.Equal(t, uint64(1), stats.FailedRuns)
	assert.Equal(t, uint64(0), stats.SuccessfulRuns)
	assert.Equal(t, 0, b.MailboxLen("hazard"), "all-source failure must not emit a batch")
}

func TestStartAndStopDrainsCleanly(t *testing.T) {
	src := &fakeSource{name: "river-1", sample: hazard.HydroSample{StationID: "river-1"}}
	c := New([]Source{src}, Config{Period: time.Hour, MaxRetries: 1, Timeout: time.Second}, nil, "", "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	c.Stop()

	assert.Equal(t, uint64(0), c.Stats().TotalRuns)
}
