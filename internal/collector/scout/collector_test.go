package scout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/bus"
	"github.com/kubilitics/kubilitics-ai/internal/hazard"
)

type fakeFeed struct {
	mentions []RawMention
	err      error
}

func (f *fakeFeed) Poll(ctx context.Context) ([]RawMention, error) {
	return f.mentions, f.err
}

func TestClassifyDiscardsNonFloodMentions(t *testing.T) {
	g, err := LoadGazetteer(writeGazetteerCSV(t))
	require.NoError(t, err)

	c := New(&fakeFeed{}, g, Config{}, nil, "", "", nil)
	batch, discarded := c.classify([]RawMention{
		{Text: "Sunny day, all good"},
		{Text: "Baha sa Tumana, waist deep na"},
	})
	require.Len(t, batch, 1)
	assert.Equal(t, 1, discarded)
	assert.Equal(t, 0.80, batch[0].Severity)
	assert.Equal(t, "Tumana", batch[0].LocationName)
	require.NotNil(t, batch[0].Coord)
}

func TestClassifyStrictModeDropsUnresolvedLocation(t *testing.T) {
	g, err := LoadGazetteer(writeGazetteerCSV(t))
	require.NoError(t, err)

	c := New(&fakeFeed{}, g, Config{Strict: Strict}, nil, "", "", nil)
	batch, discarded := c.classify([]RawMention{
		{Text: "Baha dito, chest deep, somewhere unnamed"},
	})
	assert.Empty(t, batch)
	assert.Equal(t, 1, discarded)
}

func TestClassifyLenientModeForwardsUnresolvedWithNilCoord(t *testing.T) {
	g, err := LoadGazetteer(writeGazetteerCSV(t))
	require.NoError(t, err)

	c := New(&fakeFeed{}, g, Config{Strict: Lenient}, nil, "", "", nil)
	batch, discarded := c.classify([]RawMention{
		{Text: "Baha dito, chest deep, somewhere unnamed"},
	})
	require.Len(t, batch, 1)
	assert.Equal(t, 0, discarded)
	assert.Nil(t, batch[0].Coord)
}

func TestCollectNowEmitsBatchWithHasCoordinatesFlag(t *testing.T) {
	g, err := LoadGazetteer(writeGazetteerCSV(t))
	require.NoError(t, err)

	feed := &fakeFeed{mentions: []RawMention{
		{Text: "Baha sa Tumana, knee deep"},
	}}

	b := bus.New(0)
	require.NoError(t, b.Register("scout-collector"))
	require.NoError(t, b.Register("hazard"))

	c := New(feed, g, Config{}, b, "scout-collector", "hazard", nil)
	stats, allFailed := c.CollectNow(context.Background())
	assert.False(t, allFailed)
	assert.Equal(t, uint64(1), stats.ReportsCollected)

	env, ok, err := b.Receive(context.Background(), "hazard", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ContentScoutReportBatch, env.ContentType)

	payload, ok := env.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, payload["has_coordinates"])
	reports, ok := payload["reports"].([]hazard.ScoutReport)
	require.True(t, ok)
	assert.Len(t, reports, 1)
}

func TestCollectNowFeedErrorIsFailedRun(t *testing.T) {
	feed := &fakeFeed{err: assertErr{}}
	c := New(feed, nil, Config{}, nil, "", "", nil)
	stats, allFailed := c.CollectNow(context.Background())
	assert.True(t, allFailed)
	assert.Equal(t, uint64(1), stats.FailedRuns)
	assert.Equal(t, uint64(0), stats.SuccessfulRuns)
}

type assertErr struct{}

func (assertErr) Error() string { return "feed unavailable" }
