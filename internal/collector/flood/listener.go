package flood

import (
	"context"
	"time"

	"github.com/kubilitics/kubilitics-ai/internal/bus"
)

// ContentCollectNow is the scheduler's admin-trigger content type.
const ContentCollectNow = "collect_now"

// Listen services c.selfID's mailbox until ctx is canceled, running an
// immediate collection pass whenever the scheduler sends collect_now.
func (c *Collector) Listen(ctx context.Context, b *bus.Bus, selfID string) {
	for {
		env, ok, err := b.Receive(ctx, selfID, 1*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if !ok || env.Performative != bus.REQUEST || env.ContentType != ContentCollectNow {
			continue
		}
		stats, allFailed := c.CollectNow(ctx)
		if allFailed {
			_ = b.Send(bus.Envelope{
				Performative:   bus.FAILURE,
				SenderID:       selfID,
				ReceiverID:     env.SenderID,
				ContentType:    "collect_now_result",
				Payload:        "all flood sources failed",
				ConversationID: env.ConversationID,
			})
			continue
		}
		_ = b.Send(bus.Envelope{
			Performative:   bus.CONFIRM,
			SenderID:       selfID,
			ReceiverID:     env.SenderID,
			ContentType:    "collect_now_result",
			Payload:        stats,
			ConversationID: env.ConversationID,
		})
	}
}
