package hazard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-ai/internal/bus"
)

// Bus content types the hazard core consumes. The flood/scout batch
// types are declared here with the same values the collector packages
// declare on their side; this file documents the wire contract between
// C4 and its two producers as C4 reads it.
const (
	ContentFloodDataBatch   = "flood_data_batch"
	ContentScoutReportBatch = "scout_report_batch"
	ContentTriggerFusion    = "trigger_fusion"
)

// Listen services the selfID mailbox until ctx is canceled: INFORM
// batches update the caches and trigger a coalesced pass; a direct
// REQUEST runs a pass synchronously and replies CONFIRM or FAILURE.
func (e *Engine) Listen(ctx context.Context, b *bus.Bus, selfID string) {
	for {
		env, ok, err := b.Receive(ctx, selfID, 1*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if !ok {
			continue
		}
		e.handle(ctx, b, env)
	}
}

func (e *Engine) handle(ctx context.Context, b *bus.Bus, env bus.Envelope) {
	switch env.Performative {
	case bus.INFORM:
		e.handleInform(env)
	case bus.REQUEST:
		e.handleRequest(ctx, b, env)
	}
}

func (e *Engine) handleInform(env bus.Envelope) {
	switch env.ContentType {
	case ContentFloodDataBatch:
		samples, ok := env.Payload.([]HydroSample)
		if !ok {
			e.log.Warn("flood_data_batch payload had unexpected shape")
			return
		}
		for _, s := range samples {
			e.UpdateHydroSample(s)
		}
		e.TriggerFusion()
	case ContentScoutReportBatch:
		payload, ok := env.Payload.(map[string]any)
		if !ok {
			e.log.Warn("scout_report_batch payload had unexpected shape")
			return
		}
		reports, ok := payload["reports"].([]ScoutReport)
		if !ok {
			e.log.Warn("scout_report_batch payload missing reports")
			return
		}
		for _, r := range reports {
			e.UpdateScoutReport(r)
		}
		e.TriggerFusion()
	default:
		e.log.Debug("hazard: ignoring unrecognized INFORM content type", zap.String("content_type", env.ContentType))
	}
}

func (e *Engine) handleRequest(ctx context.Context, b *bus.Bus, env bus.Envelope) {
	if env.ContentType != ContentTriggerFusion {
		return
	}

	result, err := e.RunFusionPass(ctx)
	reply := bus.Envelope{
		SenderID:       e.selfIDFor(env),
		ReceiverID:     env.SenderID,
		ConversationID: env.ConversationID,
	}
	if err != nil {
		reply.Performative = bus.FAILURE
		reply.ContentType = "fusion_error"
		reply.Payload = err.Error()
	} else {
		reply.Performative = bus.CONFIRM
		reply.ContentType = "fusion_result"
		reply.Payload = result
	}
	_ = b.Send(reply)
}

// selfIDFor is a small indirection so tests can construct an Engine
// without wiring a bus identity; it falls back to the request's
// receiver id, which is always the hazard core's own mailbox id.
func (e *Engine) selfIDFor(env bus.Envelope) string {
	return env.ReceiverID
}
