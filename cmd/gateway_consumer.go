package cmd

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/config"
	"github.com/washdeskhq/washdesk/internal/dialogue"
	"github.com/washdeskhq/washdesk/internal/dispatch"
	"github.com/washdeskhq/washdesk/internal/escalate"
	"github.com/washdeskhq/washdesk/internal/resolution"
	"github.com/washdeskhq/washdesk/internal/session"
	"github.com/washdeskhq/washdesk/internal/telemetry"
	"github.com/washdeskhq/washdesk/pkg/protocol"
)

// gatewayRuntime binds the dialogue core to its drivers: the inbound consumer, the
// escalation scheduler, the async resolution chain, and the sweeper. All
// session mutation funnels through commit, under the per-key lock.
type gatewayRuntime struct {
	cfg        *config.Config
	sessions   *session.Store
	engine     *dialogue.Engine
	resolution *resolution.Engine
	dispatcher *dispatch.Dispatcher
	scheduler  *escalate.Scheduler
	msgBus     *bus.MessageBus
	dedupe     *bus.DedupeCache
}

// consumeInbound drains the message bus until ctx ends. Events for
// different sessions run concurrently; the per-key lock keeps one
// conversation strictly ordered.
func (rt *gatewayRuntime) consumeInbound(ctx context.Context) {
	slog.Info("inbound consumer started")
	for {
		ev, ok := rt.msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if rt.dedupe.IsDuplicate(ev.Channel + ":" + ev.MessageID) {
			slog.Debug("duplicate inbound dropped", "channel", ev.Channel, "message_id", ev.MessageID)
			continue
		}
		go rt.processEvent(ctx, ev)
	}
}

func (rt *gatewayRuntime) processEvent(ctx context.Context, ev bus.InboundEvent) {
	ctx, span := telemetry.Tracer().Start(ctx, "inbound.process", trace.WithAttributes(
		attribute.String("channel", ev.Channel),
	))
	defer span.End()

	key := ev.IdentityKey()
	now := time.Now()

	// A customer message always supersedes a pending escalation.
	rt.scheduler.Cancel(key)

	var out dialogue.Outcome
	var updated *session.Session
	rt.sessions.WithLock(key, func() {
		sess, created := rt.sessions.GetOrCreate(key, now)
		if created {
			slog.Info("session opened", "key", key)
		}
		out = rt.engine.Handle(ctx, ev, sess, now)
		updated = rt.sessions.Update(key, out.Patch, now)
	})
	if updated == nil {
		return
	}
	span.SetAttributes(attribute.String("stage", string(updated.Stage)))

	rt.deliver(ctx, key, out)
	rt.armIfNeeded(key, updated.Stage)

	rt.startResolution(ctx, key, out, updated)

	rt.msgBus.Broadcast(bus.Event{
		Name: protocol.EventSessionUpdated,
		Payload: map[string]interface{}{
			"key":   key,
			"stage": string(updated.Stage),
		},
	})
}

// startResolution launches the strategy chain for an outcome that asked for
// it, stamping the request with the sequence of the commit that put the
// session into processing.
func (rt *gatewayRuntime) startResolution(ctx context.Context, key string, out dialogue.Outcome, committed *session.Session) {
	if out.Resolve == nil {
		return
	}
	req := *out.Resolve
	req.Seq = committed.Seq
	go rt.runResolution(ctx, key, req)
}

// runResolution walks the strategy chain off the consumer goroutine and
// feeds the result back through the engine. A session that moved on while
// the chain ran discards the result.
func (rt *gatewayRuntime) runResolution(ctx context.Context, key string, req dialogue.ResolveRequest) {
	ctx, span := telemetry.Tracer().Start(ctx, "resolution.chain")
	defer span.End()

	res := rt.resolution.Resolve(ctx, req.Description, req.ThreadID)
	span.SetAttributes(
		attribute.Bool("found", res.Found),
		attribute.String("source", res.Source),
	)

	now := time.Now()
	var out dialogue.Outcome
	var updated *session.Session
	rt.sessions.WithLock(key, func() {
		sess := rt.sessions.Get(key)
		if sess == nil {
			return
		}
		if sess.Seq != req.Seq {
			// The session was committed again since this chain started. The
			// stage alone is not enough: a cancel and a fresh problem can
			// land it back in processing, and this result belongs to the
			// old one.
			slog.Info("discarding stale resolution result", "key", key, "want_seq", req.Seq, "have_seq", sess.Seq)
			return
		}
		out = rt.engine.HandleResolution(ctx, sess, res, now)
		if out.Empty() {
			return
		}
		updated = rt.sessions.Update(key, out.Patch, now)
	})
	if updated == nil {
		return
	}

	rt.deliver(ctx, key, out)
	rt.armIfNeeded(key, updated.Stage)
}

// onEscalation is the scheduler fallback: the grace period for armedStage
// elapsed with no customer reply.
func (rt *gatewayRuntime) onEscalation(key string, armedStage session.Stage) {
	ctx, span := telemetry.Tracer().Start(context.Background(), "escalation.fire", trace.WithAttributes(
		attribute.String("armed_stage", string(armedStage)),
	))
	defer span.End()

	now := time.Now()
	var out dialogue.Outcome
	var updated *session.Session
	rt.sessions.WithLock(key, func() {
		sess := rt.sessions.Get(key)
		if sess == nil {
			return
		}
		out = rt.engine.HandleTimeout(ctx, sess, armedStage, now)
		if out.Empty() {
			return
		}
		updated = rt.sessions.Update(key, out.Patch, now)
	})
	if updated == nil {
		return
	}

	slog.Info("escalation fired", "key", key, "armed_stage", armedStage, "stage", updated.Stage)
	rt.deliver(ctx, key, out)
	rt.armIfNeeded(key, updated.Stage)

	// A silent problem confirmation auto-approves the pending payload, so
	// the timeout path starts the resolution chain the same way an explicit
	// yes does.
	rt.startResolution(ctx, key, out, updated)

	rt.msgBus.Broadcast(bus.Event{
		Name: protocol.EventEscalationFired,
		Payload: map[string]interface{}{
			"key":   key,
			"stage": string(updated.Stage),
		},
	})
}

// deliver turns replies into send intents and executes the whole batch.
func (rt *gatewayRuntime) deliver(ctx context.Context, key string, out dialogue.Outcome) {
	intents := make([]bus.Intent, 0, len(out.Replies)+len(out.Intents))
	for _, text := range out.Replies {
		intents = append(intents, bus.SendReply{Address: key, Text: text})
	}
	intents = append(intents, out.Intents...)
	if len(intents) == 0 {
		return
	}
	slog.Debug("dispatching intents", "key", key, "intents", dispatch.Preview(intents))
	rt.dispatcher.Execute(ctx, intents)
}

func (rt *gatewayRuntime) armIfNeeded(key string, stage session.Stage) {
	if stage.NeedsGrace() {
		rt.scheduler.Arm(key, stage, rt.cfg.Grace())
	}
}

// sweepLoop expires idle sessions and stale dedupe entries.
func (rt *gatewayRuntime) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			swept := rt.sessions.Sweep(now)
			for _, key := range swept {
				rt.scheduler.Cancel(key)
			}
			if n := rt.dedupe.Sweep(now); n > 0 {
				slog.Debug("dedupe swept", "evicted", n)
			}
			if len(swept) > 0 {
				slog.Info("sessions swept", "count", len(swept))
				rt.msgBus.Broadcast(bus.Event{
					Name:    protocol.EventSessionSwept,
					Payload: map[string]interface{}{"keys": swept},
				})
			}
		}
	}
}
