package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/channels"
	"github.com/washdeskhq/washdesk/internal/config"
	"github.com/washdeskhq/washdesk/internal/dialogue"
	"github.com/washdeskhq/washdesk/internal/dispatch"
	"github.com/washdeskhq/washdesk/internal/escalate"
	"github.com/washdeskhq/washdesk/internal/identity"
	"github.com/washdeskhq/washdesk/internal/resolution"
	"github.com/washdeskhq/washdesk/internal/session"
	"github.com/washdeskhq/washdesk/internal/ticket"
)

const consumerKey = "telegram:2001"

// newTestRuntime wires a gatewayRuntime the way runGateway does, with no
// channels registered and a keyword-only resolution chain.
func newTestRuntime(t *testing.T) *gatewayRuntime {
	t.Helper()
	dir := identity.NewDirectory([]identity.Customer{
		{ID: "c1", Name: "Dana", Site: "Haifa North Wash", Phones: []string{"0541112233"}},
	})
	resolver := identity.NewResolver(dir, identity.DefaultPhoneConfig())
	engine := dialogue.NewEngine(resolver, ticket.NewIssuer("", ticket.NewMemorySequence(5000)), dialogue.DefaultConfig())

	cat := resolution.NewCatalog([]resolution.CatalogEntry{
		{Label: "Entry gate stuck", Steps: []string{"Clear the gate track"}},
		{Label: "Payment terminal declined cards", Steps: []string{"Restart the terminal"}},
	})
	resEngine := resolution.NewEngine(cat, nil, nil, resolution.EngineConfig{})

	cfg := config.Default()
	msgBus := bus.NewMessageBus()
	rt := &gatewayRuntime{
		cfg:        cfg,
		sessions:   session.NewStore(session.StoreConfig{}),
		engine:     engine,
		resolution: resEngine,
		dispatcher: dispatch.New(channels.NewManager(), dispatch.NewLogMailer(cfg.Mail), nil, msgBus),
		msgBus:     msgBus,
		dedupe:     bus.NewDedupeCache(time.Minute, 128),
	}
	rt.scheduler = escalate.NewScheduler(rt.onEscalation)
	t.Cleanup(rt.scheduler.Stop)
	return rt
}

// place commits a session into a stage with data, as if a conversation had
// walked there.
func place(rt *gatewayRuntime, key string, st session.Stage, data map[string]string) *session.Session {
	now := time.Now()
	var committed *session.Session
	rt.sessions.WithLock(key, func() {
		rt.sessions.GetOrCreate(key, now)
		committed = rt.sessions.Update(key, session.Patch{
			Stage: session.StagePtr(st),
			Data:  data,
		}, now)
	})
	return committed
}

func waitForStage(t *testing.T, rt *gatewayRuntime, key string, want session.Stage) *session.Session {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess := rt.sessions.Get(key); sess != nil && session.Normalize(sess.Stage) == want {
			return sess
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sess := rt.sessions.Get(key); sess != nil {
		t.Fatalf("session stage = %q, want %q", sess.Stage, want)
	}
	t.Fatalf("session %q missing, want stage %q", key, want)
	return nil
}

func TestConfirmationTimeoutRunsResolutionChain(t *testing.T) {
	rt := newTestRuntime(t)
	place(rt, consumerKey, session.StageProblemConfirmation, map[string]string{
		session.DataPendingText: "payment terminal card reader declined",
	})

	rt.onEscalation(consumerKey, session.StageProblemConfirmation)

	// The silent confirmation must travel the whole path: auto-approve,
	// strategy chain, feedback prompt. Stuck in processing means the chain
	// never launched.
	sess := waitForStage(t, rt, consumerKey, session.StageWaitingFeedback)
	if sess.Data[session.DataResolution] == "" {
		t.Fatal("no resolution payload recorded after timeout auto-approve")
	}
}

func TestStaleResolutionResultDropped(t *testing.T) {
	rt := newTestRuntime(t)
	sess := place(rt, consumerKey, session.StageProcessingProblem, map[string]string{
		session.DataPendingText: "gate stuck",
	})

	// Same stage, older sequence: a chain started before the session was
	// recommitted must not land its result.
	stale := dialogue.ResolveRequest{Description: "payment terminal card reader declined", Seq: sess.Seq - 1}
	rt.runResolution(context.Background(), consumerKey, stale)
	if got := session.Normalize(rt.sessions.Get(consumerKey).Stage); got != session.StageProcessingProblem {
		t.Fatalf("stale result applied, stage = %q", got)
	}

	fresh := dialogue.ResolveRequest{Description: "payment terminal card reader declined", Seq: sess.Seq}
	rt.runResolution(context.Background(), consumerKey, fresh)
	if got := session.Normalize(rt.sessions.Get(consumerKey).Stage); got != session.StageWaitingFeedback {
		t.Fatalf("fresh result not applied, stage = %q", got)
	}
}
