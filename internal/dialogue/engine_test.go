package dialogue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/identity"
	"github.com/washdeskhq/washdesk/internal/resolution"
	"github.com/washdeskhq/washdesk/internal/session"
	"github.com/washdeskhq/washdesk/internal/ticket"
)

const testKey = "telegram:1001"

type harness struct {
	store *session.Store
	eng   *Engine
	now   time.Time
}

func newHarness() *harness {
	dir := identity.NewDirectory([]identity.Customer{
		{ID: "c1", Name: "Dana", Site: "Haifa North Wash", Phones: []string{"0541112233"}, Email: "dana@example.com"},
		{ID: "c2", Name: "Omer", Site: "Tel Aviv Marina Wash", Phones: []string{"0547654321"}},
	})
	resolver := identity.NewResolver(dir, identity.DefaultPhoneConfig())
	issuer := ticket.NewIssuer("", ticket.NewMemorySequence(5000))
	return &harness{
		store: session.NewStore(session.StoreConfig{}),
		eng:   NewEngine(resolver, issuer, DefaultConfig()),
		now:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

// send runs one inbound event through the engine and commits the patch,
// the way the gateway consumer does.
func (h *harness) send(text string, attachments ...string) (Outcome, *session.Session) {
	sess, _ := h.store.GetOrCreate(testKey, h.now)
	ev := bus.InboundEvent{Channel: "telegram", Address: "1001", Text: text, AttachmentRefs: attachments, MessageID: "m"}
	out := h.eng.Handle(context.Background(), ev, sess, h.now)
	committed := h.store.Update(testKey, out.Patch, h.now)
	return out, committed
}

// place puts the session into a stage with given data, bypassing the flows.
func (h *harness) place(st session.Stage, data map[string]string, cust *identity.Customer) *session.Session {
	h.store.GetOrCreate(testKey, h.now)
	return h.store.Update(testKey, session.Patch{
		Stage:        session.StagePtr(st),
		Customer:     cust,
		BindCustomer: cust != nil,
		Data:         data,
	}, h.now)
}

func (h *harness) customer(id string) *identity.Customer {
	return h.eng.resolver.Directory().ByID(id)
}

func countIntents(out Outcome, name string) int {
	n := 0
	for _, i := range out.Intents {
		if i.IntentName() == name {
			n++
		}
	}
	return n
}

func TestIdentifyHighConfidenceBindsSilently(t *testing.T) {
	h := newHarness()

	out, sess := h.send("hi, this is haifa north station")
	if sess.Stage != session.StageMenu {
		t.Fatalf("stage = %q, want menu", sess.Stage)
	}
	if sess.Customer == nil || sess.Customer.ID != "c1" {
		t.Fatalf("customer = %+v, want c1 bound", sess.Customer)
	}
	if len(out.Replies) == 0 || !strings.Contains(out.Replies[0], "Dana") {
		t.Errorf("first reply should greet the customer, got %q", out.Replies)
	}
}

func TestIdentifyMediumConfidenceNeedsConfirmation(t *testing.T) {
	h := newHarness()

	_, sess := h.send("haifa please")
	if sess.Stage != session.StageConfirmingIdentity {
		t.Fatalf("stage = %q, want confirming_identity", sess.Stage)
	}
	if sess.Customer != nil {
		t.Fatal("customer bound on medium confidence, want explicit confirmation first")
	}
	if sess.Data[session.DataCandidateID] != "c1" {
		t.Errorf("candidate = %q, want c1", sess.Data[session.DataCandidateID])
	}

	_, sess = h.send("yes")
	if sess.Stage != session.StageMenu || sess.Customer == nil || sess.Customer.ID != "c1" {
		t.Fatalf("after yes: stage=%q customer=%+v, want menu with c1", sess.Stage, sess.Customer)
	}
}

func TestIdentifyByPhone(t *testing.T) {
	h := newHarness()

	_, sess := h.send("972-54-111-2233")
	if sess.Stage != session.StageMenu || sess.Customer == nil || sess.Customer.ID != "c1" {
		t.Fatalf("stage=%q customer=%+v, want menu with c1", sess.Stage, sess.Customer)
	}
}

func TestIdentifyMissTwiceOffersGuest(t *testing.T) {
	h := newHarness()

	_, sess := h.send("xyzzy")
	if sess.Stage != session.StageIdentifying {
		t.Fatalf("after first miss stage = %q, want identifying", sess.Stage)
	}
	_, sess = h.send("qwerty")
	if sess.Stage != session.StageGuestDetails {
		t.Fatalf("after second miss stage = %q, want guest_details", sess.Stage)
	}

	out, sess := h.send("Need a quote, call me back: Avi 050-1234567")
	if sess.Stage != session.StageMenu {
		t.Fatalf("after guest details stage = %q, want menu", sess.Stage)
	}
	if countIntents(out, "send_operational_email") != 1 {
		t.Error("guest details should emit exactly one operational email")
	}
}

func TestSavedIntentHonoredAfterBind(t *testing.T) {
	h := newHarness()

	_, sess := h.send("1")
	if sess.Stage != session.StageIdentifying {
		t.Fatalf("stage = %q, want to stay in identifying", sess.Stage)
	}
	if sess.Data[session.DataSavedIntent] != "problem" {
		t.Fatalf("saved intent = %q, want problem", sess.Data[session.DataSavedIntent])
	}

	_, sess = h.send("haifa north wash here")
	if sess.Stage != session.StageProblemDescription {
		t.Fatalf("stage = %q, want problem_description straight after binding", sess.Stage)
	}
}

func TestMenuSelectionOpensProblemFlowWithoutTimer(t *testing.T) {
	h := newHarness()
	h.place(session.StageMenu, nil, h.customer("c1"))

	out, sess := h.send("1")
	if sess.Stage != session.StageProblemDescription {
		t.Fatalf("stage = %q, want problem_description", sess.Stage)
	}
	if sess.Stage.NeedsGrace() {
		t.Error("problem_description must not arm a grace timer")
	}
	if out.Resolve != nil {
		t.Error("no resolution may start before a description is given")
	}
}

func TestProblemFlowApproval(t *testing.T) {
	h := newHarness()
	h.place(session.StageMenu, nil, h.customer("c1"))

	h.send("1")
	_, sess := h.send("the brush motor stops mid-cycle")
	if sess.Stage != session.StageProblemConfirmation {
		t.Fatalf("stage = %q, want problem_confirmation", sess.Stage)
	}
	if !sess.Stage.NeedsGrace() {
		t.Error("problem_confirmation must arm a grace timer")
	}

	out, sess := h.send("yes")
	if sess.Stage != session.StageProcessingProblem {
		t.Fatalf("stage = %q, want processing_problem", sess.Stage)
	}
	if out.Resolve == nil || out.Resolve.Description != "the brush motor stops mid-cycle" {
		t.Fatalf("Resolve = %+v, want the pending description", out.Resolve)
	}
}

func TestAdditiveConfirmation(t *testing.T) {
	h := newHarness()
	h.place(session.StageProblemConfirmation,
		map[string]string{session.DataPendingText: "A"}, h.customer("c1"))

	_, sess := h.send("B")
	if got := sess.Data[session.DataPendingText]; got != "A\n+ B" {
		t.Fatalf("pending = %q, want %q", got, "A\n+ B")
	}

	_, sess = h.send("C")
	if got := sess.Data[session.DataPendingText]; got != "A\n+ B\n+ C" {
		t.Fatalf("pending = %q, want %q", got, "A\n+ B\n+ C")
	}
}

func TestAttachmentLimitNoStateChange(t *testing.T) {
	h := newHarness()
	full := strings.Join([]string{"p1", "p2", "p3", "p4"}, "\n")
	h.place(session.StageDamagePhoto,
		map[string]string{session.DataAttachments: full}, h.customer("c1"))

	out, sess := h.send("", "p5")
	if sess.Stage != session.StageDamagePhoto {
		t.Fatalf("stage = %q, want unchanged damage_photo", sess.Stage)
	}
	if got := sess.Data[session.DataAttachments]; got != full {
		t.Fatalf("attachments = %q, want unchanged", got)
	}
	if len(out.Replies) != 1 || !strings.Contains(out.Replies[0], "up to 4") {
		t.Errorf("want a single guidance reply, got %q", out.Replies)
	}
}

func TestDamageFlowFinalize(t *testing.T) {
	h := newHarness()
	h.place(session.StageDamagePhoto, nil, h.customer("c1"))

	h.send("", "photo-1", "photo-2")
	_, sess := h.send("car clipped the entry gate rail")
	if sess.Stage != session.StageDamageConfirmation {
		t.Fatalf("stage = %q, want damage_confirmation", sess.Stage)
	}

	out, sess := h.send("yes")
	if sess.Stage != session.StageCompleted {
		t.Fatalf("stage = %q, want completed", sess.Stage)
	}
	if sess.Data[session.DataTicketID] != "SR-5001" {
		t.Errorf("ticket = %q, want SR-5001", sess.Data[session.DataTicketID])
	}
	if countIntents(out, "send_operational_email") != 1 ||
		countIntents(out, "send_customer_confirmation") != 1 ||
		countIntents(out, "record_ledger_row") != 1 {
		t.Errorf("unexpected intent set: %+v", out.Intents)
	}
	for _, i := range out.Intents {
		if m, ok := i.(bus.SendOperationalEmail); ok {
			if m.Kind != bus.KindDamage || len(m.Attachments) != 2 {
				t.Errorf("email = %+v, want damage kind with 2 attachments", m)
			}
		}
	}
}

func TestWaitingFeedbackTimeoutEscalatesOnce(t *testing.T) {
	h := newHarness()
	sess := h.place(session.StageWaitingFeedback, map[string]string{
		session.DataPendingText: "gate stuck halfway",
		session.DataResolution:  "1. Clear the track",
	}, h.customer("c1"))

	out := h.eng.HandleTimeout(context.Background(), sess, session.StageWaitingFeedback, h.now)
	if out.Patch.Stage == nil || *out.Patch.Stage != session.StageCompleted {
		t.Fatalf("stage patch = %v, want completed", out.Patch.Stage)
	}
	if got := countIntents(out, "send_operational_email"); got != 1 {
		t.Fatalf("technician emails = %d, want exactly 1", got)
	}
	if len(out.Replies) != 1 {
		t.Fatalf("replies = %d (%q), want exactly 1", len(out.Replies), out.Replies)
	}
	mail := out.Intents[0].(bus.SendOperationalEmail)
	if mail.Kind != bus.KindTechnician || !strings.Contains(mail.Payload, "gate stuck halfway") {
		t.Errorf("email = %+v, want technician kind carrying the problem", mail)
	}
}

func TestTimeoutOnMovedSessionIsNoop(t *testing.T) {
	h := newHarness()
	sess := h.place(session.StageMenu, nil, h.customer("c1"))

	out := h.eng.HandleTimeout(context.Background(), sess, session.StageWaitingFeedback, h.now)
	if !out.Empty() {
		t.Fatalf("outcome = %+v, want no-op for a session that moved on", out)
	}
}

func TestProblemConfirmationTimeoutAutoApproves(t *testing.T) {
	h := newHarness()
	sess := h.place(session.StageProblemConfirmation,
		map[string]string{session.DataPendingText: "no soap coming out"}, h.customer("c1"))

	out := h.eng.HandleTimeout(context.Background(), sess, session.StageProblemConfirmation, h.now)
	if out.Patch.Stage == nil || *out.Patch.Stage != session.StageProcessingProblem {
		t.Fatalf("stage patch = %v, want processing_problem", out.Patch.Stage)
	}
	if out.Resolve == nil || out.Resolve.Description != "no soap coming out" {
		t.Fatalf("Resolve = %+v, want auto-approved pending text", out.Resolve)
	}
}

func TestRequestTimeoutSalvage(t *testing.T) {
	h := newHarness()
	h.place(session.StageOrderRequest, nil, h.customer("c1"))
	h.send("brush")
	sess := h.store.Get(testKey)

	out := h.eng.HandleTimeout(context.Background(), sess, session.StageOrderRequest, h.now)
	if out.Patch.Stage == nil || *out.Patch.Stage != session.StageCompleted {
		t.Fatalf("stage patch = %v, want completed (salvaged)", out.Patch.Stage)
	}
	if countIntents(out, "send_operational_email") != 1 {
		t.Error("salvage should submit one operational email")
	}
}

func TestRequestTimeoutRevertsToMenuWithoutSubstance(t *testing.T) {
	h := newHarness()
	h.place(session.StageOrderRequest, nil, h.customer("c1"))
	h.send("hmm")
	sess := h.store.Get(testKey)

	out := h.eng.HandleTimeout(context.Background(), sess, session.StageOrderRequest, h.now)
	if out.Patch.Stage == nil || *out.Patch.Stage != session.StageMenu {
		t.Fatalf("stage patch = %v, want menu", out.Patch.Stage)
	}
	if len(out.Intents) != 0 {
		t.Errorf("intents = %+v, want none", out.Intents)
	}
}

func TestResolutionFoundAsksForFeedback(t *testing.T) {
	h := newHarness()
	sess := h.place(session.StageProcessingProblem,
		map[string]string{session.DataPendingText: "no power"}, h.customer("c1"))

	out := h.eng.HandleResolution(context.Background(), sess,
		resolution.Result{Found: true, ResponseText: "1. Check the breaker", Source: resolution.SourceKeywords, ThreadID: "th-9"}, h.now)
	if out.Patch.Stage == nil || *out.Patch.Stage != session.StageWaitingFeedback {
		t.Fatalf("stage patch = %v, want waiting_feedback", out.Patch.Stage)
	}
	if out.Patch.Data[session.DataThreadID] != "th-9" {
		t.Errorf("thread id not stored: %+v", out.Patch.Data)
	}
	if len(out.Replies) != 1 || !strings.Contains(out.Replies[0], "Check the breaker") {
		t.Errorf("reply = %q, want steps plus feedback prompt", out.Replies)
	}
}

func TestResolutionNotFoundEscalates(t *testing.T) {
	h := newHarness()
	sess := h.place(session.StageProcessingProblem,
		map[string]string{session.DataPendingText: "weird noise"}, h.customer("c1"))

	out := h.eng.HandleResolution(context.Background(), sess, resolution.Result{}, h.now)
	if out.Patch.Stage == nil || *out.Patch.Stage != session.StageTechnicianEscalated {
		t.Fatalf("stage patch = %v, want technician_escalated", out.Patch.Stage)
	}
	if countIntents(out, "send_operational_email") != 1 {
		t.Error("not-found must produce exactly one technician email")
	}
}

func TestLateResolutionDiscarded(t *testing.T) {
	h := newHarness()
	sess := h.place(session.StageMenu, nil, h.customer("c1"))

	out := h.eng.HandleResolution(context.Background(), sess,
		resolution.Result{Found: true, ResponseText: "stale"}, h.now)
	if !out.Empty() {
		t.Fatalf("outcome = %+v, want late result discarded", out)
	}
}

func TestWaitingFeedbackReplies(t *testing.T) {
	h := newHarness()

	t.Run("positive closes", func(t *testing.T) {
		h.place(session.StageWaitingFeedback,
			map[string]string{session.DataPendingText: "no power"}, h.customer("c1"))
		out, sess := h.send("yes, solved, thanks!")
		if sess.Stage != session.StageCompleted {
			t.Fatalf("stage = %q, want completed", sess.Stage)
		}
		if countIntents(out, "record_ledger_row") != 1 {
			t.Error("resolved feedback should record one ledger row")
		}
	})

	t.Run("negative escalates", func(t *testing.T) {
		h.place(session.StageWaitingFeedback,
			map[string]string{session.DataPendingText: "no power"}, h.customer("c1"))
		out, sess := h.send("still not working")
		if sess.Stage != session.StageTechnicianEscalated {
			t.Fatalf("stage = %q, want technician_escalated", sess.Stage)
		}
		if countIntents(out, "send_operational_email") != 1 {
			t.Error("negative feedback should produce one technician email")
		}
	})
}

func TestCompletedStillAcceptsFeedback(t *testing.T) {
	h := newHarness()

	t.Run("negative escalates", func(t *testing.T) {
		h.place(session.StageCompleted,
			map[string]string{session.DataPendingText: "no power"}, h.customer("c1"))
		out, sess := h.send("no, still broken")
		if sess.Stage != session.StageTechnicianEscalated {
			t.Fatalf("stage = %q, want technician_escalated", sess.Stage)
		}
		if countIntents(out, "send_operational_email") != 1 {
			t.Error("late negative feedback should produce one technician email")
		}
	})

	t.Run("positive acknowledged", func(t *testing.T) {
		h.place(session.StageCompleted, nil, h.customer("c1"))
		_, sess := h.send("yes, all good now")
		if sess.Stage != session.StageCompleted {
			t.Fatalf("stage = %q, want completed", sess.Stage)
		}
	})

	t.Run("menu choice still works", func(t *testing.T) {
		h.place(session.StageCompleted, nil, h.customer("c1"))
		_, sess := h.send("1")
		if sess.Stage == session.StageCompleted || sess.Stage == session.StageMenu {
			t.Fatalf("stage = %q, want a flow entry", sess.Stage)
		}
	})
}

func TestCancelReturnsToMenuAndResets(t *testing.T) {
	h := newHarness()
	h.place(session.StageOrderConfirmation,
		map[string]string{session.DataPendingText: "two brushes"}, h.customer("c1"))

	_, sess := h.send("cancel")
	if sess.Stage != session.StageMenu {
		t.Fatalf("stage = %q, want menu", sess.Stage)
	}
	if len(sess.Data) != 0 {
		t.Errorf("data bag = %+v, want cleared on explicit reset", sess.Data)
	}
}

func TestTrainingFlowFeedback(t *testing.T) {
	h := newHarness()
	h.place(session.StageTrainingConfirmation,
		map[string]string{session.DataPendingText: "foam lance training for two new hires"}, h.customer("c1"))

	_, sess := h.send("yes")
	if sess.Stage != session.StageWaitingTrainingFeedback {
		t.Fatalf("stage = %q, want waiting_training_feedback", sess.Stage)
	}

	out, sess := h.send("no, need more")
	if sess.Stage != session.StageCompleted {
		t.Fatalf("stage = %q, want completed", sess.Stage)
	}
	if len(out.Replies) != 1 || !strings.Contains(out.Replies[0], "full training pack") {
		t.Errorf("reply = %q, want expanded material", out.Replies)
	}
}

func TestUnknownStageNormalizesToMenu(t *testing.T) {
	h := newHarness()
	h.place(session.Stage("bogus"), nil, h.customer("c1"))

	_, sess := h.send("anything")
	if sess.Stage != session.StageMenu {
		t.Fatalf("stage = %q, want menu for an unknown stored stage", sess.Stage)
	}
}
