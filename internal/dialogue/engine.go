// Package dialogue is the conversation state machine. Handle is a pure
// function of (inbound event, session snapshot): it returns a session patch,
// reply texts, and side-effect intents for the caller to commit and dispatch.
// The engine never talks to transport, mail, or storage itself, which keeps
// every transition testable without mocks for those.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/identity"
	"github.com/washdeskhq/washdesk/internal/session"
)

// TicketIssuer hands out service-request identifiers.
type TicketIssuer interface {
	Issue(ctx context.Context) (string, error)
}

// Config tunes per-stage input thresholds.
type Config struct {
	MinProblemText int // minimum free-text length for request/description stages
	MinGuestText   int // minimum free-text length for guest details
	MaxIDAttempts  int // failed free-text identifications before the guest offer
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{MinProblemText: 8, MinGuestText: 4, MaxIDAttempts: 2}
}

// ResolveRequest asks the caller to run the resolution chain asynchronously
// and feed the result back through HandleResolution. The caller stamps Seq
// with the session sequence at the commit that started processing; a result
// whose Seq no longer matches is stale and must be dropped, even when the
// session has cycled back into the same stage.
type ResolveRequest struct {
	Description string
	ThreadID    string
	Seq         uint64
}

// Outcome is everything a handler wants committed and dispatched:
// the session patch, replies to the customer, side-effect intents, and an
// optional resolution request.
type Outcome struct {
	Patch   session.Patch
	Replies []string
	Intents []bus.Intent
	Resolve *ResolveRequest
}

// Empty reports whether the outcome changes or emits nothing.
func (o *Outcome) Empty() bool {
	return o.Patch.Stage == nil && len(o.Patch.Data) == 0 && !o.Patch.ResetData &&
		!o.Patch.BindCustomer && len(o.Replies) == 0 && len(o.Intents) == 0 && o.Resolve == nil
}

func (o *Outcome) reply(text string) { o.Replies = append(o.Replies, text) }

func (o *Outcome) setStage(st session.Stage) { o.Patch.Stage = session.StagePtr(st) }

func (o *Outcome) setData(key, value string) {
	if o.Patch.Data == nil {
		o.Patch.Data = make(map[string]string)
	}
	o.Patch.Data[key] = value
}

func (o *Outcome) intent(i bus.Intent) { o.Intents = append(o.Intents, i) }

// Engine drives the dialogue. It reads the identity resolver and issues
// tickets, but performs no other I/O.
type Engine struct {
	resolver *identity.Resolver
	tickets  TicketIssuer
	cfg      Config
}

// NewEngine builds the dialogue engine.
func NewEngine(resolver *identity.Resolver, tickets TicketIssuer, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MinProblemText <= 0 {
		cfg.MinProblemText = def.MinProblemText
	}
	if cfg.MinGuestText <= 0 {
		cfg.MinGuestText = def.MinGuestText
	}
	if cfg.MaxIDAttempts <= 0 {
		cfg.MaxIDAttempts = def.MaxIDAttempts
	}
	return &Engine{resolver: resolver, tickets: tickets, cfg: cfg}
}

// Handle processes one inbound event against a session snapshot. The caller
// commits the returned patch under the session's key lock, sends the
// replies, dispatches the intents, and re-arms the grace timer when the new
// stage requires one.
func (e *Engine) Handle(ctx context.Context, ev bus.InboundEvent, sess *session.Session, now time.Time) Outcome {
	out := Outcome{Patch: session.Patch{Touch: true}}
	text := strings.TrimSpace(ev.Text)
	stage := session.Normalize(sess.Stage)
	if !sess.Stage.Valid() {
		// Rewrite the unknown stored value so the session lands in menu even
		// if this turn sets no other stage.
		out.setStage(session.StageMenu)
	}

	if text != "" {
		out.Patch.Turns = append(out.Patch.Turns, session.Turn{At: now, Sender: session.SenderCustomer, Text: text})
	} else if len(ev.AttachmentRefs) > 0 {
		out.Patch.Turns = append(out.Patch.Turns, session.Turn{At: now, Sender: session.SenderCustomer, Text: fmt.Sprintf("[%d attachment(s)]", len(ev.AttachmentRefs))})
	}

	// Explicit cancel returns to menu from any stage past identification.
	if isCancel(text) && !stage.Fragile() {
		e.resetToMenu(&out)
		e.finishTurn(&out, now)
		return out
	}

	switch stage {
	case session.StageIdentifying:
		e.handleIdentifying(&out, text, sess)
	case session.StageConfirmingIdentity:
		e.handleConfirmingIdentity(&out, text, sess)
	case session.StageGuestDetails:
		e.handleGuestDetails(&out, ev, text, sess)
	case session.StageMenu:
		e.handleMenu(&out, text)
	case session.StageProblemDescription:
		e.handleProblemDescription(&out, ev, text, sess)
	case session.StageProblemConfirmation:
		e.handleProblemConfirmation(&out, ev, text, sess)
	case session.StageProcessingProblem:
		out.reply(stillProcessingText)
	case session.StageWaitingFeedback:
		e.handleWaitingFeedback(ctx, &out, text, sess, now)
	case session.StageDamagePhoto:
		e.handleDamagePhoto(&out, ev, text, sess)
	case session.StageDamageConfirmation:
		e.handleConfirmation(ctx, &out, ev, text, sess, now, bus.KindDamage, "Damage report")
	case session.StageOrderRequest:
		e.handleRequestText(&out, text, session.StageOrderConfirmation, "Quote request", orderPrompt)
	case session.StageOrderConfirmation:
		e.handleConfirmation(ctx, &out, ev, text, sess, now, bus.KindOrder, "Quote request")
	case session.StageTrainingRequest:
		e.handleRequestText(&out, text, session.StageTrainingConfirmation, "Training request", trainingPrompt)
	case session.StageTrainingConfirmation:
		e.handleConfirmation(ctx, &out, ev, text, sess, now, bus.KindTraining, "Training request")
	case session.StageWaitingTrainingFeedback:
		e.handleTrainingFeedback(&out, text)
	case session.StageGeneralOfficeRequest:
		e.handleRequestText(&out, text, session.StageOfficeConfirmation, "Office inquiry", officePrompt)
	case session.StageOfficeConfirmation:
		e.handleConfirmation(ctx, &out, ev, text, sess, now, bus.KindGeneralOffice, "Office inquiry")
	case session.StageTechnicianEscalated:
		out.reply(techFollowupText)
		e.resetToMenu(&out)
	case session.StageCompleted:
		// Completed is soft-terminal: feedback keywords still count, so a
		// customer coming back with "still broken" reaches a technician
		// instead of the menu.
		switch {
		case isNegative(text):
			e.escalateTechnician(ctx, &out, sess, now, "Customer reports the problem persists after completion.", session.StageTechnicianEscalated)
		case isPositiveFeedback(text):
			out.reply(resolvedText)
		default:
			if c := parseChoice(text); c != ChoiceNone {
				e.enterFlow(&out, c)
			} else {
				e.resetToMenu(&out)
			}
		}
	}

	e.finishTurn(&out, now)
	return out
}

// finishTurn records the bot's replies in the session history.
func (e *Engine) finishTurn(out *Outcome, now time.Time) {
	for _, r := range out.Replies {
		out.Patch.Turns = append(out.Patch.Turns, session.Turn{At: now, Sender: session.SenderBot, Text: r})
	}
}

func (e *Engine) resetToMenu(out *Outcome) {
	out.Patch.ResetData = true
	out.setStage(session.StageMenu)
	out.reply(menuText)
}

// --- identification -------------------------------------------------------

func (e *Engine) handleIdentifying(out *Outcome, text string, sess *session.Session) {
	if text == "" {
		out.reply(identifyPrompt)
		return
	}
	if firstWord(text) == "guest" {
		out.setStage(session.StageGuestDetails)
		out.reply(guestPrompt)
		return
	}

	// A menu choice typed before identification is remembered and honored
	// right after binding.
	if c := parseChoice(text); c != ChoiceNone {
		out.setData(session.DataSavedIntent, choiceKey(c))
		out.reply(identifyPrompt)
		return
	}

	// A phone-shaped message gets the exact-match path first.
	if digits := strings.Map(keepDigit, text); len(digits) >= 7 {
		if c := e.resolver.ResolveByAddress(text); c != nil {
			e.bindCustomer(out, sess, c)
			return
		}
	}

	m := e.resolver.ResolveByFreeText(text)
	switch {
	case m == nil:
		e.identityMiss(out, sess)
	case m.Confidence == identity.ConfidenceHigh:
		// Only a high-confidence match binds silently.
		e.bindCustomer(out, sess, m.Customer)
	default:
		out.setData(session.DataCandidateID, m.Customer.ID)
		out.setStage(session.StageConfirmingIdentity)
		out.reply(confirmIdentityText(m.Customer))
	}
}

func (e *Engine) handleConfirmingIdentity(out *Outcome, text string, sess *session.Session) {
	candidate := e.resolver.Directory().ByID(sess.Data[session.DataCandidateID])

	switch {
	case isApproval(text) && candidate != nil:
		out.setData(session.DataCandidateID, "")
		e.bindCustomer(out, sess, candidate)
	case isNegative(text) || candidate == nil:
		out.setData(session.DataCandidateID, "")
		out.setStage(session.StageIdentifying)
		e.identityMiss(out, sess)
	default:
		// Anything else is treated as a fresh identification attempt.
		out.setData(session.DataCandidateID, "")
		out.setStage(session.StageIdentifying)
		e.handleIdentifying(out, text, sess)
	}
}

func (e *Engine) bindCustomer(out *Outcome, sess *session.Session, c *identity.Customer) {
	out.Patch.Customer = c
	out.Patch.BindCustomer = true
	out.setData(session.DataIDAttempts, "")
	out.reply(greetingText(c))

	if saved := parseChoice(sess.Data[session.DataSavedIntent]); saved != ChoiceNone {
		out.setData(session.DataSavedIntent, "")
		e.enterFlow(out, saved)
		return
	}
	out.setStage(session.StageMenu)
	out.reply(menuText)
}

func (e *Engine) identityMiss(out *Outcome, sess *session.Session) {
	attempts, _ := strconv.Atoi(sess.Data[session.DataIDAttempts])
	attempts++
	if attempts >= e.cfg.MaxIDAttempts {
		out.setData(session.DataIDAttempts, "")
		out.setStage(session.StageGuestDetails)
		out.reply(guestPrompt)
		return
	}
	out.setData(session.DataIDAttempts, strconv.Itoa(attempts))
	out.reply(identifyRetryPrompt)
}

func (e *Engine) handleGuestDetails(out *Outcome, ev bus.InboundEvent, text string, sess *session.Session) {
	if len([]rune(text)) < e.cfg.MinGuestText {
		if text == "" {
			out.reply(guestPrompt)
		} else {
			out.reply(guestTooShort)
		}
		return
	}
	payload := fmt.Sprintf("Guest inquiry from %s (%s):\n%s", ev.SenderName, ev.IdentityKey(), text)
	out.setData(session.DataGuestDetails, text)
	out.intent(bus.SendOperationalEmail{
		Kind:    bus.KindGuest,
		Subject: "Guest inquiry via " + ev.Channel,
		Payload: payload,
	})
	out.setStage(session.StageMenu)
	out.reply(guestThanks)
	out.reply(menuText)
}

// --- menu and flow entry --------------------------------------------------

func (e *Engine) handleMenu(out *Outcome, text string) {
	c := parseChoice(text)
	if c == ChoiceNone {
		out.reply(menuText)
		return
	}
	e.enterFlow(out, c)
}

// enterFlow clears any residue from a previous request before prompting.
// The assistant thread id survives: it is conversation-scoped, not
// request-scoped.
func (e *Engine) enterFlow(out *Outcome, c Choice) {
	for _, k := range []string{
		session.DataPendingText, session.DataAttachments, session.DataTicketID,
		session.DataResolution, session.DataSource, session.DataSavedIntent,
	} {
		out.setData(k, "")
	}
	switch c {
	case ChoiceProblem:
		out.setStage(session.StageProblemDescription)
		out.reply(problemPrompt)
	case ChoiceDamage:
		out.setStage(session.StageDamagePhoto)
		out.reply(damagePrompt)
	case ChoiceOrder:
		out.setStage(session.StageOrderRequest)
		out.reply(orderPrompt)
	case ChoiceTraining:
		out.setStage(session.StageTrainingRequest)
		out.reply(trainingPrompt)
	case ChoiceOffice:
		out.setStage(session.StageGeneralOfficeRequest)
		out.reply(officePrompt)
	}
}

func choiceKey(c Choice) string {
	switch c {
	case ChoiceProblem:
		return "problem"
	case ChoiceDamage:
		return "damage"
	case ChoiceOrder:
		return "order"
	case ChoiceTraining:
		return "training"
	case ChoiceOffice:
		return "office"
	}
	return ""
}

// --- problem flow ---------------------------------------------------------

func (e *Engine) handleProblemDescription(out *Outcome, ev bus.InboundEvent, text string, sess *session.Session) {
	if len(ev.AttachmentRefs) > 0 && !e.addAttachments(out, sess, ev.AttachmentRefs) {
		return
	}
	switch {
	case text == "" && len(ev.AttachmentRefs) > 0:
		out.reply(damageNeedText)
	case text == "":
		out.reply(problemPrompt)
	case len([]rune(text)) >= e.cfg.MinProblemText:
		out.setData(session.DataPendingText, text)
		out.setStage(session.StageProblemConfirmation)
		out.reply(confirmPendingText("Here's what I'll look into", text))
	default:
		out.reply(problemTooShort)
	}
}

func (e *Engine) handleProblemConfirmation(out *Outcome, ev bus.InboundEvent, text string, sess *session.Session) {
	if len(ev.AttachmentRefs) > 0 && !e.addAttachments(out, sess, ev.AttachmentRefs) {
		return
	}
	pending := sess.Data[session.DataPendingText]
	switch {
	case isApproval(text):
		e.startResolution(out, pending, sess.Data[session.DataThreadID])
	case text != "":
		// Additive dictation: new text extends the pending payload.
		pending = pending + "\n+ " + text
		out.setData(session.DataPendingText, pending)
		out.reply(confirmPendingText("Here's what I'll look into", pending))
	default:
		out.reply(confirmPendingText("Here's what I'll look into", pending))
	}
}

func (e *Engine) startResolution(out *Outcome, description, threadID string) {
	out.setStage(session.StageProcessingProblem)
	out.Resolve = &ResolveRequest{Description: description, ThreadID: threadID}
	out.reply(processingText)
}

func (e *Engine) handleWaitingFeedback(ctx context.Context, out *Outcome, text string, sess *session.Session, now time.Time) {
	switch {
	case isNegative(text):
		e.escalateTechnician(ctx, out, sess, now, "Customer reports the suggested steps did not solve the problem.", session.StageTechnicianEscalated)
	case isPositiveFeedback(text):
		out.setStage(session.StageCompleted)
		out.intent(bus.RecordLedgerRow{
			TicketID:     sess.Data[session.DataTicketID],
			At:           now,
			Kind:         bus.KindTechnician,
			CustomerName: customerName(sess),
			Summary:      sess.Data[session.DataPendingText],
			Resolved:     true,
		})
		out.reply(resolvedText)
	default:
		out.reply(feedbackRetryPrompt)
	}
}

// escalateTechnician issues a ticket and hands the problem to a human.
// Exactly one operational email and one reply come out of it.
func (e *Engine) escalateTechnician(ctx context.Context, out *Outcome, sess *session.Session, now time.Time, note string, next session.Stage) {
	id := e.issue(ctx)
	problem := sess.Data[session.DataPendingText]
	payload := "Problem: " + problem
	if res := sess.Data[session.DataResolution]; res != "" {
		payload += "\n\nSteps already suggested:\n" + res
	}
	payload += "\n\n" + note

	out.setData(session.DataTicketID, id)
	out.setStage(next)
	out.intent(bus.SendOperationalEmail{
		Kind:        bus.KindTechnician,
		Customer:    sess.Customer,
		TicketID:    id,
		Subject:     "Technician needed: " + summaryLine(problem),
		Payload:     payload,
		Attachments: sess.Attachments(),
	})
	out.intent(bus.RecordLedgerRow{
		TicketID:     id,
		At:           now,
		Kind:         bus.KindTechnician,
		CustomerName: customerName(sess),
		Summary:      problem,
		Resolved:     false,
	})
	out.reply(technicianText(id))
}

// --- damage / order / training / office flows -----------------------------

func (e *Engine) handleDamagePhoto(out *Outcome, ev bus.InboundEvent, text string, sess *session.Session) {
	if len(ev.AttachmentRefs) > 0 && !e.addAttachments(out, sess, ev.AttachmentRefs) {
		return
	}
	switch {
	case len([]rune(text)) >= e.cfg.MinProblemText:
		out.setData(session.DataPendingText, text)
		out.setStage(session.StageDamageConfirmation)
		out.reply(confirmPendingText("Damage report", text))
	case len(ev.AttachmentRefs) > 0:
		out.reply(damageNeedText)
	case text == "":
		out.reply(damagePrompt)
	default:
		out.reply(requestTooShort)
	}
}

func (e *Engine) handleRequestText(out *Outcome, text string, next session.Stage, label, prompt string) {
	switch {
	case len([]rune(text)) >= e.cfg.MinProblemText:
		out.setData(session.DataPendingText, text)
		out.setStage(next)
		out.reply(confirmPendingText(label, text))
	case text == "":
		out.reply(prompt)
	default:
		out.reply(requestTooShort)
	}
}

func (e *Engine) handleConfirmation(ctx context.Context, out *Outcome, ev bus.InboundEvent, text string, sess *session.Session, now time.Time, kind bus.RequestKind, label string) {
	if kind == bus.KindDamage && len(ev.AttachmentRefs) > 0 && !e.addAttachments(out, sess, ev.AttachmentRefs) {
		return
	}
	pending := sess.Data[session.DataPendingText]
	switch {
	case isApproval(text):
		e.finalizeRequest(ctx, out, sess, now, kind, pending)
	case text != "":
		pending = pending + "\n+ " + text
		out.setData(session.DataPendingText, pending)
		out.reply(confirmPendingText(label, pending))
	default:
		out.reply(confirmPendingText(label, pending))
	}
}

// finalizeRequest submits an approved intake: ticket, operational email,
// customer confirmation, ledger row. Training moves on to its feedback
// exchange; every other kind completes.
func (e *Engine) finalizeRequest(ctx context.Context, out *Outcome, sess *session.Session, now time.Time, kind bus.RequestKind, payload string) {
	id := e.issue(ctx)

	out.setData(session.DataTicketID, id)
	out.setData(session.DataPendingText, "")
	out.setData(session.DataAttachments, "")
	out.intent(bus.SendOperationalEmail{
		Kind:        kind,
		Customer:    sess.Customer,
		TicketID:    id,
		Subject:     fmt.Sprintf("%s %s: %s", kindSubject(kind), id, summaryLine(payload)),
		Payload:     payload,
		Attachments: sess.Attachments(),
	})
	out.intent(bus.SendCustomerConfirmation{
		Kind:     kind,
		Customer: sess.Customer,
		TicketID: id,
		Summary:  payload,
	})
	out.intent(bus.RecordLedgerRow{
		TicketID:     id,
		At:           now,
		Kind:         kind,
		CustomerName: customerName(sess),
		Summary:      payload,
		Resolved:     true,
	})

	if kind == bus.KindTraining {
		out.setStage(session.StageWaitingTrainingFeedback)
		out.reply(ticketAckText(id))
		out.reply(trainingMaterialText)
		return
	}
	out.setStage(session.StageCompleted)
	out.reply(ticketAckText(id))
}

func (e *Engine) handleTrainingFeedback(out *Outcome, text string) {
	switch {
	case isNegative(text):
		out.setStage(session.StageCompleted)
		out.reply(trainingExpandedText)
	case isPositiveFeedback(text):
		out.setStage(session.StageCompleted)
		out.reply(resolvedText)
	default:
		out.reply(trainingFeedbackRetry)
	}
}

// --- shared helpers -------------------------------------------------------

// addAttachments accumulates refs into the data bag, capped. Exceeding the
// cap produces a guidance reply and no state change.
func (e *Engine) addAttachments(out *Outcome, sess *session.Session, refs []string) bool {
	existing := sess.Attachments()
	if len(existing)+len(refs) > session.MaxAttachments {
		out.reply(attachmentLimitText)
		return false
	}
	out.setData(session.DataAttachments, strings.Join(append(existing, refs...), "\n"))
	return true
}

func (e *Engine) issue(ctx context.Context) string {
	id, err := e.tickets.Issue(ctx)
	if err != nil {
		slog.Error("ticket issue failed", "error", err)
		return ""
	}
	return id
}

func customerName(sess *session.Session) string {
	if sess.Customer != nil {
		return sess.Customer.Name
	}
	return "guest"
}

func summaryLine(text string) string {
	line := strings.SplitN(strings.TrimSpace(text), "\n", 2)[0]
	r := []rune(line)
	if len(r) > 60 {
		return string(r[:60]) + "..."
	}
	return line
}

func kindSubject(kind bus.RequestKind) string {
	switch kind {
	case bus.KindDamage:
		return "Damage report"
	case bus.KindOrder:
		return "Quote request"
	case bus.KindTraining:
		return "Training request"
	case bus.KindGeneralOffice:
		return "Office inquiry"
	}
	return "Request"
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}
