package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/escalate"
	"github.com/washdeskhq/washdesk/internal/session"
)

// HandleTimeout applies the fallback policy when a grace timer fires.
// The policy is chosen by the session's *current* stage, not the stage at
// arm time: a customer reply may have raced the timer and moved the session
// on, in which case the armed stage is stale and the fire is a no-op for
// stages without a policy.
func (e *Engine) HandleTimeout(ctx context.Context, sess *session.Session, armedStage session.Stage, now time.Time) Outcome {
	out := Outcome{}
	stage := session.Normalize(sess.Stage)
	if stage != armedStage {
		slog.Debug("timer fired on a moved session", "session", sess.Key, "armed", armedStage, "current", stage)
	}

	switch stage {
	case session.StageWaitingFeedback:
		// No feedback means unresolved: hand off to a technician and close
		// the conversation.
		e.escalateTechnician(ctx, &out, sess, now, "No feedback received within the grace period; assuming unresolved.", session.StageCompleted)

	case session.StageWaitingTrainingFeedback:
		out.setStage(session.StageCompleted)
		out.reply(trainingExpandedText)

	case session.StageProblemConfirmation:
		// Silence counts as consent: auto-approve the pending payload.
		e.startResolution(&out, sess.Data[session.DataPendingText], sess.Data[session.DataThreadID])

	case session.StageDamageConfirmation:
		e.finalizeRequest(ctx, &out, sess, now, bus.KindDamage, sess.Data[session.DataPendingText])

	case session.StageDamagePhoto:
		e.salvageOrMenu(ctx, &out, sess, now, bus.KindDamage)
	case session.StageOrderRequest:
		e.salvageOrMenu(ctx, &out, sess, now, bus.KindOrder)
	case session.StageTrainingRequest:
		e.salvageOrMenu(ctx, &out, sess, now, bus.KindTraining)
	case session.StageGeneralOfficeRequest:
		e.salvageOrMenu(ctx, &out, sess, now, bus.KindGeneralOffice)

	default:
		return out
	}

	e.finishTurn(&out, now)
	return out
}

// salvageOrMenu decides what to do with a half-finished request: if the
// accumulated turns carry enough substance, submit a best-effort request;
// otherwise give up and return to menu.
func (e *Engine) salvageOrMenu(ctx context.Context, out *Outcome, sess *session.Session, now time.Time, kind bus.RequestKind) {
	text := salvageText(sess)
	if (kind == bus.KindDamage && len(sess.Attachments()) > 0) || escalate.WorthSalvaging(text) {
		e.finalizeRequest(ctx, out, sess, now, kind, text)
		// Replace the standard ack with the salvage wording and close out:
		// a salvaged submission never opens a follow-up exchange.
		out.Replies = []string{salvagedText(out.Patch.Data[session.DataTicketID])}
		out.setStage(session.StageCompleted)
		return
	}
	out.Patch.ResetData = true
	out.setStage(session.StageMenu)
	out.reply(backToMenuText)
	out.reply(menuText)
}

// salvageText gathers what the customer typed toward the current request:
// the pending payload when present, else the recent customer turns joined.
func salvageText(sess *session.Session) string {
	if p := sess.Data[session.DataPendingText]; p != "" {
		return p
	}
	turns := sess.History
	var parts []string
	for i := len(turns) - 1; i >= 0 && len(parts) < 3; i-- {
		if turns[i].Sender == session.SenderCustomer {
			parts = append([]string{turns[i].Text}, parts...)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
