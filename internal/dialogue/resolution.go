package dialogue

import (
	"context"
	"log/slog"
	"time"

	"github.com/washdeskhq/washdesk/internal/resolution"
	"github.com/washdeskhq/washdesk/internal/session"
)

// HandleResolution folds an asynchronous resolution result back into the
// session. The result applies only while the session still sits in
// processing_problem; a late result for a session that moved on is
// discarded so it cannot clobber newer state. The caller additionally
// compares ResolveRequest.Seq against the committed session before calling
// this, which catches a session that cycled back into processing.
func (e *Engine) HandleResolution(ctx context.Context, sess *session.Session, res resolution.Result, now time.Time) Outcome {
	out := Outcome{}
	if session.Normalize(sess.Stage) != session.StageProcessingProblem {
		slog.Info("discarding late resolution result", "session", sess.Key, "stage", sess.Stage)
		return out
	}

	if !res.Found {
		// An exhausted chain is technician handoff, never a raw failure.
		e.escalateTechnician(ctx, &out, sess, now, "No automated resolution found.", session.StageTechnicianEscalated)
		e.finishTurn(&out, now)
		return out
	}

	out.setStage(session.StageWaitingFeedback)
	out.setData(session.DataResolution, res.ResponseText)
	out.setData(session.DataSource, res.Source)
	if res.ThreadID != "" {
		out.setData(session.DataThreadID, res.ThreadID)
	}
	out.reply(res.ResponseText + "\n\n" + feedbackPrompt)
	e.finishTurn(&out, now)
	return out
}
