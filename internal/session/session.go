package session

import (
	"strings"
	"time"

	"github.com/washdeskhq/washdesk/internal/identity"
)

// Sender tags who produced a turn.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderBot      Sender = "bot"
)

// Turn is one entry in the append-only conversation history.
type Turn struct {
	At     time.Time `json:"at"`
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
}

// Data bag keys. The bag is a flat string map: shallow-merged on update,
// wholesale-cleared only on explicit stage reset.
const (
	DataPendingText  = "pending_text"  // accumulated free text awaiting confirmation
	DataAttachments  = "attachments"   // newline-joined attachment refs, capped
	DataTicketID     = "ticket_id"     // issued ticket for the active request
	DataResolution   = "resolution"    // resolution payload shown to the customer
	DataSource       = "source"        // resolution strategy tag: assistant | ai | keywords
	DataThreadID     = "thread_id"     // AI assistant thread bound to this conversation
	DataCandidateID  = "candidate_id"  // customer awaiting explicit identity confirmation
	DataIDAttempts   = "id_attempts"   // failed free-text identification attempts
	DataGuestDetails = "guest_details" // contact details collected from an unidentified visitor
	DataSavedIntent  = "saved_intent"  // menu choice remembered across the identity exchange
)

// MaxAttachments bounds the accumulated attachment refs per request.
const MaxAttachments = 4

// Session is the per-identity conversation context tracked by the engine.
// One live session exists per key; sessions are process-local by design.
type Session struct {
	Key            string             `json:"key"`
	Customer       *identity.Customer `json:"-"` // weak reference, never mutated here
	Stage          Stage              `json:"stage"`
	History        []Turn             `json:"history"`
	Data           map[string]string  `json:"data"`
	Seq            uint64             `json:"seq"` // bumped on every committed update
	CreatedAt      time.Time          `json:"created"`
	LastActivityAt time.Time          `json:"last_activity"`
}

// Attachments returns the accumulated attachment refs from the data bag.
func (s *Session) Attachments() []string {
	raw := s.Data[DataAttachments]
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

// StageTurns returns the customer turns recorded since the session last
// entered the current stage. Used by the timeout salvage heuristics.
func (s *Session) StageTurns(since time.Time) []Turn {
	var out []Turn
	for _, t := range s.History {
		if t.Sender == SenderCustomer && !t.At.Before(since) {
			out = append(out, t)
		}
	}
	return out
}

// clone returns a deep-enough copy for handing to callers outside the
// store lock. Customer is shared on purpose (immutable reference data).
func (s *Session) clone() *Session {
	cp := *s
	cp.History = make([]Turn, len(s.History))
	copy(cp.History, s.History)
	cp.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		cp.Data[k] = v
	}
	return &cp
}
