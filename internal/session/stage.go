// Package session — per-conversation state for the support workflow engine.
//
// A session is keyed by the normalized channel address:
//
//	{channel}:{address}
//
// Examples:
//
//	telegram:386246614
//	discord:98233412
//	whatsapp:972541112233
package session

// Stage is a named state in the dialogue state machine. The set is closed:
// every value not listed here is normalized to StageMenu before handling.
type Stage string

const (
	StageIdentifying             Stage = "identifying"
	StageConfirmingIdentity      Stage = "confirming_identity"
	StageGuestDetails            Stage = "guest_details"
	StageMenu                    Stage = "menu"
	StageProblemDescription      Stage = "problem_description"
	StageProblemConfirmation     Stage = "problem_confirmation"
	StageProcessingProblem       Stage = "processing_problem"
	StageWaitingFeedback         Stage = "waiting_feedback"
	StageDamagePhoto             Stage = "damage_photo"
	StageDamageConfirmation      Stage = "damage_confirmation"
	StageOrderRequest            Stage = "order_request"
	StageOrderConfirmation       Stage = "order_confirmation"
	StageTrainingRequest         Stage = "training_request"
	StageTrainingConfirmation    Stage = "training_confirmation"
	StageWaitingTrainingFeedback Stage = "waiting_training_feedback"
	StageGeneralOfficeRequest    Stage = "general_office_request"
	StageOfficeConfirmation      Stage = "office_confirmation"
	StageTechnicianEscalated     Stage = "technician_escalated"
	StageCompleted               Stage = "completed"
)

var allStages = map[Stage]bool{
	StageIdentifying:             true,
	StageConfirmingIdentity:      true,
	StageGuestDetails:            true,
	StageMenu:                    true,
	StageProblemDescription:      true,
	StageProblemConfirmation:     true,
	StageProcessingProblem:       true,
	StageWaitingFeedback:         true,
	StageDamagePhoto:             true,
	StageDamageConfirmation:      true,
	StageOrderRequest:            true,
	StageOrderConfirmation:       true,
	StageTrainingRequest:         true,
	StageTrainingConfirmation:    true,
	StageWaitingTrainingFeedback: true,
	StageGeneralOfficeRequest:    true,
	StageOfficeConfirmation:      true,
	StageTechnicianEscalated:     true,
	StageCompleted:               true,
}

// Valid reports whether s is a member of the closed stage set.
func (s Stage) Valid() bool { return allStages[s] }

// Normalize maps any unknown stage value to StageMenu. Stored stage values
// survive config/catalog reloads, so a value written by an older build must
// never crash the handler.
func Normalize(s Stage) Stage {
	if s.Valid() {
		return s
	}
	return StageMenu
}

// Fragile reports whether the stage belongs to the unauthenticated in-flight
// subset that the sweep reclaims on the short inactivity threshold.
func (s Stage) Fragile() bool {
	switch s {
	case StageIdentifying, StageConfirmingIdentity, StageGuestDetails:
		return true
	}
	return false
}

// NeedsGrace reports whether entering this stage arms the escalation timer.
// These are exactly the stages with a timeout fallback policy.
func (s Stage) NeedsGrace() bool {
	switch s {
	case StageWaitingFeedback,
		StageWaitingTrainingFeedback,
		StageDamagePhoto,
		StageOrderRequest,
		StageTrainingRequest,
		StageGeneralOfficeRequest,
		StageProblemConfirmation,
		StageDamageConfirmation:
		return true
	}
	return false
}
