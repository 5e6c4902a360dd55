package dialogue

import "strings"

// Choice is a menu selection mapped from a digit or keyword.
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceProblem
	ChoiceDamage
	ChoiceOrder
	ChoiceTraining
	ChoiceOffice
)

var approvalWords = map[string]bool{
	"yes": true, "y": true, "ok": true, "okay": true, "confirm": true,
	"confirmed": true, "approve": true, "approved": true, "correct": true,
	"sure": true, "send": true,
}

var negativeWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true,
}

var cancelWords = map[string]bool{
	"cancel": true, "menu": true, "back": true, "stop": true, "exit": true,
}

var choiceWords = map[string]Choice{
	"1": ChoiceProblem, "problem": ChoiceProblem, "fault": ChoiceProblem, "issue": ChoiceProblem,
	"2": ChoiceDamage, "damage": ChoiceDamage, "accident": ChoiceDamage,
	"3": ChoiceOrder, "order": ChoiceOrder, "quote": ChoiceOrder, "price": ChoiceOrder,
	"4": ChoiceTraining, "training": ChoiceTraining, "train": ChoiceTraining,
	"5": ChoiceOffice, "office": ChoiceOffice, "invoice": ChoiceOffice, "billing": ChoiceOffice,
}

func firstWord(text string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,!?")
}

// isApproval matches an explicit confirmation ("yes", "yes please", "ok send it").
func isApproval(text string) bool { return approvalWords[firstWord(text)] }

// isNegative matches an explicit rejection. Checks every word so replies
// like "still not working" count in feedback stages.
func isNegative(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if negativeWords[strings.Trim(w, ".,!?")] || w == "not" {
			return true
		}
	}
	return false
}

// isCancel matches a return-to-menu request.
func isCancel(text string) bool { return cancelWords[firstWord(text)] }

// parseChoice maps a menu selection to its flow. Only a single-token input
// counts: "3" or "order", not a sentence that happens to contain a digit.
func parseChoice(text string) Choice {
	t := strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".,!?")
	if c, ok := choiceWords[t]; ok {
		return c
	}
	return ChoiceNone
}

// isPositiveFeedback matches "it worked" style replies in feedback stages.
func isPositiveFeedback(text string) bool {
	if isNegative(text) {
		return false
	}
	if isApproval(text) {
		return true
	}
	t := strings.ToLower(text)
	for _, w := range []string{"solved", "fixed", "works", "working", "thanks", "thank you", "great"} {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}
