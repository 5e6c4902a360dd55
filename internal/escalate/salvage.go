package escalate

import "strings"

const salvageMinLen = 12

// salvageKeywords are terms that mark even a short fragment as a real
// problem report rather than menu noise.
var salvageKeywords = []string{
	"power", "gate", "barrier", "printer", "payment", "card", "terminal",
	"water", "soap", "brush", "foam", "leak", "broken", "stuck", "error",
	"machine", "wash", "screen", "offline",
}

// WorthSalvaging reports whether partial text typed before a timeout is
// substantive enough to forward to a technician. Short fragments pass only
// when they name a known equipment term.
func WorthSalvaging(text string) bool {
	t := strings.TrimSpace(strings.ToLower(text))
	if t == "" {
		return false
	}
	if len([]rune(t)) >= salvageMinLen {
		return true
	}
	for _, kw := range salvageKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
