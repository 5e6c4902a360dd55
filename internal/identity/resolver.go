package identity

import "strings"

// Confidence is the categorical strength of a fuzzy free-text match.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Scoring constants. These are behavioural contract, not tuning knobs:
// boundary values are covered by tests (4/5/9/10/19/20).
const (
	minAcceptScore  = 5
	mediumThreshold = 10
	highThreshold   = 20
	aliasBonus      = 20
	minTokenLen     = 3 // tokens shorter than this carry no signal
)

// siteStopwords are generic site-type words removed before scoring.
// They describe what every site is, so they identify none of them.
var siteStopwords = map[string]bool{
	"wash":    true,
	"carwash": true,
	"car":     true,
	"station": true,
	"site":    true,
	"branch":  true,
	"the":     true,
	"and":     true,
	"ltd":     true,
	"inc":     true,
}

// Match is a scored free-text identification result.
type Match struct {
	Customer   *Customer
	Confidence Confidence
	Score      int
}

// Resolver resolves channel addresses and free text against the directory.
type Resolver struct {
	dir   *Directory
	phone PhoneConfig
}

// NewResolver creates a resolver over the given directory.
func NewResolver(dir *Directory, phone PhoneConfig) *Resolver {
	return &Resolver{dir: dir, phone: phone}
}

// SetDirectory swaps the directory (hot reload). The resolver itself holds
// no per-customer state, so a swap is safe between calls.
func (r *Resolver) SetDirectory(dir *Directory) { r.dir = dir }

// Directory returns the current customer directory.
func (r *Resolver) Directory() *Directory { return r.dir }

// ResolveByAddress matches a raw channel address against each customer's
// phone fields over the canonical variant set. The first customer in
// stored order with any matching field wins; ties resolve by list order.
func (r *Resolver) ResolveByAddress(rawAddress string) *Customer {
	if digitsOnly(rawAddress) == "" {
		return nil
	}
	customers := r.dir.Customers()
	for i := range customers {
		for _, phone := range customers[i].Phones {
			if r.phone.phonesMatch(rawAddress, phone) {
				return &customers[i]
			}
		}
	}
	return nil
}

// ResolveByFreeText scores the text against every site name and returns the
// best match at or above the acceptance threshold, or nil.
//
// Scoring: stopwords removed, remaining words of length >2 become tokens;
// each token that is a substring of the lowercased site name contributes
// len(token)*2; each matched alias adds a flat +20. Only high confidence
// may bind identity silently — the dialogue layer owns that rule.
func (r *Resolver) ResolveByFreeText(text string) *Match {
	tokens := tokenize(text)
	lowered := strings.ToLower(text)

	var best *Match
	customers := r.dir.Customers()
	for i := range customers {
		score := scoreSite(&customers[i], tokens, lowered)
		if score < minAcceptScore {
			continue
		}
		// Strictly-greater keeps the first customer on score ties.
		if best == nil || score > best.Score {
			best = &Match{Customer: &customers[i], Score: score}
		}
	}
	if best == nil {
		return nil
	}
	best.Confidence, _ = Grade(best.Score)
	return best
}

// Grade maps a raw score to its confidence tier. The second result reports
// whether the score clears the acceptance threshold at all.
func Grade(score int) (Confidence, bool) {
	if score < minAcceptScore {
		return "", false
	}
	return confidenceFor(score), true
}

// ScoreText exposes the raw score against a single customer. Used by tests
// to pin the formula.
func ScoreText(c *Customer, text string) int {
	return scoreSite(c, tokenize(text), strings.ToLower(text))
}

func scoreSite(c *Customer, tokens []string, loweredText string) int {
	site := strings.ToLower(c.Site)
	score := 0
	for _, tok := range tokens {
		if strings.Contains(site, tok) {
			// Token length counts runes so non-ASCII site names score the
			// same as ASCII ones.
			score += len([]rune(tok)) * 2
		}
	}
	for _, alias := range c.Aliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if a != "" && strings.Contains(loweredText, a) {
			score += aliasBonus
		}
	}
	return score
}

func confidenceFor(score int) Confidence {
	switch {
	case score >= highThreshold:
		return ConfidenceHigh
	case score >= mediumThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && !(r >= 0x80) // keep non-ASCII letters
	})
	var tokens []string
	for _, f := range fields {
		if len([]rune(f)) < minTokenLen || siteStopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
