package resolution

import "strings"

// keywordAcceptScore is the minimum keyword score that yields a match.
const keywordAcceptScore = 8

// keywordGroup maps a family of trigger keywords to the catalog entry
// whose label contains labelPattern.
type keywordGroup struct {
	labelPattern string
	keywords     []string
}

// keywordGroups cover the recurring wash-site failure families. Declaration
// order breaks score ties.
var keywordGroups = []keywordGroup{
	{labelPattern: "power", keywords: []string{"power", "no power", "dead", "won't start", "wont start", "not starting", "breaker", "tripped"}},
	{labelPattern: "gate", keywords: []string{"gate", "barrier", "stuck", "won't open", "wont open", "not opening", "jammed"}},
	{labelPattern: "printer", keywords: []string{"printer", "paper", "jam", "print", "no receipt paper"}},
	{labelPattern: "payment", keywords: []string{"payment", "terminal", "card", "credit", "declined", "reader"}},
	{labelPattern: "display", keywords: []string{"display", "screen", "blank", "frozen", "black screen", "touch"}},
	{labelPattern: "connectivity", keywords: []string{"offline", "network", "internet", "connection", "disconnected", "no signal"}},
	{labelPattern: "receipt", keywords: []string{"receipt", "invoice", "copy", "reprint"}},
}

// matchKeywords scores the description against every keyword group and
// returns the catalog entry for the highest-scoring group at or above the
// accept threshold. Score is the sum of len(keyword)*2 over matched
// keywords, so a single specific keyword or two short ones suffice.
func matchKeywords(cat *Catalog, description string) (*CatalogEntry, int) {
	text := strings.ToLower(description)
	var best *CatalogEntry
	bestScore := 0
	for _, g := range keywordGroups {
		score := 0
		for _, kw := range g.keywords {
			if strings.Contains(text, kw) {
				score += len(kw) * 2
			}
		}
		if score < keywordAcceptScore || score <= bestScore {
			continue
		}
		if e := cat.FindByLabel(g.labelPattern); e != nil {
			best, bestScore = e, score
		}
	}
	return best, bestScore
}
