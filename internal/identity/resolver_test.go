package identity

import "testing"

func testDirectory() *Directory {
	return NewDirectory([]Customer{
		{
			ID:     "c1",
			Name:   "Dana Peretz",
			Site:   "Haifa North",
			Phones: []string{"054-111-2233"},
			Email:  "dana@haifanorth.example",
		},
		{
			ID:      "c2",
			Name:    "Omer Levi",
			Site:    "Ashdod Marina",
			Phones:  []string{"+972 52 444 5566", "08-855-1122"},
			Aliases: []string{"marina"},
		},
		{
			ID:     "c3",
			Name:   "Noa Katz",
			Site:   "Haifa North Annex",
			Phones: []string{"054-111-2233"}, // deliberate duplicate of c1
		},
	})
}

func newTestResolver() *Resolver {
	return NewResolver(testDirectory(), DefaultPhoneConfig())
}

// --- phone matching ---

// TestPhonesMatch_CommutativeOverVariants verifies that the same customer is
// found regardless of which dialing form either side arrived in.
func TestPhonesMatch_CommutativeOverVariants(t *testing.T) {
	pc := DefaultPhoneConfig()
	pairs := [][2]string{
		{"0541112233", "+972541112233"},
		{"972541112233", "054-111-2233"},
		{"54 111 2233", "0541112233"},
		{"+972-54-111-2233", "9720541112233"},
	}
	for _, p := range pairs {
		if !pc.phonesMatch(p[0], p[1]) {
			t.Errorf("phonesMatch(%q, %q) = false, want true", p[0], p[1])
		}
		if !pc.phonesMatch(p[1], p[0]) {
			t.Errorf("phonesMatch(%q, %q) = false, want true (reversed)", p[1], p[0])
		}
	}
}

func TestPhonesMatch_LastNineSuffix(t *testing.T) {
	pc := DefaultPhoneConfig()

	// Both sides ≥8 digits and sharing the last 9 → match even when the
	// variant sets differ (e.g. an unexpected foreign prefix).
	if !pc.phonesMatch("00972541112233", "12541112233") {
		t.Error("expected suffix match for shared last 9 digits")
	}

	// Short numbers never fall back to the suffix rule.
	if pc.phonesMatch("1112233", "54 111 2233") {
		t.Error("7-digit number must not match via suffix rule")
	}
}

func TestResolveByAddress_FirstInStoredOrderWins(t *testing.T) {
	r := newTestResolver()

	// c1 and c3 share a phone; stored order decides.
	got := r.ResolveByAddress("+972541112233")
	if got == nil {
		t.Fatal("expected a match")
	}
	if got.ID != "c1" {
		t.Errorf("tie resolved to %s, want c1 (stored order)", got.ID)
	}
}

func TestResolveByAddress_NoDigits(t *testing.T) {
	r := newTestResolver()
	if got := r.ResolveByAddress("not-a-number"); got != nil {
		t.Errorf("expected nil for digit-free address, got %s", got.ID)
	}
}

// --- free-text scoring ---

// TestGrade_Boundaries pins the exact confidence boundaries.
func TestGrade_Boundaries(t *testing.T) {
	tests := []struct {
		score    int
		accepted bool
		tier     Confidence
	}{
		{4, false, ""},
		{5, true, ConfidenceLow},
		{9, true, ConfidenceLow},
		{10, true, ConfidenceMedium},
		{19, true, ConfidenceMedium},
		{20, true, ConfidenceHigh},
	}
	for _, tt := range tests {
		tier, ok := Grade(tt.score)
		if ok != tt.accepted || tier != tt.tier {
			t.Errorf("Grade(%d) = (%q, %v), want (%q, %v)", tt.score, tier, ok, tt.tier, tt.accepted)
		}
	}
}

func TestScoreText_Formula(t *testing.T) {
	c := &Customer{Site: "Haifa North"}

	// "haifa" (5) is a substring → 10; "north" (5) → 10; total 20.
	if got := ScoreText(c, "haifa north"); got != 20 {
		t.Errorf("score = %d, want 20", got)
	}

	// Stopwords contribute nothing.
	if got := ScoreText(c, "the haifa wash station"); got != 10 {
		t.Errorf("score with stopwords = %d, want 10", got)
	}

	// Tokens of length ≤2 are dropped.
	if got := ScoreText(c, "no ha if"); got != 0 {
		t.Errorf("score of short tokens = %d, want 0", got)
	}
}

func TestScoreText_NonASCIICountsRunes(t *testing.T) {
	c := &Customer{Site: "חיפה צפון"}

	// Both tokens count 4 runes each, not their UTF-8 byte length, so the
	// total matches an equally long ASCII site name: (4+4)*2 = 16.
	if got := ScoreText(c, "חיפה צפון"); got != 16 {
		t.Errorf("score = %d, want 16", got)
	}
}

func TestScoreText_AliasBonus(t *testing.T) {
	c := &Customer{Site: "Ashdod Marina", Aliases: []string{"marina"}}

	// "marina" scores as token (6*2=12) and as alias (+20) → 32.
	if got := ScoreText(c, "marina"); got != 32 {
		t.Errorf("score = %d, want 32", got)
	}
}

func TestResolveByFreeText(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name     string
		text     string
		wantID   string
		wantTier Confidence
	}{
		{"high confidence full site name", "hi this is haifa north", "c1", ConfidenceHigh},
		{"alias pushes past high", "the marina here", "c2", ConfidenceHigh},
		{"medium on partial", "calling from ashdod", "c2", ConfidenceMedium},
		{"no match", "hello there", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ResolveByFreeText(tt.text)
			if tt.wantID == "" {
				if got != nil {
					t.Fatalf("expected no match, got %s (score %d)", got.Customer.ID, got.Score)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a match, got nil")
			}
			if got.Customer.ID != tt.wantID || got.Confidence != tt.wantTier {
				t.Errorf("got (%s, %s), want (%s, %s)", got.Customer.ID, got.Confidence, tt.wantID, tt.wantTier)
			}
		})
	}
}

func TestResolveByFreeText_TieKeepsStoredOrder(t *testing.T) {
	dir := NewDirectory([]Customer{
		{ID: "a", Site: "Rehovot East"},
		{ID: "b", Site: "Rehovot East"},
	})
	r := NewResolver(dir, DefaultPhoneConfig())

	got := r.ResolveByFreeText("rehovot east please")
	if got == nil {
		t.Fatal("expected a match")
	}
	if got.Customer.ID != "a" {
		t.Errorf("tie resolved to %s, want a (stored order)", got.Customer.ID)
	}
}
