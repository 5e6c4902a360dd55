package identity

import "strings"

// PhoneConfig describes the dialing plan used to canonicalize numbers.
type PhoneConfig struct {
	CountryCode string // international prefix without "+", e.g. "972"
	TrunkPrefix string // leading local-trunk digit, e.g. "0"
}

// DefaultPhoneConfig returns the reference dialing plan.
func DefaultPhoneConfig() PhoneConfig {
	return PhoneConfig{CountryCode: "972", TrunkPrefix: "0"}
}

// digitsOnly strips every non-digit character.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// variants builds the canonical variant set for a raw number: the
// significant digits plus every combination of country-code and trunk
// prefixes. Building variants from the significant core makes matching
// commutative — whichever dialing form either side arrived in, the sets
// intersect iff the cores agree.
func (pc PhoneConfig) variants(raw string) map[string]bool {
	d := digitsOnly(raw)
	if d == "" {
		return nil
	}

	core := d
	if pc.CountryCode != "" {
		core = strings.TrimPrefix(core, pc.CountryCode)
	}
	if pc.TrunkPrefix != "" {
		core = strings.TrimPrefix(core, pc.TrunkPrefix)
	}

	set := map[string]bool{d: true, core: true}
	if pc.TrunkPrefix != "" {
		set[pc.TrunkPrefix+core] = true
	}
	if pc.CountryCode != "" {
		set[pc.CountryCode+core] = true
		if pc.TrunkPrefix != "" {
			set[pc.CountryCode+pc.TrunkPrefix+core] = true
		}
	}
	return set
}

// phonesMatch reports whether two raw numbers refer to the same line:
// exact variant-set intersection, or a shared 9-digit suffix when both
// sides carry at least 8 digits.
func (pc PhoneConfig) phonesMatch(a, b string) bool {
	da, db := digitsOnly(a), digitsOnly(b)
	if da == "" || db == "" {
		return false
	}

	va := pc.variants(a)
	for v := range pc.variants(b) {
		if va[v] {
			return true
		}
	}

	if len(da) >= 8 && len(db) >= 8 {
		return lastN(da, 9) == lastN(db, 9)
	}
	return false
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
