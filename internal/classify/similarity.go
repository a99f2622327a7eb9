package classify

import "strings"

// homoglyphFold maps characters commonly substituted to impersonate a
// system process name (rule 9) onto the Latin letter they're mimicking.
var homoglyphFold = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'3': 'e',
	'5': 's',
	'@': 'a',
	'$': 's',
}

// normalizeForMimicry lowercases s and folds known homoglyphs, so
// "Finderr", "F1nder" and "Finde0r" all compare close to "finder".
func normalizeForMimicry(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if folded, ok := homoglyphFold[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripSeparators drops the separator characters rule 9's branch (b)
// considers cosmetic: hyphens, underscores, dots and spaces.
func stripSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '-', '_', '.', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// levenshtein computes the classic edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// maxMimicryDistance is how close (edit distance) a process name must be to
// a well-known system process name, without matching it exactly, to be
// flagged as likely impersonation (spec §4.4 rule 9).
const maxMimicryDistance = 2

// mimicsSystemProcess reports the system process name candidate is
// impersonating, if any, under any of rule 9's three equality tests: (a)
// homoglyph-normalized equality, (b) equality after stripping separators,
// or (c) Levenshtein distance 1..maxMimicryDistance when candidate is at
// least 5 characters long. The caller has already ruled out an exact,
// case-insensitive match against a real system process name, so any of
// these three hits here is impersonation, not the genuine process.
func mimicsSystemProcess(candidate string) (string, bool) {
	candidateFolded := normalizeForMimicry(candidate)
	candidateStripped := strings.ToLower(stripSeparators(candidate))

	for _, sys := range wellKnownSystemProcesses {
		sysFolded := normalizeForMimicry(sys)
		if candidateFolded == sysFolded {
			return sys, true
		}
		if candidateStripped == strings.ToLower(stripSeparators(sys)) {
			return sys, true
		}
		if len(candidateFolded) >= 5 {
			if d := levenshtein(candidateFolded, sysFolded); d > 0 && d <= maxMimicryDistance {
				return sys, true
			}
		}
	}
	return "", false
}
