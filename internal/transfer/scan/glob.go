// Package scan implements directory walking, exclude-pattern matching, and
// parallel content hashing for file transfer sessions, per spec.md §4.5.1.
package scan

// MatchGlob reports whether name matches pattern, supporting `*` (zero or
// more of any character) and `?` (exactly one of any character) — the
// minimal glob dialect spec.md §4.5.1 and §8's testable property 7 pin.
// Matching is done over the whole string; a pattern without wildcards must
// equal name exactly.
func MatchGlob(pattern, name string) bool {
	return matchGlob([]rune(pattern), []rune(name))
}

func matchGlob(pattern, name []rune) bool {
	// Classic backtracking glob matcher: pi/ni walk both strings; on a
	// `*` remember the position to retry from if a later mismatch occurs.
	pi, ni := 0, 0
	starIdx := -1
	starMatch := 0

	for ni < len(name) {
		if pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == name[ni]) {
			pi++
			ni++
			continue
		}
		if pi < len(pattern) && pattern[pi] == '*' {
			starIdx = pi
			starMatch = ni
			pi++
			continue
		}
		if starIdx != -1 {
			pi = starIdx + 1
			starMatch++
			ni = starMatch
			continue
		}
		return false
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
