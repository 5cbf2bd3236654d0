package agent

import "strings"

// enforceBrevity keeps replies short enough to speak aloud. Text within
// the word limit passes through unchanged. Longer text is cut at the
// first sentence boundary when that boundary lands early enough,
// otherwise hard-truncated to the limit with a closing period.
func enforceBrevity(s string, maxWords int) string {
	if maxWords <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	if i := strings.Index(s, ". "); i >= 0 {
		first := s[:i+1]
		if float64(i) < 0.7*float64(len(s)) && len(strings.Fields(first)) <= maxWords {
			return first
		}
	}
	out := strings.Join(words[:maxWords], " ")
	out = strings.TrimRight(out, ",.;:")
	return out + "."
}
