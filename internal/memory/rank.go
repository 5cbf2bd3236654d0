package memory

import (
	"sort"
	"strings"
)

const (
	// rankLimit caps how many records a search returns.
	rankLimit = 5
	// rankFloor drops records that score at or below this similarity.
	rankFloor = 0.2
	// substringBoost rewards records containing the query verbatim.
	substringBoost = 0.15
)

// Rank scores records against a query and returns the most relevant,
// highest score first. Similarity is a bigram Dice coefficient over the
// lowercased text, with a flat boost when the query appears verbatim.
// Records scoring at or below the floor are excluded.
func Rank(query string, records []Record) []Record {
	query = strings.ToLower(query)
	qgrams := bigrams(query)

	type scored struct {
		score float64
		rec   Record
	}
	ranked := make([]scored, 0, len(records))
	for _, rec := range records {
		text := strings.ToLower(rec.Memory)
		score := diceSimilarity(qgrams, bigrams(text))
		if query != "" && strings.Contains(text, query) {
			score += substringBoost
		}
		ranked = append(ranked, scored{score: score, rec: rec})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	var out []Record
	for _, s := range ranked {
		if s.score <= rankFloor {
			continue
		}
		rec := s.rec
		rec.Score = s.score
		out = append(out, rec)
		if len(out) >= rankLimit {
			break
		}
	}
	return out
}

// bigrams returns the multiset of adjacent character pairs in s.
func bigrams(s string) map[string]int {
	grams := make(map[string]int)
	runes := []rune(s)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

// diceSimilarity computes the Sørensen–Dice coefficient of two bigram
// multisets: 2·|A∩B| / (|A|+|B|).
func diceSimilarity(a, b map[string]int) float64 {
	totalA, totalB, overlap := 0, 0, 0
	for g, n := range a {
		totalA += n
		if m, ok := b[g]; ok {
			overlap += min(n, m)
		}
	}
	for _, n := range b {
		totalB += n
	}
	if totalA+totalB == 0 {
		return 0
	}
	return 2 * float64(overlap) / float64(totalA+totalB)
}
