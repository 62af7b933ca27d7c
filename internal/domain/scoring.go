package domain

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	// Scoring weights
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0
	ScoreFuzzyMatch     = 25.0

	// Position bonus (earlier is better)
	ScorePositionBonus = 10.0

	// Exact name match bonus
	ScoreExactNameBonus = 200.0

	// Visit weight (visit count contributes to final score)
	ScoreVisitWeight = 0.1
)

// RecordCandidate is a record matched by a launcher search.
type RecordCandidate struct {
	Record       BookmarkRecord `json:"record"`
	LexicalScore float64        `json:"lexicalScore"`
	VisitScore   float64        `json:"visitScore"`
	TotalScore   float64        `json:"score"`
}

// ScoreRecord scores a record's name and host against a query.
// The name weighs more than the host, tags only count as a fallback.
func ScoreRecord(query string, r BookmarkRecord) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return 0.0
	}

	name := strings.ToLower(strings.TrimSpace(r.Name))
	if name != "" && query == name {
		return ScoreExactMatch + ScoreExactNameBonus
	}

	words := strings.Fields(query)
	best := 0.0
	for _, target := range []string{name, Hostname(r.URL)} {
		if target == "" {
			continue
		}
		score := 0.0
		for _, w := range words {
			score += scoreFragment(w, target)
		}
		if score > best {
			best = score
		}
	}
	if best > 0 {
		return best
	}

	for _, tag := range r.Tags {
		if scoreFragment(query, strings.ToLower(tag)) >= ScorePrefixMatch {
			return ScoreFuzzyMatch
		}
	}
	return 0.0
}

// scoreFragment scores a single query word against a target string.
func scoreFragment(word, target string) float64 {
	word = normalizeFragment(word)
	flat := normalizeFragment(target)
	if word == "" || flat == "" {
		return 0.0
	}

	if word == flat {
		return ScoreExactMatch + ScorePositionBonus
	}
	if strings.HasPrefix(flat, word) {
		return ScorePrefixMatch + ScorePositionBonus
	}
	if idx := strings.Index(flat, word); idx >= 0 {
		// Earlier substring matches get higher score
		return ScoreSubstringMatch + ScorePositionBonus*(1.0-float64(idx)/float64(len(flat)))
	}

	if similarity := calculateSimilarity(word, flat); similarity > 0.5 {
		return ScoreFuzzyMatch * similarity
	}
	return 0.0
}

// RankRecords ranks records by lexical match plus a logarithmic visit
// boost so that frequently opened tiles float up without drowning out
// a better textual match.
func RankRecords(query string, records []BookmarkRecord) []RecordCandidate {
	candidates := make([]RecordCandidate, 0, len(records))
	for _, r := range records {
		lexical := ScoreRecord(query, r)
		if lexical == 0.0 {
			continue
		}

		visit := 0.0
		if r.VisitCount > 0 {
			visit = math.Log10(float64(r.VisitCount)+1) * ScoreVisitWeight * 100
		}

		candidates = append(candidates, RecordCandidate{
			Record:       r.Clone(),
			LexicalScore: lexical,
			VisitScore:   visit,
			TotalScore:   lexical + visit,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TotalScore > candidates[j].TotalScore
	})
	return candidates
}

// MostVisited returns a copy of records ordered by VisitCount descending.
// Equal counts keep their display order.
func MostVisited(records []BookmarkRecord) []BookmarkRecord {
	out := CloneRecords(records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VisitCount > out[j].VisitCount
	})
	return out
}

// calculateSimilarity is the ratio of query characters found in s2.
func calculateSimilarity(s1, s2 string) float64 {
	if s1 == "" || s2 == "" {
		return 0.0
	}

	matches := 0
	for _, c := range s1 {
		if strings.ContainsRune(s2, c) {
			matches++
		}
	}

	return float64(matches) / float64(len([]rune(s1)))
}

// normalizeFragment keeps lowercased letters and digits only.
func normalizeFragment(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}
