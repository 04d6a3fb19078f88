package entities

import (
	"math"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

// Candidate spans scoring below this are never promoted to matches.
const matchThreshold = 0.65

// Fuzzy scoring needs enough characters to be meaningful; shorter spans
// fall back to exact matching.
const minFuzzySpanLen = 4

type candidate struct {
	score      float64
	canonical  string
	startTok   int
	endTok     int
	source     string
	occurrence string
	eliminated bool
}

// ExtractListEntities matches every configured list entity against the
// utterance and returns the surviving spans as entity tags with character
// offsets.
func ExtractListEntities(u *utterance.Utterance, models []ListEntityModel) []utterance.EntityTag {
	tokens := u.Tokens()
	var matches []utterance.EntityTag

	for _, list := range models {
		var candidates []*candidate
		longestOccurrence := 0

		for canonical, occurrences := range list.MappingsTokens {
			for _, occurrence := range occurrences {
				occJoined := strings.Join(occurrence, "")
				occLen := len([]rune(occJoined))
				if occLen > longestOccurrence {
					longestOccurrence = occLen
				}
				for i := range tokens {
					if tokens[i].IsSpace {
						continue
					}
					window := takeUntil(tokens, i, occLen)
					if len(window) == 0 {
						continue
					}
					var sb strings.Builder
					for _, t := range window {
						sb.WriteString(t.Value)
					}
					source := sb.String()

					useFuzzy := list.FuzzyMatching && len([]rune(source)) >= minFuzzySpanLen
					var score float64
					if useFuzzy {
						score = fuzzyScore(source, occJoined) * structuralScore(source, occJoined, window, occurrence)
					} else {
						score = exactScore(source, occJoined) * structuralScore(source, occJoined, window, occurrence)
					}

					candidates = append(candidates, &candidate{
						score:      math.Round(score*1000) / 1000,
						canonical:  canonical,
						startTok:   i,
						endTok:     window[len(window)-1].Index,
						source:     source,
						occurrence: occJoined,
					})
				}
			}
		}

		eliminateOverlaps(candidates, len(tokens), longestOccurrence)

		for _, c := range candidates {
			if c.eliminated || c.score < matchThreshold {
				continue
			}
			endTok := tokens[c.endTok]
			matches = append(matches, utterance.EntityTag{
				Name:       list.EntityName,
				Type:       "list",
				Value:      c.canonical,
				Source:     c.source,
				Occurrence: c.occurrence,
				Confidence: c.score,
				Start:      tokens[c.startTok].Offset,
				End:        endTok.Offset + len([]rune(endTok.Value)),
			})
		}
	}
	return matches
}

// takeUntil grows a token window from start while its total character length
// stays closer to the desired length than stopping would leave it. A trailing
// space token is dropped.
func takeUntil(tokens []*utterance.Token, start, desired int) []*utterance.Token {
	var out []*utterance.Token
	total := 0
	for _, t := range tokens[start:] {
		l := len([]rune(t.Value))
		if total > 0 && abs(desired-total) < abs(desired-total-l) {
			break
		}
		if total >= desired {
			break
		}
		total += l
		out = append(out, t)
	}
	if len(out) > 0 && out[len(out)-1].IsSpace {
		out = out[:len(out)-1]
	}
	return out
}

// exactScore is 1 for a full case-sensitive literal match and 0 otherwise.
// Partial positional overlap never scores.
func exactScore(a, b string) float64 {
	if a != "" && a == b {
		return 1
	}
	return 0
}

// fuzzyScore averages the normalized Levenshtein similarity and the Jaro
// distance, case-insensitively.
func fuzzyScore(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	lev := levenshteinSimilarity(a, b)
	// boost threshold 1 disables the Winkler prefix bonus
	jaro := smetrics.JaroWinkler(a, b, 1, 0)
	return (lev + jaro) / 2
}

func levenshteinSimilarity(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
	return 1 - float64(dist)/float64(maxLen)
}

// structuralScore compares the shape of the two spans: character-set overlap
// (case-sensitive and insensitive averaged), multi-character token counts,
// and total lengths.
func structuralScore(source, occJoined string, window []*utterance.Token, occurrence []string) float64 {
	charset := jaccard(runeSet(source), runeSet(occJoined))
	charsetLow := jaccard(runeSet(strings.ToLower(source)), runeSet(strings.ToLower(occJoined)))
	charsetScore := (charset + charsetLow) / 2

	la, lb := 0, 0
	for _, t := range window {
		if len([]rune(t.Value)) > 1 {
			la++
		}
	}
	for _, o := range occurrence {
		if len([]rune(o)) > 1 {
			lb++
		}
	}
	la, lb = max(1, la), max(1, lb)
	qtyScore := float64(min(la, lb)) / float64(max(la, lb))

	s1, s2 := len([]rune(source)), len([]rune(occJoined))
	sizeScore := float64(min(s1, s2)) / float64(max(s1, s2))

	return math.Sqrt(charsetScore * qtyScore * sizeScore)
}

// eliminateOverlaps keeps, for every token position, only the best-scoring
// candidate covering it. Longer spans win ties through a gentle length boost.
func eliminateOverlaps(candidates []*candidate, tokenCount, longestOccurrence int) {
	rank := func(c *candidate) float64 {
		l := len([]rune(c.source))
		if l > longestOccurrence {
			l = longestOccurrence
		}
		return c.score * math.Pow(float64(l), 1.0/5)
	}
	for i := 0; i < tokenCount; i++ {
		var best *candidate
		for _, c := range candidates {
			if c.eliminated || c.startTok > i || c.endTok < i {
				continue
			}
			if best == nil || rank(c) > rank(best) {
				best = c
			}
		}
		if best == nil {
			continue
		}
		for _, c := range candidates {
			if c != best && !c.eliminated && c.startTok <= i && c.endTok >= i {
				c.eliminated = true
			}
		}
	}
}

func jaccard(a, b map[rune]bool) float64 {
	union := map[rune]bool{}
	inter := 0
	for r := range a {
		union[r] = true
		if b[r] {
			inter++
		}
	}
	for r := range b {
		union[r] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}

func runeSet(s string) map[rune]bool {
	set := map[rune]bool{}
	for _, r := range s {
		set[r] = true
	}
	return set
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
