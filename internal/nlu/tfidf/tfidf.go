// Package tfidf computes per-corpus term weights with double-normalized
// term frequency and a floored inverse document frequency.
package tfidf

import "math"

// AvgKey names both the per-document average row and the cross-document
// average pseudo-document.
const AvgKey = "__avg__"

const (
	minWeight = 0.5
	maxWeight = 2.0
	idfFloor  = 0.25
)

// Corpus maps a document name to its token sequence.
type Corpus map[string][]string

// Weights maps document name to term weights. Every document carries an
// AvgKey row (mean of its term weights) and the whole result carries an
// AvgKey document (per-term mean across the documents containing it).
type Weights map[string]map[string]float64

// Compute derives tf-idf weights for every term of every document.
// tf is double-normalized with K=0.5; idf is floored at 0.25; the final
// weight is clamped to [0.5, 2.0].
func Compute(corpus Corpus) Weights {
	totalDocs := float64(len(corpus))
	if totalDocs == 0 {
		return Weights{}
	}

	df := map[string]float64{}
	counts := map[string]map[string]float64{}
	for doc, tokens := range corpus {
		counts[doc] = map[string]float64{}
		for _, tok := range tokens {
			counts[doc][tok]++
		}
		for term := range counts[doc] {
			df[term]++
		}
	}

	out := Weights{}
	termSums := map[string]float64{}
	for doc, termCounts := range counts {
		var maxCount float64
		for _, c := range termCounts {
			if c > maxCount {
				maxCount = c
			}
		}
		row := map[string]float64{}
		var sum float64
		for term, count := range termCounts {
			tf := 0.5 + 0.5*(count/maxCount)
			idf := math.Max(idfFloor, -math.Log(df[term]/totalDocs))
			w := clamp(tf * idf)
			row[term] = w
			sum += w
			termSums[term] += w
		}
		if len(row) > 0 {
			row[AvgKey] = sum / float64(len(row))
		}
		out[doc] = row
	}

	global := map[string]float64{}
	for term, sum := range termSums {
		global[term] = sum / df[term]
	}
	out[AvgKey] = global
	return out
}

func clamp(w float64) float64 {
	return math.Min(maxWeight, math.Max(minWeight, w))
}
