package tfidf

import (
	"math"
	"testing"
)

func TestComputeReferenceCorpus(t *testing.T) {
	corpus := Corpus{
		"A": {"one", "one", "one"},
		"B": {"one", "one", "two"},
		"C": {"one", "two", "three"},
	}
	w := Compute(corpus)

	cases := []struct {
		doc, term string
		want      float64
	}{
		{"A", "one", 0.5},
		{"C", "three", 1.0986},
		{"C", AvgKey, 0.6995},
		{AvgKey, "three", 1.0986},
	}
	for _, tc := range cases {
		got, ok := w[tc.doc][tc.term]
		if !ok {
			t.Fatalf("missing weight for %s.%s", tc.doc, tc.term)
		}
		if math.Abs(got-tc.want) > 1e-3 {
			t.Errorf("%s.%s = %f, want %f", tc.doc, tc.term, got, tc.want)
		}
	}
}

func TestComputeClampsWeights(t *testing.T) {
	w := Compute(Corpus{
		"A": {"shared"},
		"B": {"shared"},
	})
	for doc, row := range w {
		for term, weight := range row {
			if weight < 0.5 || weight > 2.0 {
				t.Errorf("%s.%s = %f outside [0.5, 2.0]", doc, term, weight)
			}
		}
	}
}

func TestComputeEmptyCorpus(t *testing.T) {
	if got := Compute(nil); len(got) != 0 {
		t.Errorf("Compute(nil) = %v, want empty", got)
	}
}
