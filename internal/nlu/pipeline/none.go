package pipeline

import (
	"math/rand"
	"sort"

	"github.com/botkit-ai/nlu-engine/internal/nlu"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

const (
	minNoneUtterances = 20
	maxNoneUtterances = 200
)

// synthesizeNoneIntent fabricates out-of-scope utterances by sampling
// vocabulary words and junk words spliced from them. Deterministic per seed.
// Returns nil when the training corpus carries no embeddable vocabulary.
func synthesizeNoneIntent(trained []*nlu.Intent, contexts []string, vocabVectors map[string][]float64, weights map[string]float64, language string, seed int64) *nlu.Intent {
	vocab := make([]string, 0, len(vocabVectors))
	for w := range vocabVectors {
		vocab = append(vocab, w)
	}
	sort.Strings(vocab)
	if len(vocab) == 0 {
		return nil
	}

	totalUtterances, totalWords := 0, 0
	for _, intent := range trained {
		for _, u := range intent.Utterances {
			totalUtterances++
			totalWords += u.WordCount()
		}
	}
	if totalUtterances == 0 {
		return nil
	}
	avgTokens := totalWords / totalUtterances
	if avgTokens < 1 {
		avgTokens = 1
	}

	count := 2 * totalUtterances / 3
	if count < minNoneUtterances {
		count = minNoneUtterances
	}
	if count > maxNoneUtterances {
		count = maxNoneUtterances
	}

	rng := rand.New(rand.NewSource(seed))
	pool := append(append([]string{}, vocab...), junkWords(vocab, rng)...)

	none := &nlu.Intent{Name: nlu.NoneIntent, Contexts: contexts, Vocab: map[string]bool{}}
	for i := 0; i < count; i++ {
		length := 1 + rng.Intn(2*avgTokens)
		var tokens []string
		var vectors [][]float64
		for j := 0; j < length; j++ {
			if j > 0 {
				tokens = append(tokens, " ")
				vectors = append(vectors, nil)
			}
			// the first word always comes from the real vocabulary so the
			// utterance has at least one embeddable token
			var word string
			if j == 0 {
				word = vocab[rng.Intn(len(vocab))]
			} else {
				word = pool[rng.Intn(len(pool))]
			}
			tokens = append(tokens, word)
			vectors = append(vectors, vocabVectors[word])
		}
		u, err := utterance.New(tokens, vectors, language)
		if err != nil {
			continue
		}
		u.SetGlobalTFIDF(weights)
		none.Utterances = append(none.Utterances, u)
	}
	return none
}

// junkWords splices halves of random vocabulary words into plausible-looking
// non-words.
func junkWords(vocab []string, rng *rand.Rand) []string {
	out := make([]string, 0, len(vocab))
	for range vocab {
		a := []rune(vocab[rng.Intn(len(vocab))])
		b := []rune(vocab[rng.Intn(len(vocab))])
		out = append(out, string(a[:(len(a)+1)/2])+string(b[len(b)/2:]))
	}
	return out
}
