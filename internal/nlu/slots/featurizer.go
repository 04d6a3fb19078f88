package slots

import (
	"fmt"
	"unicode"

	"gonum.org/v1/gonum/floats"

	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

// Features boosted at predict time get this weight.
const predictBoost = 3

// IntentSlotFeatures is the per-intent context the featurizer needs: the
// intent's vocabulary and the entity types its slots accept.
type IntentSlotFeatures struct {
	Name         string          `json:"name"`
	Vocab        map[string]bool `json:"vocab"`
	SlotEntities []string        `json:"slot_entities"`
}

// Featurizer turns utterance tokens into CRF feature bags. The tf-idf table
// and vocabulary vectors come from the training run that owns the tagger.
type Featurizer struct {
	TFIDF        map[string]float64   `json:"tfidf"`
	VocabVectors map[string][]float64 `json:"vocab_vectors"`
}

type feature struct {
	name  string
	value string
	boost float64
}

// Sequence featurizes every non-space token of the utterance.
func (f *Featurizer) Sequence(u *utterance.Utterance, intent IntentSlotFeatures, isPredict bool) ml.FeatureSeq {
	tokens := u.Tokens()
	var words []*utterance.Token
	for _, t := range tokens {
		if !t.IsSpace {
			words = append(words, t)
		}
	}

	seq := make(ml.FeatureSeq, len(words))
	for i, tok := range words {
		bag := map[string]float64{}
		add := func(prefix string, ft feature) {
			boost := ft.boost
			if boost == 0 {
				boost = 1
			}
			bag[prefix+ft.name+"="+ft.value] = boost
		}

		if tok.IsBOS {
			bag["__BOS__"] = 1
		}
		if tok.IsEOS {
			bag["__EOS__"] = 1
		}
		add("", feature{name: "intent", value: intent.Name})

		current := f.tokenFeatures(u, intent, tok, isPredict)
		for _, ft := range current {
			if ft.name == "cluster" {
				continue
			}
			add("w[0]|", ft)
		}

		// up to two previous and one next non-space neighbor
		for off := 1; off <= 2 && i-off >= 0; off++ {
			for _, ft := range f.tokenFeatures(u, intent, words[i-off], isPredict) {
				if ft.name == "quartile" {
					continue
				}
				add(fmt.Sprintf("w[-%d]|", off), ft)
			}
		}
		if i+1 < len(words) {
			for _, ft := range f.tokenFeatures(u, intent, words[i+1], isPredict) {
				if ft.name == "quartile" {
					continue
				}
				add("w[1]|", ft)
			}
		}

		if i-1 >= 0 {
			prev := f.tokenFeatures(u, intent, words[i-1], isPredict)
			for _, ft := range featPairs(prev, current) {
				add("w[-1]|w[0]|", ft)
			}
		}
		if i+1 < len(words) {
			next := f.tokenFeatures(u, intent, words[i+1], isPredict)
			for _, ft := range featPairs(current, next) {
				add("w[0]|w[1]|", ft)
			}
		}

		seq[i] = bag
	}
	return seq
}

func (f *Featurizer) tokenFeatures(u *utterance.Utterance, intent IntentSlotFeatures, tok *utterance.Token, isPredict bool) []feature {
	feats := []feature{
		f.quartileFeature(u, tok),
		f.clusterFeature(tok),
		f.weightFeature(tok),
		f.vocabFeature(tok, intent.Vocab),
	}
	feats = append(feats, f.charClassFeatures(tok)...)
	if sp := f.spaceFeature(u, tok); sp != nil {
		feats = append(feats, *sp)
	}
	if w := f.wordFeature(u, tok, isPredict); w != nil {
		feats = append(feats, *w)
	}
	feats = append(feats, f.entityFeatures(u, tok, intent.SlotEntities, isPredict)...)
	return feats
}

func (f *Featurizer) charClassFeatures(tok *utterance.Token) []feature {
	var alpha, num, special int
	for _, r := range tok.Value {
		switch {
		case unicode.IsLetter(r):
			alpha++
		case unicode.IsDigit(r):
			num++
		case !unicode.IsSpace(r):
			special++
		}
	}
	return []feature{
		{name: "alpha", value: fmt.Sprint(alpha)},
		{name: "num", value: fmt.Sprint(num)},
		{name: "special", value: fmt.Sprint(special)},
	}
}

func (f *Featurizer) quartileFeature(u *utterance.Utterance, tok *utterance.Token) feature {
	total := len(u.Tokens())
	q := int(float64(tok.Index+1)/float64(total)*4 + 0.9999)
	if q > 4 {
		q = 4
	}
	if q < 1 {
		q = 1
	}
	return feature{name: "quartile", value: fmt.Sprint(q)}
}

func (f *Featurizer) clusterFeature(tok *utterance.Token) feature {
	return feature{name: "cluster", value: fmt.Sprint(tok.Cluster)}
}

// weightFeature buckets the token's tf-idf weight. Unseen tokens borrow the
// weight of the closest vocabulary vector.
func (f *Featurizer) weightFeature(tok *utterance.Token) feature {
	weight, ok := f.TFIDF[tok.Canonical()]
	if !ok {
		weight = f.nearestVocabWeight(tok)
	}
	bucket := "low"
	switch {
	case weight >= 1:
		bucket = "high"
	case weight >= 0.5:
		bucket = "medium"
	}
	return feature{name: "weight", value: bucket}
}

func (f *Featurizer) nearestVocabWeight(tok *utterance.Token) float64 {
	if len(tok.Vector) == 0 {
		return tok.TFIDF
	}
	bestSim := -1.0
	weight := tok.TFIDF
	for word, vec := range f.VocabVectors {
		if len(vec) != len(tok.Vector) {
			continue
		}
		sim := cosine(vec, tok.Vector)
		if sim > bestSim {
			if w, ok := f.TFIDF[word]; ok {
				bestSim = sim
				weight = w
			}
		}
	}
	return weight
}

func (f *Featurizer) vocabFeature(tok *utterance.Token, vocab map[string]bool) feature {
	value := "out"
	if vocab[tok.Canonical()] {
		value = "in"
	}
	return feature{name: "vocab", value: value}
}

func (f *Featurizer) spaceFeature(u *utterance.Utterance, tok *utterance.Token) *feature {
	if tok.Index == 0 {
		return nil
	}
	if u.Tokens()[tok.Index-1].IsSpace {
		return &feature{name: "space", value: "w"}
	}
	return nil
}

// wordFeature is the token's identity. At train time it is skipped for slot
// tokens so the model does not memorize slot values; at predict time it is
// boosted.
func (f *Featurizer) wordFeature(u *utterance.Utterance, tok *utterance.Token, isPredict bool) *feature {
	if !isPredict && len(u.TokenSlots(tok.Index)) > 0 {
		return nil
	}
	ft := feature{name: "word", value: tok.Canonical()}
	if isPredict {
		ft.boost = predictBoost
	}
	return &ft
}

// entityFeatures lists the token's entity types intersected with the slot
// definitions' allowed types, defaulting to none.
func (f *Featurizer) entityFeatures(u *utterance.Utterance, tok *utterance.Token, allowed []string, isPredict bool) []feature {
	var values []string
	for _, e := range u.TokenEntities(tok.Index) {
		for _, a := range allowed {
			if e.Name == a {
				values = append(values, e.Name)
			}
		}
	}
	if len(values) == 0 {
		values = []string{"none"}
	}
	boost := 0.0
	if isPredict {
		boost = predictBoost
	}
	out := make([]feature, len(values))
	for i, v := range values {
		out[i] = feature{name: "entity", value: v, boost: boost}
	}
	return out
}

// featPairs joins the word, vocab and weight features of two neighbors.
func featPairs(a, b []feature) []feature {
	byName := func(feats []feature, name string) *feature {
		for i := range feats {
			if feats[i].name == name {
				return &feats[i]
			}
		}
		return nil
	}
	var out []feature
	for _, name := range []string{"word", "vocab", "weight"} {
		fa, fb := byName(a, name), byName(b, name)
		if fa != nil && fb != nil {
			out = append(out, feature{name: name + "|" + name, value: fa.value + "|" + fb.value})
		}
	}
	return out
}

func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
