// Package slots labels utterance tokens with BIO slot tags through a
// linear-chain CRF over hand-engineered token features.
package slots

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

// Tag results below this confidence are demoted to outside.
const MinSlotConfidence = 0.15

const (
	outsideTag = "O"
	anySuffix  = "/any"
)

// Tagger is the trained slot extractor: one CRF across all intents, with the
// intent identity carried as a feature.
type Tagger struct {
	CRF        *ml.CRFTagger                       `json:"crf"`
	Featurizer *Featurizer                         `json:"featurizer"`
	Intents    map[string]IntentSlotFeatures       `json:"intents"`
	SlotDefs   map[string][]domain.SlotDefinition  `json:"slot_defs"`

	log *zap.Logger
}

// ExtractedSlot is one labeled span after tag merging and entity resolution.
type ExtractedSlot struct {
	Name       string
	Confidence float64
	Source     string
	Value      string
	Start      int
	End        int
	Entity     *utterance.EntityTag
}

// Labelize renders the BIO label of every non-space token. Slot tokens that
// matched no entity get the any suffix.
func Labelize(u *utterance.Utterance) []string {
	var labels []string
	for _, tok := range u.Tokens() {
		if tok.IsSpace {
			continue
		}
		slots := u.TokenSlots(tok.Index)
		if len(slots) == 0 {
			labels = append(labels, outsideTag)
			continue
		}
		slot := slots[0]
		tag := "I"
		if slot.StartToken == tok.Index {
			tag = "B"
		}
		label := tag + "-" + slot.Name
		if len(u.TokenEntities(tok.Index)) == 0 {
			label += anySuffix
		}
		labels = append(labels, label)
	}
	return labels
}

// Train fits the CRF on every intent except none. Intents without slot
// definitions still contribute all-outside sequences. Returns a tagger with
// a nil CRF when no intent defines slots.
func Train(intents []*nlu.Intent, feat *Featurizer, seed int64, log *zap.Logger) (*Tagger, error) {
	t := &Tagger{
		Featurizer: feat,
		Intents:    map[string]IntentSlotFeatures{},
		SlotDefs:   map[string][]domain.SlotDefinition{},
		log:        log,
	}

	var seqs []ml.FeatureSeq
	var labels [][]string
	hasSlots := false
	for _, intent := range intents {
		if intent.Name == nlu.NoneIntent {
			continue
		}
		isf := IntentSlotFeatures{Name: intent.Name, Vocab: intent.Vocab, SlotEntities: intent.SlotEntities}
		t.Intents[intent.Name] = isf
		t.SlotDefs[intent.Name] = intent.SlotDefinitions
		if len(intent.SlotDefinitions) > 0 {
			hasSlots = true
		}
		for _, u := range intent.Utterances {
			seqs = append(seqs, feat.Sequence(u, isf, false))
			labels = append(labels, Labelize(u))
		}
	}

	if !hasSlots || len(seqs) == 0 {
		log.Info("no slot definitions, skipping slot tagger training")
		return t, nil
	}

	opts := ml.CRFOptions{C1: 0.0001, C2: 0.01, MaxIterations: 500, LearningRate: 0.1, Seed: seed}
	crf, err := ml.TrainCRF(seqs, labels, opts)
	if err != nil {
		return nil, fmt.Errorf("slots: train: %w", err)
	}
	t.CRF = crf
	return t, nil
}

// Predict extracts the slots of the utterance for the elected intent.
func (t *Tagger) Predict(u *utterance.Utterance, intentName string) ([]ExtractedSlot, error) {
	if t.CRF == nil {
		return nil, nil
	}
	isf, ok := t.Intents[intentName]
	if !ok {
		return nil, nil
	}
	defs := t.SlotDefs[intentName]

	seq := t.Featurizer.Sequence(u, isf, true)
	marginals := t.CRF.Marginals(seq)

	results := make([]tagResult, len(marginals))
	for i, m := range marginals {
		results[i] = removeInvalidTags(defs, bestTag(m))
	}
	return t.assembleSlots(isf.SlotEntities, u, results), nil
}

type tagResult struct {
	tag         string
	name        string
	probability float64
}

// bestTag merges every label with its any-suffixed variant and keeps the
// highest combined marginal.
func bestTag(marginal map[string]float64) tagResult {
	combined := map[string]float64{}
	for label, p := range marginal {
		base := strings.TrimSuffix(label, anySuffix)
		combined[base] += p
	}
	bases := make([]string, 0, len(combined))
	for base := range combined {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	best, bestP := outsideTag, -1.0
	for _, base := range bases {
		if combined[base] > bestP {
			best, bestP = base, combined[base]
		}
	}
	if best == outsideTag {
		return tagResult{tag: outsideTag, probability: bestP}
	}
	return tagResult{tag: best[:1], name: best[2:], probability: bestP}
}

func removeInvalidTags(defs []domain.SlotDefinition, tag tagResult) tagResult {
	if tag.tag == outsideTag {
		return tag
	}
	known := false
	for _, d := range defs {
		if d.Name == tag.name {
			known = true
			break
		}
	}
	if tag.probability < MinSlotConfidence || !known {
		return tagResult{tag: outsideTag, probability: 1 - tag.probability}
	}
	return tag
}

// assembleSlots merges inside-tags into their span, slices the source text
// and substitutes the value of an overlapping allowed entity when present.
func (t *Tagger) assembleSlots(slotEntities []string, u *utterance.Utterance, results []tagResult) []ExtractedSlot {
	var words []*utterance.Token
	for _, tok := range u.Tokens() {
		if !tok.IsSpace {
			words = append(words, tok)
		}
	}

	text := []rune(u.Text)
	var out []ExtractedSlot
	for i, res := range results {
		if i >= len(words) || res.tag == outsideTag {
			continue
		}
		tok := words[i]
		end := tok.Offset + len([]rune(tok.Value))
		if len(out) > 0 && res.tag == "I" && out[len(out)-1].Name == res.name {
			last := &out[len(out)-1]
			last.End = end
			source := string(text[last.Start:end])
			last.Source = source
			last.Value = source
			continue
		}
		out = append(out, ExtractedSlot{
			Name:       res.name,
			Confidence: res.probability,
			Source:     tok.Value,
			Value:      tok.Value,
			Start:      tok.Offset,
			End:        end,
		})
	}

	for i := range out {
		s := &out[i]
		for _, e := range u.Entities() {
			containsSlot := e.Start <= s.Start && e.End >= s.End
			containedBySlot := e.Start >= s.Start && e.End <= s.End
			if !containsSlot && !containedBySlot {
				continue
			}
			allowed := false
			for _, a := range slotEntities {
				if e.Name == a {
					allowed = true
					break
				}
			}
			if !allowed {
				continue
			}
			entity := e
			s.Entity = &entity
			s.Value = e.Value
			break
		}
	}
	return out
}

func (t *Tagger) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func LoadTagger(data []byte, log *zap.Logger) (*Tagger, error) {
	var t Tagger
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("slots: load: %w", err)
	}
	t.log = log
	return &t, nil
}
