// Package nlu holds the types shared between the training pipeline, the
// classifiers and the slot tagger.
package nlu

import (
	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

// NoneIntent is the synthesized intent capturing out-of-scope inputs.
const NoneIntent = "none"

// Intent is a designer intent after its utterances have been tokenized,
// vectorized and tagged.
type Intent struct {
	Name            string                  `json:"name"`
	Contexts        []string                `json:"contexts"`
	SlotDefinitions []domain.SlotDefinition `json:"slot_definitions"`
	Utterances      []*utterance.Utterance  `json:"utterances"`
	Vocab           map[string]bool         `json:"vocab"`
	SlotEntities    []string                `json:"slot_entities"`
}

// ExactMatchIndex maps a normalized utterance rendering to its intent, per
// context. Consulted before the L1 classifier; hits short-circuit with
// confidence 1.
type ExactMatchIndex map[string]ExactMatchEntry

type ExactMatchEntry struct {
	Intent   string   `json:"intent"`
	Contexts []string `json:"contexts"`
}

// ExactMatchKeyOptions is the rendering used to key the exact-match index.
var ExactMatchKeyOptions = utterance.StringOptions{
	LowerCase: true,
	OnlyWords: true,
	Slots:     utterance.TagModeName,
	Entities:  utterance.TagModeKeep,
}
