package pipeline

import (
	"encoding/json"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu"
	"github.com/botkit-ai/nlu-engine/internal/nlu/entities"
	"github.com/botkit-ai/nlu-engine/internal/nlu/slots"
)

// TrainState is the structure the steps pass along. Every field carries a
// JSON tag; steps declare the tags they read and write, and the step cache
// hashes and splices fields through their JSON form.
type TrainState struct {
	Input        *domain.TrainInput           `json:"input"`
	Version      string                       `json:"version"`
	Contexts     []string                     `json:"contexts"`
	ListModels   []entities.ListEntityModel   `json:"list_models"`
	Intents      []*nlu.Intent                `json:"intents"`
	VocabVectors map[string][]float64         `json:"vocab_vectors"`
	TFIDF        map[string]float64           `json:"tfidf"`
	KMeans       *ml.KMeansModel              `json:"kmeans"`
	ExactIndex   nlu.ExactMatchIndex          `json:"exact_index"`
	L0           *ml.SVMClassifier            `json:"l0"`
	L1PerCtx     map[string]*ml.SVMClassifier `json:"l1_per_ctx"`
	SlotTagger   *slots.Tagger                `json:"slot_tagger"`
}

func newTrainState(input *domain.TrainInput) *TrainState {
	return &TrainState{Input: input, Version: EngineVersion}
}

// fieldSubset marshals the state and keeps only the named top-level fields.
// json.Marshal sorts map keys, so the result is deterministic for equal state.
func fieldSubset(s *TrainState, names []string) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	subset := make(map[string]json.RawMessage, len(names))
	for _, name := range names {
		if v, ok := all[name]; ok {
			subset[name] = v
		}
	}
	return json.Marshal(subset)
}

// spliceFields overwrites the named fields of the state with the cached
// values and rebuilds the state from the merged JSON.
func spliceFields(s *TrainState, names []string, cached []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(cached, &fields); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return err
	}
	for _, name := range names {
		if v, ok := fields[name]; ok {
			all[name] = v
		}
	}
	merged, err := json.Marshal(all)
	if err != nil {
		return err
	}
	var restored TrainState
	if err := json.Unmarshal(merged, &restored); err != nil {
		return err
	}
	*s = restored
	return nil
}
