package intents

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu"
)

func marshalExact(index nlu.ExactMatchIndex) ([]byte, error) {
	return json.Marshal(index)
}

// LoadClassifier rebuilds a classifier from its serialized artifacts. l1 maps
// context name to the serialized per-context model.
func LoadClassifier(l0, exact []byte, l1 map[string][]byte, log *zap.Logger) (*Classifier, error) {
	c := NewClassifier(log)

	model, err := ml.UnmarshalSVM(l0)
	if err != nil {
		return nil, fmt.Errorf("intents: load context model: %w", err)
	}
	c.L0 = model

	if len(exact) > 0 {
		if err := json.Unmarshal(exact, &c.ExactIndex); err != nil {
			return nil, fmt.Errorf("intents: load exact-match index: %w", err)
		}
	}

	for ctx, data := range l1 {
		model, err := ml.UnmarshalSVM(data)
		if err != nil {
			return nil, fmt.Errorf("intents: load intent model for context %s: %w", ctx, err)
		}
		c.L1PerCtx[ctx] = model
	}
	return c, nil
}
