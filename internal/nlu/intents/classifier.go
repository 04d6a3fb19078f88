// Package intents implements the hierarchical context/intent classifier.
// L0 scores contexts; one L1 model per context scores its intents. Raw L1
// confidences are recalibrated against the L0 confidence before election.
package intents

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

// MinIntentsForTraining is the floor below which classifier training is
// skipped for a scope, with a warning rather than an error.
const MinIntentsForTraining = 2

// Classifier bundles the trained L0 and per-context L1 models plus the
// exact-match index.
type Classifier struct {
	L0         *ml.SVMClassifier            `json:"l0"`
	L1PerCtx   map[string]*ml.SVMClassifier `json:"l1_per_ctx"`
	ExactIndex nlu.ExactMatchIndex          `json:"exact_index"`

	log *zap.Logger
}

func NewClassifier(log *zap.Logger) *Classifier {
	return &Classifier{
		L1PerCtx:   map[string]*ml.SVMClassifier{},
		ExactIndex: nlu.ExactMatchIndex{},
		log:        log,
	}
}

// SetLogger restores the logger after deserialization.
func (c *Classifier) SetLogger(log *zap.Logger) { c.log = log }

// TrainL0 fits the context classifier on sentence embeddings. The none
// intent never contributes points to L0.
func TrainL0(intents []*nlu.Intent, contexts []string, seed int64) (*ml.SVMClassifier, error) {
	var points []ml.DataPoint
	for _, ctx := range contexts {
		for _, intent := range intents {
			if intent.Name == nlu.NoneIntent || !containsString(intent.Contexts, ctx) {
				continue
			}
			for _, u := range intent.Utterances {
				emb, err := u.SentenceEmbedding()
				if err != nil {
					continue
				}
				points = append(points, ml.DataPoint{Label: ctx, Coordinates: emb})
			}
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("intents: no training points for context classifier")
	}
	opts := ml.DefaultSVMOptions()
	opts.Seed = seed
	return ml.TrainSVM(points, opts)
}

// TrainL1 fits one intent classifier for a context on
// [sentenceEmbedding..., tokenCount] features. Returns nil without error when
// the context has fewer than MinIntentsForTraining intents.
func TrainL1(intents []*nlu.Intent, context string, seed int64, log *zap.Logger) (*ml.SVMClassifier, error) {
	var points []ml.DataPoint
	names := map[string]bool{}
	for _, intent := range intents {
		if !containsString(intent.Contexts, context) {
			continue
		}
		names[intent.Name] = true
		for _, u := range intent.Utterances {
			emb, err := u.SentenceEmbedding()
			if err != nil {
				continue
			}
			coords := append(append([]float64{}, emb...), float64(len(u.Tokens())))
			points = append(points, ml.DataPoint{Label: intent.Name, Coordinates: coords})
		}
	}
	if len(names) < MinIntentsForTraining {
		log.Warn("skipping intent classifier, not enough intents",
			zap.String("context", context),
			zap.Int("intents", len(names)),
		)
		return nil, nil
	}
	opts := ml.DefaultSVMOptions()
	opts.Seed = seed
	return ml.TrainSVM(points, opts)
}

// BuildExactMatchIndex keys every training utterance rendering to its intent.
func BuildExactMatchIndex(intents []*nlu.Intent) nlu.ExactMatchIndex {
	index := nlu.ExactMatchIndex{}
	for _, intent := range intents {
		if intent.Name == nlu.NoneIntent {
			continue
		}
		for _, u := range intent.Utterances {
			key := u.String(nlu.ExactMatchKeyOptions)
			if key == "" {
				continue
			}
			index[key] = nlu.ExactMatchEntry{Intent: intent.Name, Contexts: intent.Contexts}
		}
	}
	return index
}

// Predict classifies the utterance within the requested contexts and returns
// calibrated intent predictions, best first.
func (c *Classifier) Predict(u *utterance.Utterance, includedContexts []string) ([]domain.IntentPrediction, error) {
	if c.L0 == nil {
		return nil, fmt.Errorf("intents: classifier not trained")
	}
	emb, err := u.SentenceEmbedding()
	if err != nil {
		return nil, fmt.Errorf("intents: predict: %w", err)
	}

	ctxPreds, err := c.L0.Predict(emb)
	if err != nil {
		return nil, fmt.Errorf("intents: context prediction: %w", err)
	}
	if len(includedContexts) == 0 {
		for _, p := range ctxPreds {
			includedContexts = append(includedContexts, p.Label)
		}
	}

	exactKey := u.String(nlu.ExactMatchKeyOptions)
	l1Coords := append(append([]float64{}, emb...), float64(len(u.Tokens())))

	perCtx := map[string][]ml.Prediction{}
	for _, ctxPred := range ctxPreds {
		ctx := ctxPred.Label
		if !containsString(includedContexts, ctx) {
			continue
		}
		if entry, ok := c.ExactIndex[exactKey]; ok && containsString(entry.Contexts, ctx) {
			perCtx[ctx] = []ml.Prediction{{Label: entry.Intent, Confidence: 1}}
			continue
		}
		model := c.L1PerCtx[ctx]
		if model == nil {
			continue
		}
		preds, err := model.Predict(l1Coords)
		if err != nil {
			return nil, fmt.Errorf("intents: intent prediction for context %s: %w", ctx, err)
		}
		perCtx[ctx] = preds
	}

	return Elect(ctxPreds, perCtx, includedContexts), nil
}

func (c *Classifier) Marshal() ([]byte, []byte, map[string][]byte, error) {
	l0, err := c.L0.Marshal()
	if err != nil {
		return nil, nil, nil, err
	}
	exact, err := marshalExact(c.ExactIndex)
	if err != nil {
		return nil, nil, nil, err
	}
	l1 := map[string][]byte{}
	for ctx, model := range c.L1PerCtx {
		if model == nil {
			continue
		}
		data, err := model.Marshal()
		if err != nil {
			return nil, nil, nil, err
		}
		l1[ctx] = data
	}
	return l0, exact, l1, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
