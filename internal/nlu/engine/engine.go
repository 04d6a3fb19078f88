// Package engine is the facade tying training and prediction together: it
// runs the training pipeline, reassembles trained models from their
// serialized artifacts and executes the full prediction path on a sentence.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu"
	"github.com/botkit-ai/nlu-engine/internal/nlu/entities"
	"github.com/botkit-ai/nlu-engine/internal/nlu/intents"
	"github.com/botkit-ai/nlu-engine/internal/nlu/pipeline"
	"github.com/botkit-ai/nlu-engine/internal/nlu/slots"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
	"github.com/botkit-ai/nlu-engine/internal/ports"
)

// Predictions this close to the uniform confidence mark the result ambiguous.
const ambiguityRange = 0.1

// Engine orchestrates training runs and predictions against loaded models.
type Engine struct {
	provider ports.LanguageProvider
	pipeline *pipeline.Pipeline
	log      *zap.Logger
}

func New(provider ports.LanguageProvider, cache ports.Cache, log *zap.Logger) *Engine {
	return &Engine{
		provider: provider,
		pipeline: pipeline.New(provider, cache, log),
		log:      log,
	}
}

// Train runs the training pipeline. See pipeline.Run for the retry and
// partial-output semantics.
func (e *Engine) Train(ctx context.Context, input *domain.TrainInput, onProgress pipeline.ProgressFunc) (*domain.TrainOutput, error) {
	return e.pipeline.Run(ctx, input, onProgress)
}

// ModelHash is the content hash a training run of this input would produce.
func (e *Engine) ModelHash(input *domain.TrainInput) string {
	return pipeline.ModelHash(input)
}

// Model is a trained model reassembled from its artifacts, ready to serve
// predictions.
type Model struct {
	Hash       string
	Language   string
	Version    string
	Contexts   []string
	Lists      []entities.ListEntityModel
	Patterns   []domain.EntityDefinition
	Weights    map[string]float64
	KMeans     *ml.KMeansModel
	Classifier *intents.Classifier
	Tagger     *slots.Tagger
}

// LoadModel rebuilds a model from the artifacts a training run emitted. The
// meta, intent-l0 and tfidf artifacts are required; the rest are optional.
func (e *Engine) LoadModel(artifacts []domain.ModelArtifact) (*Model, error) {
	m := &Model{}
	var (
		meta   *pipeline.MetaArtifact
		l0     []byte
		l1     = map[string][]byte{}
		tagger []byte
	)

	for _, a := range artifacts {
		if m.Hash == "" {
			m.Hash = a.Meta.Hash
		}
		switch a.Meta.Type {
		case domain.ModelTypeMeta:
			meta = &pipeline.MetaArtifact{}
			if err := json.Unmarshal(a.Model, meta); err != nil {
				return nil, fmt.Errorf("engine: load meta artifact: %w", err)
			}
		case domain.ModelTypeListEntities:
			var payload pipeline.EntityArtifact
			if err := json.Unmarshal(a.Model, &payload); err != nil {
				return nil, fmt.Errorf("engine: load entity artifact: %w", err)
			}
			m.Lists = payload.Lists
			m.Patterns = payload.Patterns
		case domain.ModelTypeTFIDF:
			var payload pipeline.VocabArtifact
			if err := json.Unmarshal(a.Model, &payload); err != nil {
				return nil, fmt.Errorf("engine: load vocabulary artifact: %w", err)
			}
			m.Weights = payload.Weights
			m.KMeans = payload.KMeans
		case domain.ModelTypeIntentL0:
			l0 = a.Model
		case domain.ModelTypeIntentL1:
			l1[a.Meta.Context] = a.Model
		case domain.ModelTypeSlotCRF:
			tagger = a.Model
		}
	}

	if meta == nil {
		return nil, fmt.Errorf("engine: model is missing its meta artifact")
	}
	if l0 == nil {
		return nil, fmt.Errorf("engine: model is missing its context classifier")
	}
	if m.Weights == nil {
		return nil, fmt.Errorf("engine: model is missing its vocabulary weights")
	}
	m.Language = meta.Language
	m.Version = meta.Version
	m.Contexts = meta.Contexts

	exact, err := json.Marshal(meta.ExactIndex)
	if err != nil {
		return nil, fmt.Errorf("engine: encode exact-match index: %w", err)
	}
	classifier, err := intents.LoadClassifier(l0, exact, l1, e.log)
	if err != nil {
		return nil, err
	}
	m.Classifier = classifier

	if tagger != nil {
		t, err := slots.LoadTagger(tagger, e.log)
		if err != nil {
			return nil, err
		}
		m.Tagger = t
	}
	return m, nil
}

// Predict runs the full prediction path on one sentence: tokenize and embed,
// extract entities, classify within the included contexts and tag the slots
// of the winning intent. System entities resolved by the caller are merged
// into the extraction results.
func (e *Engine) Predict(ctx context.Context, m *Model, text string, includedContexts []string, systemEntities []domain.Entity) (*domain.PredictOutput, error) {
	u, err := e.buildUtterance(ctx, m, text)
	if err != nil {
		return nil, err
	}

	if tags := entities.ExtractListEntities(u, m.Lists); len(tags) > 0 {
		e.tagAll(u, tags)
	}
	patternTags, err := entities.ExtractPatternEntities(u, m.Patterns)
	if err != nil {
		return nil, err
	}
	e.tagAll(u, patternTags)
	e.tagSystem(u, systemEntities)

	preds, err := m.Classifier.Predict(u, includedContexts)
	if err != nil {
		return nil, err
	}

	out := &domain.PredictOutput{
		Text:      text,
		Language:  m.Language,
		Intents:   preds,
		Entities:  entityOutputs(u),
		Slots:     map[string]domain.SlotPrediction{},
		Ambiguous: isAmbiguous(preds),
	}

	if m.Tagger != nil && len(preds) > 0 && preds[0].Label != nlu.NoneIntent {
		extracted, err := m.Tagger.Predict(u, preds[0].Label)
		if err != nil {
			return nil, err
		}
		for _, s := range extracted {
			out.Slots[s.Name] = slotOutput(s)
		}
	}
	return out, nil
}

// buildUtterance tokenizes and embeds the sentence. Provider failures abort
// the prediction; there is no degraded mode without embeddings.
func (e *Engine) buildUtterance(ctx context.Context, m *Model, text string) (*utterance.Utterance, error) {
	tokenized, err := e.provider.Tokenize(ctx, []string{text}, m.Language)
	if err != nil {
		return nil, fmt.Errorf("engine: tokenize %q (%s): %w", text, m.Language, err)
	}
	if len(tokenized) == 0 || len(tokenized[0]) == 0 {
		return nil, fmt.Errorf("engine: %q (%s) yielded no tokens", text, m.Language)
	}
	tokens := tokenized[0]

	vectors, err := e.provider.Vectorize(ctx, tokens, m.Language)
	if err != nil {
		return nil, fmt.Errorf("engine: vectorize %q (%s): %w", text, m.Language, err)
	}

	u, err := utterance.New(tokens, vectors, m.Language)
	if err != nil {
		return nil, err
	}
	u.SetGlobalTFIDF(m.Weights)
	u.SetKMeans(m.KMeans)
	return u, nil
}

func (e *Engine) tagAll(u *utterance.Utterance, tags []utterance.EntityTag) {
	for _, tag := range tags {
		if err := u.TagEntity(tag); err != nil {
			e.log.Warn("dropping entity tag", zap.String("entity", tag.Name), zap.Error(err))
		}
	}
}

// tagSystem anchors externally resolved system entities onto the utterance.
// Spans that do not line up with the tokenization are dropped with a warning.
func (e *Engine) tagSystem(u *utterance.Utterance, ents []domain.Entity) {
	for _, ent := range ents {
		tag := utterance.EntityTag{
			Name:       ent.Name,
			Type:       ent.Type,
			Value:      ent.Data.Value,
			Unit:       ent.Data.Unit,
			Source:     ent.Meta.Source,
			Confidence: ent.Meta.Confidence,
			Start:      ent.Meta.Start,
			End:        ent.Meta.End,
		}
		if err := u.TagEntity(tag); err != nil {
			e.log.Warn("dropping system entity", zap.String("entity", ent.Name), zap.Error(err))
		}
	}
}

func entityOutputs(u *utterance.Utterance) []domain.Entity {
	tags := u.Entities()
	out := make([]domain.Entity, 0, len(tags))
	for _, tag := range tags {
		out = append(out, domain.Entity{
			Name: tag.Name,
			Type: tag.Type,
			Meta: domain.EntityMeta{
				Start:      tag.Start,
				End:        tag.End,
				Confidence: tag.Confidence,
				Source:     tag.Source,
			},
			Data: domain.EntityData{Value: tag.Value, Unit: tag.Unit},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Meta.Start < out[j].Meta.Start })
	return out
}

func slotOutput(s slots.ExtractedSlot) domain.SlotPrediction {
	pred := domain.SlotPrediction{
		Name:       s.Name,
		Value:      s.Value,
		Source:     s.Source,
		Start:      s.Start,
		End:        s.End,
		Confidence: s.Confidence,
	}
	if s.Entity != nil {
		pred.Entity = &domain.Entity{
			Name: s.Entity.Name,
			Type: s.Entity.Type,
			Meta: domain.EntityMeta{
				Start:      s.Entity.Start,
				End:        s.Entity.End,
				Confidence: s.Entity.Confidence,
				Source:     s.Entity.Source,
			},
			Data: domain.EntityData{Value: s.Entity.Value, Unit: s.Entity.Unit},
		}
	}
	return pred
}

// isAmbiguous reports whether several intents sit within ambiguityRange of
// the uniform confidence, meaning the classifier could not separate them.
func isAmbiguous(preds []domain.IntentPrediction) bool {
	if len(preds) < 2 {
		return false
	}
	uniform := 1 / float64(len(preds))
	near := 0
	for _, p := range preds {
		if math.Abs(p.Confidence-uniform) <= ambiguityRange {
			near++
		}
	}
	return near >= 2
}
