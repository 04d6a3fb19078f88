package pipeline

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu"
	"github.com/botkit-ai/nlu-engine/internal/nlu/entities"
)

// EntityArtifact bundles everything prediction-time entity extraction needs.
type EntityArtifact struct {
	Lists    []entities.ListEntityModel `json:"lists"`
	Patterns []domain.EntityDefinition  `json:"patterns"`
}

// VocabArtifact carries the global term weights and the token cluster model.
type VocabArtifact struct {
	Weights map[string]float64 `json:"weights"`
	KMeans  *ml.KMeansModel    `json:"kmeans"`
}

// MetaArtifact carries the run-level lookups that belong to no single model.
type MetaArtifact struct {
	Language   string              `json:"language"`
	Version    string              `json:"version"`
	Contexts   []string            `json:"contexts"`
	ExactIndex nlu.ExactMatchIndex `json:"exact_index"`
}

// artifacts serializes whatever the state holds. A partial state after a
// failed run yields a partial artifact list.
func (p *Pipeline) artifacts(s *TrainState, hash string) ([]domain.ModelArtifact, error) {
	if s == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	scope := s.Input.BotID

	var out []domain.ModelArtifact
	add := func(typ domain.ModelType, ctxName string, model []byte) {
		out = append(out, domain.ModelArtifact{
			Meta: domain.ArtifactMeta{
				Context:   ctxName,
				Type:      typ,
				Hash:      hash,
				Scope:     scope,
				CreatedOn: now,
			},
			Model: model,
		})
	}
	addJSON := func(typ domain.ModelType, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		add(typ, "", data)
		return nil
	}

	if s.ListModels != nil || len(patternDefs(s.Input.Entities)) > 0 {
		payload := EntityArtifact{Lists: s.ListModels, Patterns: patternDefs(s.Input.Entities)}
		if err := addJSON(domain.ModelTypeListEntities, payload); err != nil {
			return nil, err
		}
	}
	if s.TFIDF != nil {
		if err := addJSON(domain.ModelTypeTFIDF, VocabArtifact{Weights: s.TFIDF, KMeans: s.KMeans}); err != nil {
			return nil, err
		}
	}
	if s.L0 != nil {
		data, err := s.L0.Marshal()
		if err != nil {
			return nil, err
		}
		add(domain.ModelTypeIntentL0, "", data)
	}

	contexts := make([]string, 0, len(s.L1PerCtx))
	for ctxName := range s.L1PerCtx {
		contexts = append(contexts, ctxName)
	}
	sort.Strings(contexts)
	for _, ctxName := range contexts {
		data, err := s.L1PerCtx[ctxName].Marshal()
		if err != nil {
			return nil, err
		}
		add(domain.ModelTypeIntentL1, ctxName, data)
	}

	if s.SlotTagger != nil {
		data, err := s.SlotTagger.Marshal()
		if err != nil {
			return nil, err
		}
		add(domain.ModelTypeSlotCRF, "", data)
	}
	if s.ExactIndex != nil {
		payload := MetaArtifact{
			Language:   s.Input.Language,
			Version:    s.Version,
			Contexts:   s.Contexts,
			ExactIndex: s.ExactIndex,
		}
		if err := addJSON(domain.ModelTypeMeta, payload); err != nil {
			return nil, err
		}
	}
	return out, nil
}
