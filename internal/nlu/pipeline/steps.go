package pipeline

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu"
	"github.com/botkit-ai/nlu-engine/internal/nlu/entities"
	"github.com/botkit-ai/nlu-engine/internal/nlu/intents"
	"github.com/botkit-ai/nlu-engine/internal/nlu/slots"
	"github.com/botkit-ai/nlu-engine/internal/nlu/tfidf"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

// Bounded fan-out for per-entity and per-intent sub-tasks.
const maxFanOut = 4

const kmeansClusters = 8

// Step is one named pipeline stage. Inputs and Outputs list the JSON field
// names of TrainState the stage reads and writes; the step cache is keyed on
// the input fields and stores the output fields.
type Step struct {
	Name    string
	Inputs  []string
	Outputs []string
	Run     func(ctx context.Context, s *TrainState) error
}

func (p *Pipeline) steps() []Step {
	return []Step{
		{
			Name:    "prepare-list-entities",
			Inputs:  []string{"input", "version"},
			Outputs: []string{"list_models"},
			Run:     p.prepareListEntities,
		},
		{
			Name:    "process-intents",
			Inputs:  []string{"input", "version"},
			Outputs: []string{"intents", "contexts", "vocab_vectors"},
			Run:     p.processIntents,
		},
		{
			Name:    "tfidf",
			Inputs:  []string{"intents"},
			Outputs: []string{"tfidf", "intents"},
			Run:     p.computeTFIDF,
		},
		{
			Name:    "cluster-tokens",
			Inputs:  []string{"input", "intents"},
			Outputs: []string{"kmeans", "intents"},
			Run:     p.clusterTokens,
		},
		{
			Name:    "extract-entities",
			Inputs:  []string{"input", "intents", "list_models"},
			Outputs: []string{"intents"},
			Run:     p.extractEntities,
		},
		{
			Name:    "append-none",
			Inputs:  []string{"input", "intents", "contexts", "vocab_vectors", "tfidf"},
			Outputs: []string{"intents"},
			Run:     p.appendNone,
		},
		{
			Name:    "exact-index",
			Inputs:  []string{"intents"},
			Outputs: []string{"exact_index"},
			Run:     p.buildExactIndex,
		},
		{
			Name:    "train-context",
			Inputs:  []string{"input", "intents", "contexts"},
			Outputs: []string{"l0"},
			Run:     p.trainContext,
		},
		{
			Name:    "train-intents",
			Inputs:  []string{"input", "intents", "contexts"},
			Outputs: []string{"l1_per_ctx"},
			Run:     p.trainIntents,
		},
		{
			Name:    "train-slots",
			Inputs:  []string{"input", "intents", "tfidf", "vocab_vectors"},
			Outputs: []string{"slot_tagger"},
			Run:     p.trainSlots,
		},
	}
}

// prepareListEntities tokenizes every occurrence and synonym of each list
// entity, one entity per sub-task.
func (p *Pipeline) prepareListEntities(ctx context.Context, s *TrainState) error {
	var defs []domain.EntityDefinition
	for _, def := range s.Input.Entities {
		if def.Type == domain.EntityTypeList {
			defs = append(defs, def)
		}
	}

	models := make([]entities.ListEntityModel, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			var values []string
			for _, occ := range def.Occurrences {
				values = append(values, occ.Name)
				values = append(values, occ.Synonyms...)
			}
			tokenized, err := p.provider.Tokenize(gctx, values, s.Input.Language)
			if err != nil {
				return fmt.Errorf("tokenize list entity %s: %w", def.Name, err)
			}
			byValue := make(map[string][]string, len(values))
			for j, v := range values {
				byValue[v] = tokenized[j]
			}
			models[i] = entities.MakeListEntityModel(def, s.Input.Language, func(v string) []string {
				return byValue[v]
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.ListModels = models
	return nil
}

// processIntents tokenizes and vectorizes every example utterance, tags the
// annotated slots and derives each intent's vocabulary.
func (p *Pipeline) processIntents(ctx context.Context, s *TrainState) error {
	processed := make([]*nlu.Intent, len(s.Input.Intents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for i, def := range s.Input.Intents {
		i, def := i, def
		g.Go(func() error {
			intent, err := p.processIntent(gctx, def, s.Input.Language)
			if err != nil {
				return err
			}
			processed[i] = intent
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.Intents = processed

	ctxSet := map[string]bool{}
	vocabVectors := map[string][]float64{}
	for _, intent := range processed {
		for _, c := range intent.Contexts {
			ctxSet[c] = true
		}
		for _, u := range intent.Utterances {
			for _, tok := range u.Tokens() {
				if !tok.IsWord || len(tok.Vector) == 0 {
					continue
				}
				if _, ok := vocabVectors[tok.Canonical()]; !ok {
					vocabVectors[tok.Canonical()] = tok.Vector
				}
			}
		}
	}
	contexts := make([]string, 0, len(ctxSet))
	for c := range ctxSet {
		contexts = append(contexts, c)
	}
	sort.Strings(contexts)
	s.Contexts = contexts
	s.VocabVectors = vocabVectors
	return nil
}

func (p *Pipeline) processIntent(ctx context.Context, def domain.IntentDefinition, language string) (*nlu.Intent, error) {
	cleaned := make([]string, len(def.Utterances))
	spans := make([][]slotSpan, len(def.Utterances))
	for i, raw := range def.Utterances {
		cleaned[i], spans[i] = parseSlotMarkup(raw)
	}

	tokenized, err := p.provider.Tokenize(ctx, cleaned, language)
	if err != nil {
		return nil, fmt.Errorf("tokenize intent %s: %w", def.Name, err)
	}

	intent := &nlu.Intent{
		Name:            def.Name,
		Contexts:        def.Contexts,
		SlotDefinitions: def.Slots,
		Vocab:           map[string]bool{},
		SlotEntities:    slotEntityUnion(def.Slots),
	}
	for i, tokens := range tokenized {
		vectors, err := p.provider.Vectorize(ctx, tokens, language)
		if err != nil {
			return nil, fmt.Errorf("vectorize intent %s: %w", def.Name, err)
		}
		u, err := utterance.New(tokens, vectors, language)
		if err != nil {
			return nil, fmt.Errorf("intent %s: %w", def.Name, err)
		}
		text := []rune(cleaned[i])
		for _, span := range spans[i] {
			tag := utterance.SlotTag{
				Name:   span.Name,
				Source: string(text[span.Start:span.End]),
				Start:  span.Start,
				End:    span.End,
			}
			if err := u.TagSlot(tag); err != nil {
				return nil, fmt.Errorf("intent %s: %w", def.Name, err)
			}
		}
		for _, tok := range u.Tokens() {
			if tok.IsWord {
				intent.Vocab[tok.Canonical()] = true
			}
		}
		intent.Utterances = append(intent.Utterances, u)
	}
	return intent, nil
}

func slotEntityUnion(defs []domain.SlotDefinition) []string {
	seen := map[string]bool{}
	var out []string
	for _, def := range defs {
		for _, e := range def.Entities {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	sort.Strings(out)
	return out
}

// computeTFIDF treats each intent as one document and assigns every token
// its global weight.
func (p *Pipeline) computeTFIDF(_ context.Context, s *TrainState) error {
	corpus := tfidf.Corpus{}
	for _, intent := range s.Intents {
		var doc []string
		for _, u := range intent.Utterances {
			for _, tok := range u.Tokens() {
				if tok.IsWord {
					doc = append(doc, tok.Canonical())
				}
			}
		}
		corpus[intent.Name] = doc
	}

	weights := tfidf.Compute(corpus)
	global := map[string]float64{}
	var sum float64
	for term, w := range weights[tfidf.AvgKey] {
		global[term] = w
		sum += w
	}
	if len(global) > 0 {
		global[utterance.AvgTokenKey] = sum / float64(len(global))
	}

	s.TFIDF = global
	for _, intent := range s.Intents {
		for _, u := range intent.Utterances {
			u.SetGlobalTFIDF(global)
		}
	}
	return nil
}

// clusterTokens fits k-means over every word vector and stamps each token
// with its cluster id.
func (p *Pipeline) clusterTokens(_ context.Context, s *TrainState) error {
	var points [][]float64
	for _, intent := range s.Intents {
		for _, u := range intent.Utterances {
			for _, tok := range u.Tokens() {
				if tok.IsWord && len(tok.Vector) > 0 {
					points = append(points, tok.Vector)
				}
			}
		}
	}
	if len(points) == 0 {
		return nil
	}

	model, err := ml.KMeans(points, kmeansClusters, s.Input.Seed)
	if err != nil {
		return fmt.Errorf("cluster tokens: %w", err)
	}
	s.KMeans = model
	for _, intent := range s.Intents {
		for _, u := range intent.Utterances {
			u.SetKMeans(model)
		}
	}
	return nil
}

// extractEntities tags list and pattern entities on every training utterance,
// one intent per sub-task.
func (p *Pipeline) extractEntities(ctx context.Context, s *TrainState) error {
	patterns := patternDefs(s.Input.Entities)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for _, intent := range s.Intents {
		intent := intent
		g.Go(func() error {
			for _, u := range intent.Utterances {
				for _, tag := range entities.ExtractListEntities(u, s.ListModels) {
					if err := u.TagEntity(tag); err != nil {
						return err
					}
				}
				tags, err := entities.ExtractPatternEntities(u, patterns)
				if err != nil {
					return err
				}
				for _, tag := range tags {
					if err := u.TagEntity(tag); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func patternDefs(defs []domain.EntityDefinition) []domain.EntityDefinition {
	var out []domain.EntityDefinition
	for _, def := range defs {
		if def.Type == domain.EntityTypePattern {
			out = append(out, def)
		}
	}
	return out
}

// appendNone synthesizes the out-of-scope intent from vocabulary and junk
// words.
func (p *Pipeline) appendNone(_ context.Context, s *TrainState) error {
	none := synthesizeNoneIntent(s.Intents, s.Contexts, s.VocabVectors, s.TFIDF, s.Input.Language, s.Input.Seed)
	if none == nil {
		p.log.Warn("skipping none intent, no vocabulary to sample from")
		return nil
	}
	s.Intents = append(s.Intents, none)
	return nil
}

func (p *Pipeline) buildExactIndex(_ context.Context, s *TrainState) error {
	s.ExactIndex = intents.BuildExactMatchIndex(s.Intents)
	return nil
}

func (p *Pipeline) trainContext(_ context.Context, s *TrainState) error {
	model, err := intents.TrainL0(s.Intents, s.Contexts, s.Input.Seed)
	if err != nil {
		return fmt.Errorf("train context classifier: %w", err)
	}
	s.L0 = model
	return nil
}

// trainIntents fits one intent classifier per context, one context per
// sub-task. Contexts with too few intents are skipped inside TrainL1.
func (p *Pipeline) trainIntents(ctx context.Context, s *TrainState) error {
	models := make([]*ml.SVMClassifier, len(s.Contexts))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for i, ctxName := range s.Contexts {
		i, ctxName := i, ctxName
		g.Go(func() error {
			model, err := intents.TrainL1(s.Intents, ctxName, s.Input.Seed, p.log)
			if err != nil {
				return fmt.Errorf("train intent classifier for context %s: %w", ctxName, err)
			}
			models[i] = model
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.L1PerCtx = map[string]*ml.SVMClassifier{}
	for i, ctxName := range s.Contexts {
		if models[i] != nil {
			s.L1PerCtx[ctxName] = models[i]
		}
	}
	return nil
}

func (p *Pipeline) trainSlots(_ context.Context, s *TrainState) error {
	feat := &slots.Featurizer{TFIDF: s.TFIDF, VocabVectors: s.VocabVectors}
	tagger, err := slots.Train(s.Intents, feat, s.Input.Seed, p.log)
	if err != nil {
		return fmt.Errorf("train slot tagger: %w", err)
	}
	s.SlotTagger = tagger
	return nil
}
