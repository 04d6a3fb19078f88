// Package pipeline orchestrates the training steps. Each step declares the
// state fields it reads and writes; step outputs are cached by input hash,
// the whole run is retried a bounded number of times, and cancellation is
// checked between steps.
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ports"
)

// EngineVersion participates in the model hash so artifacts trained by an
// older engine are detected as stale.
const EngineVersion = "1.4.0"

const (
	maxAttempts     = 3
	retryInterval   = 500 * time.Millisecond
	defaultCacheTTL = 24 * time.Hour
)

// ProgressFunc receives the completed fraction of the run in [0,1].
type ProgressFunc func(progress float64)

// Pipeline runs the training steps against a language provider. The cache is
// optional; with a nil cache every step always recomputes.
type Pipeline struct {
	provider ports.LanguageProvider
	cache    ports.Cache
	cacheTTL time.Duration
	log      *zap.Logger
}

func New(provider ports.LanguageProvider, cache ports.Cache, log *zap.Logger) *Pipeline {
	return &Pipeline{
		provider: provider,
		cache:    cache,
		cacheTTL: defaultCacheTTL,
		log:      log,
	}
}

// Run trains every model for the input. Transient step failures retry the
// whole run; once retries are exhausted the output carries Errored plus
// whatever artifacts the last attempt produced. Input validation failures
// and cancellation return an error instead.
func (p *Pipeline) Run(ctx context.Context, input *domain.TrainInput, onProgress ProgressFunc) (*domain.TrainOutput, error) {
	if input == nil {
		return nil, fmt.Errorf("pipeline: nil train input")
	}
	if len(input.Intents) == 0 {
		return nil, fmt.Errorf("pipeline: no intents to train on")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	hash := ModelHash(input)
	out := &domain.TrainOutput{Hash: hash, Language: input.Language}

	var state *TrainState
	operation := func() error {
		state = newTrainState(input)
		return p.runSteps(ctx, state, onProgress)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), maxAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pipeline: training canceled: %w", ctx.Err())
		}
		p.log.Error("training failed, returning partial result",
			zap.String("bot_id", input.BotID),
			zap.String("language", input.Language),
			zap.Error(err),
		)
		out.Errored = true
		out.Artifacts, _ = p.artifacts(state, hash)
		return out, nil
	}

	artifacts, err := p.artifacts(state, hash)
	if err != nil {
		return nil, fmt.Errorf("pipeline: serialize artifacts: %w", err)
	}
	out.Artifacts = artifacts
	return out, nil
}

func (p *Pipeline) runSteps(ctx context.Context, s *TrainState, onProgress ProgressFunc) error {
	steps := p.steps()
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		// The key must be taken before the step runs: fields listed in both
		// Inputs and Outputs are mutated in place.
		var key string
		if p.cache != nil {
			k, err := p.stepKey(step, s)
			if err == nil {
				key = k
				if p.restoreStep(ctx, step, s, key) {
					report(onProgress, i+1, len(steps))
					continue
				}
			}
		}

		if err := step.Run(ctx, s); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
		if key != "" {
			p.storeStep(ctx, step, s, key)
		}
		report(onProgress, i+1, len(steps))
	}
	return nil
}

func (p *Pipeline) stepKey(step Step, s *TrainState) (string, error) {
	subset, err := fieldSubset(s, step.Inputs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("nlu:train:%s:%s:%x", s.Input.BotID, step.Name, md5.Sum(subset)), nil
}

func (p *Pipeline) restoreStep(ctx context.Context, step Step, s *TrainState, key string) bool {
	cached, err := p.cache.Get(ctx, key)
	if err != nil || cached == "" {
		return false
	}
	if err := spliceFields(s, step.Outputs, []byte(cached)); err != nil {
		p.log.Warn("discarding unreadable cached step output",
			zap.String("step", step.Name),
			zap.Error(err),
		)
		return false
	}
	p.log.Debug("restored step from cache", zap.String("step", step.Name))
	return true
}

func (p *Pipeline) storeStep(ctx context.Context, step Step, s *TrainState, key string) {
	subset, err := fieldSubset(s, step.Outputs)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, key, string(subset), p.cacheTTL); err != nil {
		p.log.Warn("failed to cache step output",
			zap.String("step", step.Name),
			zap.Error(err),
		)
	}
}

func report(onProgress ProgressFunc, done, total int) {
	if onProgress != nil {
		onProgress(float64(done) / float64(total))
	}
}

// ModelHash fingerprints everything that shapes the trained models.
func ModelHash(input *domain.TrainInput) string {
	payload := struct {
		Intents  []domain.IntentDefinition `json:"intents"`
		Entities []domain.EntityDefinition `json:"entities"`
		Language string                    `json:"language"`
		Version  string                    `json:"version"`
	}{input.Intents, input.Entities, input.Language, EngineVersion}
	data, _ := json.Marshal(payload)
	return fmt.Sprintf("%x", md5.Sum(data))
}

// validateInput rejects malformed definitions up front; these are designer
// mistakes and never worth a retry.
func validateInput(input *domain.TrainInput) error {
	entityNames := map[string]bool{"any": true}
	for _, def := range input.Entities {
		entityNames[def.Name] = true
	}

	for _, def := range input.Entities {
		if def.Type != domain.EntityTypePattern {
			continue
		}
		pattern := def.Pattern
		if !def.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("pipeline: entity %s: invalid pattern: %w", def.Name, err)
		}
	}

	for _, intent := range input.Intents {
		slotNames := map[string]bool{}
		for _, slot := range intent.Slots {
			slotNames[slot.Name] = true
			for _, e := range slot.Entities {
				if !entityNames[e] {
					return fmt.Errorf("pipeline: intent %s: slot %s references unknown entity %s", intent.Name, slot.Name, e)
				}
			}
		}
		for _, raw := range intent.Utterances {
			_, spans := parseSlotMarkup(raw)
			for _, span := range spans {
				if !slotNames[span.Name] {
					return fmt.Errorf("pipeline: intent %s: utterance tags unknown slot %s", intent.Name, span.Name)
				}
			}
		}
	}
	return nil
}
