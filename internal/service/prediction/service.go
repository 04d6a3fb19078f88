// Package prediction serves predictions against loaded models, detecting the
// input language and resolving system entities along the way.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/nlu/engine"
	"github.com/botkit-ai/nlu-engine/internal/observability/telemetry"
	"github.com/botkit-ai/nlu-engine/internal/ports"
)

// ErrModelNotFound means no model is loaded for the (bot, language) pair.
var ErrModelNotFound = errors.New("model not found")

// Detected languages below these confidences fall back to the bot's default.
// Short sentences carry too little signal for the stricter threshold.
const (
	detectThreshold      = 0.5
	shortDetectThreshold = 0.3
	shortSentenceRunes   = 20
)

type Request struct {
	BotID    string   `json:"bot_id"`
	Text     string   `json:"text"`
	Language string   `json:"language,omitempty"`
	Contexts []string `json:"contexts,omitempty"`
}

type Service struct {
	engine   *engine.Engine
	detector ports.LanguageDetector
	system   ports.SystemEntityExtractor
	log      *zap.Logger

	mu       sync.RWMutex
	models   map[string]map[string]*engine.Model
	defaults map[string]string
}

func NewService(eng *engine.Engine, detector ports.LanguageDetector, system ports.SystemEntityExtractor, log *zap.Logger) *Service {
	return &Service{
		engine:   eng,
		detector: detector,
		system:   system,
		log:      log,
		models:   map[string]map[string]*engine.Model{},
		defaults: map[string]string{},
	}
}

// LoadModel reassembles the artifacts and registers the model for serving.
// The first language loaded for a bot becomes its detection fallback.
func (s *Service) LoadModel(botID string, artifacts []domain.ModelArtifact) error {
	m, err := s.engine.LoadModel(artifacts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.models[botID] == nil {
		s.models[botID] = map[string]*engine.Model{}
	}
	s.models[botID][m.Language] = m
	if _, ok := s.defaults[botID]; !ok {
		s.defaults[botID] = m.Language
	}
	s.log.Info("model loaded",
		zap.String("bot_id", botID),
		zap.String("language", m.Language),
		zap.String("hash", m.Hash),
	)
	return nil
}

// UnloadModel drops the model of the pair, if loaded.
func (s *Service) UnloadModel(botID, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.models[botID], language)
}

// Predict classifies one sentence. Without an explicit language the input is
// language-detected, falling back to the bot's default below the confidence
// thresholds.
func (s *Service) Predict(ctx context.Context, req Request) (*domain.PredictOutput, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("prediction: empty text")
	}

	started := time.Now()
	out, err := s.predict(ctx, req)
	telemetry.PredictionLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		telemetry.PredictionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	telemetry.PredictionsTotal.WithLabelValues("ok").Inc()
	return out, nil
}

func (s *Service) predict(ctx context.Context, req Request) (*domain.PredictOutput, error) {
	language := req.Language
	if language == "" {
		language = s.detectLanguage(req.BotID, req.Text)
	}

	m, err := s.model(req.BotID, language)
	if err != nil {
		return nil, err
	}

	var systemEntities []domain.Entity
	if s.system != nil {
		systemEntities, err = s.system.Extract(ctx, req.Text, language)
		if err != nil {
			s.log.Warn("system entity extraction failed",
				zap.String("language", language),
				zap.Error(err),
			)
			systemEntities = nil
		}
	}

	return s.engine.Predict(ctx, m, req.Text, req.Contexts, systemEntities)
}

// detectLanguage picks the serving language for the sentence. The detected
// language only wins over the bot's default when the detector is confident
// enough and a model for it is actually loaded.
func (s *Service) detectLanguage(botID, text string) string {
	s.mu.RLock()
	fallback := s.defaults[botID]
	s.mu.RUnlock()

	if s.detector == nil {
		return fallback
	}
	detected, confidence := s.detector.Detect(text)
	if detected == fallback {
		return fallback
	}

	threshold := detectThreshold
	if len([]rune(text)) <= shortSentenceRunes {
		threshold = shortDetectThreshold
	}
	if confidence < threshold {
		return fallback
	}
	if _, err := s.model(botID, detected); err != nil {
		return fallback
	}
	return detected
}

func (s *Service) model(botID, language string) (*engine.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.models[botID][language]
	if m == nil {
		return nil, fmt.Errorf("%w: bot %s language %s", ErrModelNotFound, botID, language)
	}
	return m, nil
}
