// Package training owns the lifecycle of training runs: one run at a time
// per (bot, language), session state visible to pollers, progress fan-out
// over the queue and cooperative cancellation.
package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/nlu/engine"
	"github.com/botkit-ai/nlu-engine/internal/observability/telemetry"
	"github.com/botkit-ai/nlu-engine/internal/ports"
)

var (
	// ErrAlreadyTraining means another run holds the (bot, language) lock.
	ErrAlreadyTraining = errors.New("training already in progress")
	// ErrNoActiveTraining means there is nothing to cancel.
	ErrNoActiveTraining = errors.New("no training in progress")
)

// Writes of terminal session states use their own deadline so a canceled
// request context cannot lose them.
const statusWriteTimeout = 5 * time.Second

type Service struct {
	engine   *engine.Engine
	sessions ports.SessionStore
	queue    ports.TrainingQueue
	log      *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewService(eng *engine.Engine, sessions ports.SessionStore, queue ports.TrainingQueue, log *zap.Logger) *Service {
	return &Service{
		engine:   eng,
		sessions: sessions,
		queue:    queue,
		log:      log,
		cancels:  map[string]context.CancelFunc{},
	}
}

// Train runs one training to completion and returns its artifacts. A second
// call for the same (bot, language) while one is running fails with
// ErrAlreadyTraining.
func (s *Service) Train(ctx context.Context, input *domain.TrainInput) (*domain.TrainOutput, error) {
	if input == nil {
		return nil, fmt.Errorf("training: nil input")
	}
	botID, lang := input.BotID, input.Language

	acquired, err := s.sessions.AcquireLock(ctx, botID, lang)
	if err != nil {
		return nil, fmt.Errorf("training: acquire lock: %w", err)
	}
	if !acquired {
		return nil, ErrAlreadyTraining
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
		defer cancel()
		if err := s.sessions.ReleaseLock(releaseCtx, botID, lang); err != nil {
			s.log.Warn("failed to release training lock",
				zap.String("bot_id", botID),
				zap.String("language", lang),
				zap.Error(err),
			)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.register(botID, lang, cancel)
	defer s.unregister(botID, lang)

	runID := uuid.NewString()
	s.log.Info("training started",
		zap.String("run_id", runID),
		zap.String("bot_id", botID),
		zap.String("language", lang),
	)

	telemetry.TrainingsStarted.Inc()
	started := time.Now()
	s.setStatus(domain.TrainingSession{ID: runID, BotID: botID, Language: lang, Status: domain.TrainingStatusTraining})

	out, err := s.engine.Train(runCtx, input, func(progress float64) {
		s.setStatus(domain.TrainingSession{
			ID:       runID,
			BotID:    botID,
			Language: lang,
			Status:   domain.TrainingStatusTraining,
			Progress: progress,
		})
	})
	telemetry.TrainingDuration.Observe(time.Since(started).Seconds())

	switch {
	case err != nil && runCtx.Err() != nil:
		telemetry.TrainingsCompleted.WithLabelValues("canceled").Inc()
		s.setStatus(domain.TrainingSession{ID: runID, BotID: botID, Language: lang, Status: domain.TrainingStatusCanceled})
		return nil, err
	case err != nil:
		telemetry.TrainingsCompleted.WithLabelValues("errored").Inc()
		s.setStatus(domain.TrainingSession{
			ID:       runID,
			BotID:    botID,
			Language: lang,
			Status:   domain.TrainingStatusErrored,
			Error:    err.Error(),
		})
		return nil, err
	case out.Errored:
		telemetry.TrainingsCompleted.WithLabelValues("errored").Inc()
		s.setStatus(domain.TrainingSession{
			ID:       runID,
			BotID:    botID,
			Language: lang,
			Status:   domain.TrainingStatusErrored,
			Error:    "training failed after retries",
		})
		return out, nil
	}

	telemetry.TrainingsCompleted.WithLabelValues("done").Inc()
	s.setStatus(domain.TrainingSession{
		ID:       runID,
		BotID:    botID,
		Language: lang,
		Status:   domain.TrainingStatusDone,
		Progress: 1,
	})
	return out, nil
}

// Cancel aborts the running training of the pair, if any. The run itself
// reports the canceled status once it unwinds.
func (s *Service) Cancel(botID, language string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[sessionKey(botID, language)]
	s.mu.Unlock()
	if !ok {
		return ErrNoActiveTraining
	}
	cancel()
	return nil
}

// Session returns the stored session, or an idle one when the pair was never
// trained or its session expired.
func (s *Service) Session(ctx context.Context, botID, language string) (*domain.TrainingSession, error) {
	session, err := s.sessions.Get(ctx, botID, language)
	if err != nil {
		return nil, fmt.Errorf("training: get session: %w", err)
	}
	if session == nil {
		return &domain.TrainingSession{BotID: botID, Language: language, Status: domain.TrainingStatusIdle}, nil
	}
	return session, nil
}

func (s *Service) register(botID, language string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[sessionKey(botID, language)] = cancel
}

func (s *Service) unregister(botID, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, sessionKey(botID, language))
}

// setStatus persists the session and fans it out over the queue. Both are
// best effort; failures are logged, never surfaced to the run.
func (s *Service) setStatus(session domain.TrainingSession) {
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()

	if err := s.sessions.Set(ctx, session); err != nil {
		s.log.Warn("failed to persist training session",
			zap.String("bot_id", session.BotID),
			zap.String("language", session.Language),
			zap.Error(err),
		)
	}
	if s.queue != nil {
		if err := s.queue.PublishProgress(ctx, session); err != nil {
			s.log.Warn("failed to publish training progress",
				zap.String("bot_id", session.BotID),
				zap.String("language", session.Language),
				zap.Error(err),
			)
		}
	}
}

func sessionKey(botID, language string) string {
	return botID + ":" + language
}
