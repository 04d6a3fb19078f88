package cache

import (
	"context"
	"sync"

	"github.com/botkit-ai/nlu-engine/internal/domain"
)

// LocalSessionStore keeps sessions and locks in process memory. Used when no
// redis is configured; single-instance deployments only.
type LocalSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.TrainingSession
	locks    map[string]bool
}

func NewLocalSessionStore() *LocalSessionStore {
	return &LocalSessionStore{
		sessions: map[string]domain.TrainingSession{},
		locks:    map[string]bool{},
	}
}

func localSessionKey(botID, language string) string {
	return botID + ":" + language
}

func (s *LocalSessionStore) Get(ctx context.Context, botID, language string) (*domain.TrainingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[localSessionKey(botID, language)]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *LocalSessionStore) Set(ctx context.Context, session domain.TrainingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[localSessionKey(session.BotID, session.Language)] = session
	return nil
}

func (s *LocalSessionStore) Delete(ctx context.Context, botID, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, localSessionKey(botID, language))
	return nil
}

func (s *LocalSessionStore) AcquireLock(ctx context.Context, botID, language string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := localSessionKey(botID, language)
	if s.locks[key] {
		return false, nil
	}
	s.locks[key] = true
	return true, nil
}

func (s *LocalSessionStore) ReleaseLock(ctx context.Context, botID, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, localSessionKey(botID, language))
	return nil
}

func (s *LocalSessionStore) Close() error {
	return nil
}
