package mocks

import (
	"context"
	"sync"

	"github.com/botkit-ai/nlu-engine/internal/domain"
)

// MockSessionStore is a mock implementation of the SessionStore port with an
// in-memory session map and lock set.
type MockSessionStore struct {
	mu              sync.Mutex
	sessions        map[string]domain.TrainingSession
	locks           map[string]bool
	GetFunc         func(ctx context.Context, botID, language string) (*domain.TrainingSession, error)
	SetFunc         func(ctx context.Context, session domain.TrainingSession) error
	DeleteFunc      func(ctx context.Context, botID, language string) error
	AcquireLockFunc func(ctx context.Context, botID, language string) (bool, error)
	ReleaseLockFunc func(ctx context.Context, botID, language string) error
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[string]domain.TrainingSession),
		locks:    make(map[string]bool),
	}
}

func sessionKey(botID, language string) string {
	return botID + ":" + language
}

func (m *MockSessionStore) Get(ctx context.Context, botID, language string) (*domain.TrainingSession, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, botID, language)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionKey(botID, language)]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *MockSessionStore) Set(ctx context.Context, session domain.TrainingSession) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionKey(session.BotID, session.Language)] = session
	return nil
}

func (m *MockSessionStore) Delete(ctx context.Context, botID, language string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, botID, language)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(botID, language))
	return nil
}

func (m *MockSessionStore) AcquireLock(ctx context.Context, botID, language string) (bool, error) {
	if m.AcquireLockFunc != nil {
		return m.AcquireLockFunc(ctx, botID, language)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(botID, language)
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MockSessionStore) ReleaseLock(ctx context.Context, botID, language string) error {
	if m.ReleaseLockFunc != nil {
		return m.ReleaseLockFunc(ctx, botID, language)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, sessionKey(botID, language))
	return nil
}

// Locked reports whether the (bot, language) lock is currently held.
func (m *MockSessionStore) Locked(botID, language string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[sessionKey(botID, language)]
}
