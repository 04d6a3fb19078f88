package mocks

import (
	"context"
	"sync"

	"github.com/botkit-ai/nlu-engine/internal/domain"
)

// MockTrainingQueue is a mock implementation of the TrainingQueue port that
// records every published session snapshot.
type MockTrainingQueue struct {
	mu                  sync.Mutex
	Published           []domain.TrainingSession
	PublishProgressFunc func(ctx context.Context, session domain.TrainingSession) error
	CloseFunc           func() error
}

func NewMockTrainingQueue() *MockTrainingQueue {
	return &MockTrainingQueue{}
}

func (m *MockTrainingQueue) PublishProgress(ctx context.Context, session domain.TrainingSession) error {
	if m.PublishProgressFunc != nil {
		return m.PublishProgressFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, session)
	return nil
}

func (m *MockTrainingQueue) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Snapshots returns a copy of everything published so far.
func (m *MockTrainingQueue) Snapshots() []domain.TrainingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TrainingSession(nil), m.Published...)
}
