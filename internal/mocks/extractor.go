package mocks

import (
	"context"

	"github.com/botkit-ai/nlu-engine/internal/domain"
)

// MockSystemEntityExtractor is a mock implementation of the
// SystemEntityExtractor port.
type MockSystemEntityExtractor struct {
	Entities    []domain.Entity
	ExtractFunc func(ctx context.Context, text, language string) ([]domain.Entity, error)
}

func NewMockSystemEntityExtractor() *MockSystemEntityExtractor {
	return &MockSystemEntityExtractor{}
}

func (m *MockSystemEntityExtractor) Extract(ctx context.Context, text, language string) ([]domain.Entity, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text, language)
	}
	return m.Entities, nil
}

// MockLanguageDetector is a mock implementation of the LanguageDetector port.
type MockLanguageDetector struct {
	Language   string
	Confidence float64
	DetectFunc func(text string) (string, float64)
}

func NewMockLanguageDetector(language string, confidence float64) *MockLanguageDetector {
	return &MockLanguageDetector{Language: language, Confidence: confidence}
}

func (m *MockLanguageDetector) Detect(text string) (string, float64) {
	if m.DetectFunc != nil {
		return m.DetectFunc(text)
	}
	return m.Language, m.Confidence
}
