package ports

import (
	"context"
	"errors"

	"github.com/botkit-ai/nlu-engine/internal/domain"
)

var (
	// ErrNoProvider means every source serving the language is down or disabled.
	ErrNoProvider = errors.New("no provider available")
	// ErrLangNotSupported means no registered source serves the language at all.
	ErrLangNotSupported = errors.New("language not supported")
)

// LanguageProvider tokenizes and vectorizes text through one or more remote
// language servers, failing over between sources.
type LanguageProvider interface {
	// Tokenize splits each utterance into surface tokens (spaces preserved
	// as their own tokens).
	Tokenize(ctx context.Context, utterances []string, language string) ([][]string, error)
	// Vectorize returns one embedding per token.
	Vectorize(ctx context.Context, tokens []string, language string) ([][]float64, error)
	// Languages lists the languages at least one ready source serves.
	Languages() []string
	// Dimensions is the embedding width advertised by the ready sources.
	Dimensions() int
	Ready() bool
}

// LanguageDetector identifies the language of a free-text sentence.
type LanguageDetector interface {
	// Detect returns a BCP-47-ish code ("en", "fr") and a confidence in [0,1].
	Detect(text string) (string, float64)
}

// SystemEntityExtractor resolves system entities (numbers, dates, durations)
// through an external service. Results are passed through unchanged.
type SystemEntityExtractor interface {
	Extract(ctx context.Context, text, language string) ([]domain.Entity, error)
}

// TrainingQueue publishes training lifecycle events for interested consumers.
type TrainingQueue interface {
	PublishProgress(ctx context.Context, session domain.TrainingSession) error
	Close() error
}

// SessionStore persists training sessions and arbitrates concurrent runs.
type SessionStore interface {
	Get(ctx context.Context, botID, language string) (*domain.TrainingSession, error)
	Set(ctx context.Context, session domain.TrainingSession) error
	Delete(ctx context.Context, botID, language string) error
	// AcquireLock returns false when another run holds the (bot, language) lock.
	AcquireLock(ctx context.Context, botID, language string) (bool, error)
	ReleaseLock(ctx context.Context, botID, language string) error
}
