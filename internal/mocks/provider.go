package mocks

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

var tokenPattern = regexp.MustCompile(`\s+|\S+`)

// MockLanguageProvider is a mock implementation of the LanguageProvider port.
// The default behavior splits on whitespace (spaces kept as tokens) and
// derives a deterministic vector from each token's hash, so training on it
// is reproducible without a language server.
type MockLanguageProvider struct {
	mu             sync.Mutex
	Dim            int
	Langs          []string
	TokenizeCalls  int
	VectorizeCalls int
	TokenizeFunc   func(ctx context.Context, utterances []string, language string) ([][]string, error)
	VectorizeFunc  func(ctx context.Context, tokens []string, language string) ([][]float64, error)
}

func NewMockLanguageProvider() *MockLanguageProvider {
	return &MockLanguageProvider{Dim: 3, Langs: []string{"en"}}
}

func (m *MockLanguageProvider) Tokenize(ctx context.Context, utterances []string, language string) ([][]string, error) {
	m.mu.Lock()
	m.TokenizeCalls++
	m.mu.Unlock()
	if m.TokenizeFunc != nil {
		return m.TokenizeFunc(ctx, utterances, language)
	}
	out := make([][]string, len(utterances))
	for i, u := range utterances {
		out[i] = tokenPattern.FindAllString(u, -1)
	}
	return out, nil
}

func (m *MockLanguageProvider) Vectorize(ctx context.Context, tokens []string, language string) ([][]float64, error) {
	m.mu.Lock()
	m.VectorizeCalls++
	m.mu.Unlock()
	if m.VectorizeFunc != nil {
		return m.VectorizeFunc(ctx, tokens, language)
	}
	out := make([][]float64, len(tokens))
	for i, tok := range tokens {
		out[i] = m.vectorOf(tok)
	}
	return out, nil
}

// vectorOf maps a token to a stable pseudo-embedding; space tokens get the
// zero vector.
func (m *MockLanguageProvider) vectorOf(token string) []float64 {
	vec := make([]float64, m.Dim)
	if strings.TrimSpace(token) == "" {
		return vec
	}
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(token)))
	state := h.Sum64()
	for d := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		vec[d] = float64(int64(state>>11))/float64(1<<52) - 1
	}
	return vec
}

func (m *MockLanguageProvider) Languages() []string {
	return m.Langs
}

func (m *MockLanguageProvider) Dimensions() int {
	return m.Dim
}

func (m *MockLanguageProvider) Ready() bool {
	return true
}

// Calls reports how many provider round trips happened.
func (m *MockLanguageProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TokenizeCalls + m.VectorizeCalls
}
