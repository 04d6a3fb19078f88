package prediction

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/mocks"
	"github.com/botkit-ai/nlu-engine/internal/nlu/engine"
	"github.com/botkit-ai/nlu-engine/internal/ports"
)

func trainInput() *domain.TrainInput {
	return &domain.TrainInput{
		BotID:    "bot1",
		Language: "en",
		Seed:     7,
		Intents: []domain.IntentDefinition{
			{
				Name:       "greet",
				Contexts:   []string{"global"},
				Utterances: []string{"hello there", "hi bot", "good morning", "hey you"},
			},
			{
				Name:       "bye",
				Contexts:   []string{"global"},
				Utterances: []string{"bye now", "see you later", "good night", "farewell friend"},
			},
		},
	}
}

func newService(t *testing.T, detector *mocks.MockLanguageDetector, system *mocks.MockSystemEntityExtractor) *Service {
	t.Helper()
	eng := engine.New(mocks.NewMockLanguageProvider(), nil, zap.NewNop())
	var systemPort ports.SystemEntityExtractor
	if system != nil {
		systemPort = system
	}
	svc := NewService(eng, detector, systemPort, zap.NewNop())

	out, err := eng.Train(context.Background(), trainInput(), nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if err := svc.LoadModel("bot1", out.Artifacts); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	return svc
}

func TestPredictTrainingUtterance(t *testing.T) {
	svc := newService(t, mocks.NewMockLanguageDetector("en", 1), nil)

	out, err := svc.Predict(context.Background(), Request{BotID: "bot1", Text: "hello there"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got := out.TopIntent().Label; got != "greet" {
		t.Errorf("top intent = %q, want greet", got)
	}
	if out.Language != "en" {
		t.Errorf("language = %q, want en", out.Language)
	}
}

func TestPredictFallsBackBelowConfidence(t *testing.T) {
	// A long sentence detected as another language with low confidence must
	// serve in the bot's default language.
	detector := mocks.NewMockLanguageDetector("fr", 0.4)
	svc := newService(t, detector, nil)

	out, err := svc.Predict(context.Background(), Request{
		BotID: "bot1",
		Text:  "good morning to you my dear old friend",
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if out.Language != "en" {
		t.Errorf("language = %q, want fallback en", out.Language)
	}
}

func TestPredictShortSentenceThreshold(t *testing.T) {
	// 0.4 confidence clears the lowered short-sentence bar, but no fr model
	// is loaded so the default still wins.
	detector := mocks.NewMockLanguageDetector("fr", 0.4)
	svc := newService(t, detector, nil)

	out, err := svc.Predict(context.Background(), Request{BotID: "bot1", Text: "hi bot"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if out.Language != "en" {
		t.Errorf("language = %q, want en", out.Language)
	}
}

func TestPredictExplicitLanguageWins(t *testing.T) {
	detector := mocks.NewMockLanguageDetector("fr", 1)
	svc := newService(t, detector, nil)

	out, err := svc.Predict(context.Background(), Request{BotID: "bot1", Text: "hello there", Language: "en"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if out.Language != "en" {
		t.Errorf("language = %q, want en", out.Language)
	}
}

func TestPredictUnknownModel(t *testing.T) {
	svc := newService(t, mocks.NewMockLanguageDetector("en", 1), nil)

	_, err := svc.Predict(context.Background(), Request{BotID: "ghost", Text: "hello there", Language: "en"})
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
}

func TestPredictMergesSystemEntities(t *testing.T) {
	system := mocks.NewMockSystemEntityExtractor()
	system.Entities = []domain.Entity{{
		Name: "number",
		Type: "system",
		Meta: domain.EntityMeta{Start: 0, End: 2, Confidence: 1, Source: "42"},
		Data: domain.EntityData{Value: "42"},
	}}
	svc := newService(t, mocks.NewMockLanguageDetector("en", 1), system)

	out, err := svc.Predict(context.Background(), Request{BotID: "bot1", Text: "42 greetings"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	found := false
	for _, e := range out.Entities {
		if e.Name == "number" && e.Data.Value == "42" {
			found = true
		}
	}
	if !found {
		t.Errorf("system entity missing: %+v", out.Entities)
	}
}

func TestPredictSurvivesSystemExtractorFailure(t *testing.T) {
	system := mocks.NewMockSystemEntityExtractor()
	system.ExtractFunc = func(ctx context.Context, text, language string) ([]domain.Entity, error) {
		return nil, errors.New("service down")
	}
	svc := newService(t, mocks.NewMockLanguageDetector("en", 1), system)

	out, err := svc.Predict(context.Background(), Request{BotID: "bot1", Text: "hello there"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got := out.TopIntent().Label; got != "greet" {
		t.Errorf("top intent = %q, want greet", got)
	}
}

func TestPredictEmptyText(t *testing.T) {
	svc := newService(t, mocks.NewMockLanguageDetector("en", 1), nil)
	if _, err := svc.Predict(context.Background(), Request{BotID: "bot1"}); err == nil {
		t.Error("empty text accepted")
	}
}
