package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/mocks"
)

func trainInput() *domain.TrainInput {
	return &domain.TrainInput{
		BotID:    "bot1",
		Language: "en",
		Seed:     42,
		Entities: []domain.EntityDefinition{
			{
				Name:       "city",
				Type:       domain.EntityTypeList,
				FuzzyLevel: 0.8,
				Occurrences: []domain.EntityOccurrence{
					{Name: "New York", Synonyms: []string{"NYC"}},
					{Name: "Paris", Synonyms: []string{"paname"}},
					{Name: "Lyon", Synonyms: nil},
				},
			},
		},
		Intents: []domain.IntentDefinition{
			{
				Name:     "book-flight",
				Contexts: []string{"booking"},
				Slots:    []domain.SlotDefinition{{Name: "destination", Entities: []string{"city"}}},
				Utterances: []string{
					"book a flight to [Paris](destination)",
					"i want to fly to [NYC](destination)",
					"get me a plane to [New York](destination)",
					"please book a trip to [Lyon](destination)",
				},
			},
			{
				Name:     "cancel-flight",
				Contexts: []string{"booking"},
				Utterances: []string{
					"cancel my flight",
					"drop the booking",
					"never mind the flight",
					"cancel it all",
				},
			},
			{
				Name:       "greet",
				Contexts:   []string{"smalltalk"},
				Utterances: []string{"hello there", "hi bot", "good morning", "hey you"},
			},
		},
	}
}

func trainedModel(t *testing.T, e *Engine) *Model {
	t.Helper()
	out, err := e.Train(context.Background(), trainInput(), nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if out.Errored {
		t.Fatal("training reported errored")
	}
	m, err := e.LoadModel(out.Artifacts)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	return m
}

func TestLoadModelRoundTrip(t *testing.T) {
	e := New(mocks.NewMockLanguageProvider(), nil, zap.NewNop())
	m := trainedModel(t, e)

	if m.Language != "en" {
		t.Errorf("language = %q, want en", m.Language)
	}
	if m.Classifier == nil || m.Classifier.L0 == nil {
		t.Fatal("classifier not restored")
	}
	if len(m.Classifier.L1PerCtx) != 2 {
		t.Errorf("got %d intent models, want one per context", len(m.Classifier.L1PerCtx))
	}
	if m.Tagger == nil || m.Tagger.CRF == nil {
		t.Error("slot tagger not restored")
	}
	if len(m.Lists) != 1 || m.Lists[0].EntityName != "city" {
		t.Errorf("list models = %+v", m.Lists)
	}
	if len(m.Weights) == 0 {
		t.Error("vocabulary weights not restored")
	}
	if len(m.Contexts) != 2 {
		t.Errorf("contexts = %v", m.Contexts)
	}
	if m.Hash == "" {
		t.Error("empty model hash")
	}
}

func TestLoadModelMissingArtifacts(t *testing.T) {
	e := New(mocks.NewMockLanguageProvider(), nil, zap.NewNop())
	out, err := e.Train(context.Background(), trainInput(), nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	var withoutMeta []domain.ModelArtifact
	for _, a := range out.Artifacts {
		if a.Meta.Type != domain.ModelTypeMeta {
			withoutMeta = append(withoutMeta, a)
		}
	}
	if _, err := e.LoadModel(withoutMeta); err == nil {
		t.Error("model without meta artifact accepted")
	}
	if _, err := e.LoadModel(nil); err == nil {
		t.Error("empty artifact list accepted")
	}
}

func TestPredictTrainingUtterance(t *testing.T) {
	e := New(mocks.NewMockLanguageProvider(), nil, zap.NewNop())
	m := trainedModel(t, e)

	out, err := e.Predict(context.Background(), m, "i want to fly to NYC", nil, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got := out.TopIntent().Label; got != "book-flight" {
		t.Errorf("top intent = %q, want book-flight", got)
	}
	if out.Language != "en" {
		t.Errorf("language = %q", out.Language)
	}

	slot, ok := out.Slots["destination"]
	if !ok {
		t.Fatalf("destination slot missing, slots = %+v", out.Slots)
	}
	if slot.Value != "New York" {
		t.Errorf("slot value = %q, want canonical New York", slot.Value)
	}
	if slot.Entity == nil || slot.Entity.Name != "city" {
		t.Errorf("slot entity = %+v", slot.Entity)
	}
}

func TestPredictRestrictedContexts(t *testing.T) {
	e := New(mocks.NewMockLanguageProvider(), nil, zap.NewNop())
	m := trainedModel(t, e)

	out, err := e.Predict(context.Background(), m, "hello there", []string{"smalltalk"}, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got := out.TopIntent().Label; got != "greet" {
		t.Errorf("top intent = %q, want greet", got)
	}
	for _, p := range out.Intents {
		if p.Context != "smalltalk" && p.Label != "none" {
			t.Errorf("prediction %q leaked from context %q", p.Label, p.Context)
		}
	}
}

func TestPredictMergesSystemEntities(t *testing.T) {
	e := New(mocks.NewMockLanguageProvider(), nil, zap.NewNop())
	m := trainedModel(t, e)

	system := []domain.Entity{{
		Name: "number",
		Type: "system",
		Meta: domain.EntityMeta{Start: 7, End: 8, Confidence: 1, Source: "2"},
		Data: domain.EntityData{Value: "2"},
	}}
	out, err := e.Predict(context.Background(), m, "cancel 2 flights", nil, system)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	found := false
	for _, ent := range out.Entities {
		if ent.Name == "number" && ent.Type == "system" && ent.Data.Value == "2" {
			found = true
		}
	}
	if !found {
		t.Errorf("system entity missing from output: %+v", out.Entities)
	}
}

func TestPredictProviderFailure(t *testing.T) {
	provider := mocks.NewMockLanguageProvider()
	e := New(provider, nil, zap.NewNop())
	m := trainedModel(t, e)

	provider.TokenizeFunc = func(ctx context.Context, utterances []string, language string) ([][]string, error) {
		return nil, context.DeadlineExceeded
	}
	if _, err := e.Predict(context.Background(), m, "hello there", nil, nil); err == nil {
		t.Error("provider failure did not abort the prediction")
	}
}

func TestIsAmbiguous(t *testing.T) {
	flat := []domain.IntentPrediction{
		{Label: "a", Confidence: 0.35},
		{Label: "b", Confidence: 0.33},
		{Label: "c", Confidence: 0.32},
	}
	if !isAmbiguous(flat) {
		t.Error("near-uniform predictions not flagged ambiguous")
	}

	decided := []domain.IntentPrediction{
		{Label: "a", Confidence: 0.9},
		{Label: "b", Confidence: 0.07},
		{Label: "c", Confidence: 0.03},
	}
	if isAmbiguous(decided) {
		t.Error("decided predictions flagged ambiguous")
	}

	if isAmbiguous([]domain.IntentPrediction{{Label: "a", Confidence: 1}}) {
		t.Error("single prediction flagged ambiguous")
	}
}
