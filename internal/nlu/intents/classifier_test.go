package intents

import (
	"testing"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/nlu"
	"github.com/botkit-ai/nlu-engine/internal/nlu/utterance"
)

func utter(t *testing.T, words []string, vecs [][]float64) *utterance.Utterance {
	t.Helper()
	u, err := utterance.New(words, vecs, "en")
	if err != nil {
		t.Fatalf("utterance.New: %v", err)
	}
	return u
}

func trainingIntents(t *testing.T) []*nlu.Intent {
	t.Helper()
	mk := func(name, ctx string, base []float64, words ...string) *nlu.Intent {
		intent := &nlu.Intent{Name: name, Contexts: []string{ctx}}
		for i := 0; i < 4; i++ {
			jitter := float64(i) * 0.02
			vec := []float64{base[0] + jitter, base[1] - jitter}
			intent.Utterances = append(intent.Utterances, utter(t, []string{words[i%len(words)]}, [][]float64{vec}))
		}
		return intent
	}
	return []*nlu.Intent{
		mk("book-flight", "booking", []float64{1, 0}, "fly", "flight"),
		mk("cancel-flight", "booking", []float64{0, 1}, "cancel", "abort"),
		mk("greet", "smalltalk", []float64{-1, 0}, "hello", "hi"),
		mk("bye", "smalltalk", []float64{0, -1}, "bye", "later"),
	}
}

func trainedClassifier(t *testing.T) *Classifier {
	t.Helper()
	intents := trainingIntents(t)
	contexts := []string{"booking", "smalltalk"}

	c := NewClassifier(zap.NewNop())
	l0, err := TrainL0(intents, contexts, 42)
	if err != nil {
		t.Fatalf("TrainL0: %v", err)
	}
	c.L0 = l0
	for _, ctx := range contexts {
		l1, err := TrainL1(intents, ctx, 42, zap.NewNop())
		if err != nil {
			t.Fatalf("TrainL1(%s): %v", ctx, err)
		}
		c.L1PerCtx[ctx] = l1
	}
	c.ExactIndex = BuildExactMatchIndex(intents)
	return c
}

func TestClassifierPredictsTrainedIntent(t *testing.T) {
	c := trainedClassifier(t)
	u := utter(t, []string{"flying"}, [][]float64{{0.95, 0.05}})

	preds, err := c.Predict(u, []string{"booking"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) == 0 || preds[0].Label != "book-flight" {
		t.Fatalf("top prediction = %+v, want book-flight", preds)
	}
	if preds[0].Context != "booking" {
		t.Errorf("context = %s, want booking", preds[0].Context)
	}
}

func TestClassifierExactMatchShortCircuits(t *testing.T) {
	c := trainedClassifier(t)
	// same surface form as a training utterance of greet
	u := utter(t, []string{"hello"}, [][]float64{{0.2, 0.2}})

	preds, err := c.Predict(u, []string{"smalltalk"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if preds[0].Label != "greet" {
		t.Fatalf("top = %+v, want greet via exact match", preds[0])
	}
	if preds[0].Confidence != 1 {
		t.Errorf("exact-match confidence = %f, want 1", preds[0].Confidence)
	}
}

func TestTrainL0SingleContext(t *testing.T) {
	intents := []*nlu.Intent{
		{
			Name:     "greet",
			Contexts: []string{"global"},
			Utterances: []*utterance.Utterance{
				utter(t, []string{"hello"}, [][]float64{{1, 0}}),
				utter(t, []string{"hi"}, [][]float64{{0.9, 0.1}}),
			},
		},
		{
			Name:     "bye",
			Contexts: []string{"global"},
			Utterances: []*utterance.Utterance{
				utter(t, []string{"bye"}, [][]float64{{0, 1}}),
				utter(t, []string{"later"}, [][]float64{{0.1, 0.9}}),
			},
		},
	}
	l0, err := TrainL0(intents, []string{"global"}, 42)
	if err != nil {
		t.Fatalf("TrainL0: %v", err)
	}

	c := NewClassifier(zap.NewNop())
	c.L0 = l0
	l1, err := TrainL1(intents, "global", 42, zap.NewNop())
	if err != nil {
		t.Fatalf("TrainL1: %v", err)
	}
	c.L1PerCtx["global"] = l1

	u := utter(t, []string{"heya"}, [][]float64{{0.95, 0.05}})
	preds, err := c.Predict(u, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) == 0 || preds[0].Label != "greet" {
		t.Fatalf("top prediction = %+v, want greet", preds)
	}
	if preds[0].Context != "global" {
		t.Errorf("context = %s, want global", preds[0].Context)
	}
}

func TestClassifierHandlesSpacedUtterances(t *testing.T) {
	mk := func(name string, base []float64, words []string) *nlu.Intent {
		intent := &nlu.Intent{Name: name, Contexts: []string{"global"}}
		vecs := make([][]float64, len(words))
		for i := range words {
			vecs[i] = []float64{base[0], base[1]}
		}
		intent.Utterances = append(intent.Utterances, utter(t, words, vecs))
		intent.Utterances = append(intent.Utterances, utter(t, words, vecs))
		return intent
	}
	intents := []*nlu.Intent{
		mk("book-flight", []float64{1, 0}, []string{"book", " ", "a", " ", "flight"}),
		mk("greet", []float64{-1, 0}, []string{"hello", " ", "there"}),
	}

	c := NewClassifier(zap.NewNop())
	l0, err := TrainL0(intents, []string{"global"}, 42)
	if err != nil {
		t.Fatalf("TrainL0: %v", err)
	}
	c.L0 = l0
	l1, err := TrainL1(intents, "global", 42, zap.NewNop())
	if err != nil {
		t.Fatalf("TrainL1: %v", err)
	}
	c.L1PerCtx["global"] = l1

	// space tokens count toward the length feature at train and predict alike
	u := utter(t, []string{"book", " ", "a", " ", "trip"},
		[][]float64{{1, 0}, {1, 0}, {1, 0}, {1, 0}, {1, 0}})
	preds, err := c.Predict(u, []string{"global"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) == 0 || preds[0].Label != "book-flight" {
		t.Fatalf("top prediction = %+v, want book-flight", preds)
	}
}

func TestTrainL1SkipsSingleIntentContext(t *testing.T) {
	intents := []*nlu.Intent{
		{
			Name:       "lonely",
			Contexts:   []string{"solo"},
			Utterances: []*utterance.Utterance{utter(t, []string{"hi"}, [][]float64{{1, 0}})},
		},
	}
	model, err := TrainL1(intents, "solo", 42, zap.NewNop())
	if err != nil {
		t.Fatalf("TrainL1: %v", err)
	}
	if model != nil {
		t.Error("expected nil model for a single-intent context")
	}
}

func TestClassifierSerializationRoundTrip(t *testing.T) {
	c := trainedClassifier(t)
	l0, exact, l1, err := c.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	loaded, err := LoadClassifier(l0, exact, l1, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadClassifier: %v", err)
	}

	u := utter(t, []string{"flying"}, [][]float64{{0.95, 0.05}})
	orig, err := c.Predict(u, []string{"booking"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	restored, err := loaded.Predict(u, []string{"booking"})
	if err != nil {
		t.Fatalf("Predict after load: %v", err)
	}
	if orig[0].Label != restored[0].Label {
		t.Errorf("loaded top = %s, original %s", restored[0].Label, orig[0].Label)
	}
}
