package ml

import "testing"

func cityToken(word string, isCity bool) map[string]float64 {
	feats := map[string]float64{"word=" + word: 1}
	if isCity {
		feats["shape=capitalized"] = 1
	}
	return feats
}

func crfTrainingData() ([]FeatureSeq, [][]string) {
	seqs := []FeatureSeq{
		{cityToken("fly", false), cityToken("to", false), cityToken("Paris", true)},
		{cityToken("go", false), cityToken("to", false), cityToken("Lyon", true)},
		{cityToken("leave", false), cityToken("from", false), cityToken("Nice", true)},
		{cityToken("fly", false), cityToken("to", false), cityToken("Lille", true)},
		{cityToken("book", false), cityToken("it", false)},
		{cityToken("nothing", false), cityToken("here", false)},
	}
	labels := [][]string{
		{"O", "O", "B-city"},
		{"O", "O", "B-city"},
		{"O", "O", "B-city"},
		{"O", "O", "B-city"},
		{"O", "O"},
		{"O", "O"},
	}
	return seqs, labels
}

func TestTrainCRFTagsBySharedFeature(t *testing.T) {
	seqs, labels := crfTrainingData()
	opts := DefaultCRFOptions()
	opts.MaxIterations = 100
	tagger, err := TrainCRF(seqs, labels, opts)
	if err != nil {
		t.Fatalf("TrainCRF: %v", err)
	}

	tagged, _, err := tagger.Tag(FeatureSeq{
		cityToken("drive", false), cityToken("to", false), cityToken("Nantes", true),
	})
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	want := []string{"O", "O", "B-city"}
	for i, w := range want {
		if tagged[i].Label != w {
			t.Errorf("token %d tagged %s, want %s", i, tagged[i].Label, w)
		}
		if tagged[i].Probability <= 0 || tagged[i].Probability > 1 {
			t.Errorf("token %d marginal %f outside (0,1]", i, tagged[i].Probability)
		}
	}
}

func TestTagEmptySequence(t *testing.T) {
	seqs, labels := crfTrainingData()
	opts := DefaultCRFOptions()
	opts.MaxIterations = 20
	tagger, err := TrainCRF(seqs, labels, opts)
	if err != nil {
		t.Fatalf("TrainCRF: %v", err)
	}
	tagged, _, err := tagger.Tag(nil)
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if len(tagged) != 0 {
		t.Errorf("got %d tags for empty sequence", len(tagged))
	}
}

func TestTrainCRFValidation(t *testing.T) {
	if _, err := TrainCRF(nil, nil, DefaultCRFOptions()); err == nil {
		t.Error("expected error for empty training set")
	}
	seqs := []FeatureSeq{{cityToken("a", false)}}
	mismatched := [][]string{{"O", "O"}}
	if _, err := TrainCRF(seqs, mismatched, DefaultCRFOptions()); err == nil {
		t.Error("expected error for label length mismatch")
	}
}

func TestCRFRoundTrip(t *testing.T) {
	seqs, labels := crfTrainingData()
	opts := DefaultCRFOptions()
	opts.MaxIterations = 50
	tagger, err := TrainCRF(seqs, labels, opts)
	if err != nil {
		t.Fatalf("TrainCRF: %v", err)
	}
	data, err := tagger.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	loaded, err := UnmarshalCRF(data)
	if err != nil {
		t.Fatalf("UnmarshalCRF: %v", err)
	}
	input := FeatureSeq{cityToken("to", false), cityToken("Metz", true)}
	orig, _, _ := tagger.Tag(input)
	restored, _, _ := loaded.Tag(input)
	for i := range orig {
		if orig[i].Label != restored[i].Label {
			t.Errorf("token %d: loaded tags %s, original %s", i, restored[i].Label, orig[i].Label)
		}
	}
}
