package ml

import (
	"math"
	"testing"
)

func TestTrainSVMSeparableClasses(t *testing.T) {
	var points []DataPoint
	for i := 0; i < 10; i++ {
		d := float64(i) * 0.05
		points = append(points,
			DataPoint{Label: "left", Coordinates: []float64{-1 - d, -1 + d}},
			DataPoint{Label: "right", Coordinates: []float64{1 + d, 1 - d}},
		)
	}

	clf, err := TrainSVM(points, DefaultSVMOptions())
	if err != nil {
		t.Fatalf("TrainSVM: %v", err)
	}

	cases := []struct {
		coords []float64
		want   string
	}{
		{[]float64{-1.2, -0.8}, "left"},
		{[]float64{1.3, 0.7}, "right"},
	}
	for _, tc := range cases {
		preds, err := clf.Predict(tc.coords)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if preds[0].Label != tc.want {
			t.Errorf("Predict(%v) top = %s, want %s", tc.coords, preds[0].Label, tc.want)
		}
		var sum float64
		for _, p := range preds {
			sum += p.Confidence
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("confidences sum to %f, want 1", sum)
		}
	}
}

func TestTrainSVMDeterministic(t *testing.T) {
	points := []DataPoint{
		{Label: "a", Coordinates: []float64{0, 1}},
		{Label: "a", Coordinates: []float64{0.1, 0.9}},
		{Label: "b", Coordinates: []float64{1, 0}},
		{Label: "b", Coordinates: []float64{0.9, 0.1}},
	}
	first, err := TrainSVM(points, DefaultSVMOptions())
	if err != nil {
		t.Fatalf("TrainSVM: %v", err)
	}
	second, err := TrainSVM(points, DefaultSVMOptions())
	if err != nil {
		t.Fatalf("TrainSVM: %v", err)
	}
	for k := range first.Weights {
		for j := range first.Weights[k] {
			if first.Weights[k][j] != second.Weights[k][j] {
				t.Fatalf("weights differ between identical seeded runs")
			}
		}
	}
}

func TestTrainSVMErrors(t *testing.T) {
	if _, err := TrainSVM(nil, DefaultSVMOptions()); err == nil {
		t.Error("expected error for empty training set")
	}
	zeroDim := []DataPoint{{Label: "a", Coordinates: nil}}
	if _, err := TrainSVM(zeroDim, DefaultSVMOptions()); err == nil {
		t.Error("expected error for zero-dimensional training set")
	}
}

func TestTrainSVMSingleLabel(t *testing.T) {
	oneLabel := []DataPoint{
		{Label: "only", Coordinates: []float64{1, 0}},
		{Label: "only", Coordinates: []float64{2, 1}},
	}
	clf, err := TrainSVM(oneLabel, DefaultSVMOptions())
	if err != nil {
		t.Fatalf("TrainSVM: %v", err)
	}
	preds, err := clf.Predict([]float64{-5, 3})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) != 1 || preds[0].Label != "only" {
		t.Fatalf("preds = %+v, want the single trained label", preds)
	}
	if preds[0].Confidence != 1 {
		t.Errorf("confidence = %f, want 1", preds[0].Confidence)
	}
}

func TestSVMRoundTrip(t *testing.T) {
	points := []DataPoint{
		{Label: "a", Coordinates: []float64{0, 1}},
		{Label: "a", Coordinates: []float64{0.2, 0.8}},
		{Label: "b", Coordinates: []float64{1, 0}},
		{Label: "b", Coordinates: []float64{0.8, 0.2}},
	}
	clf, err := TrainSVM(points, DefaultSVMOptions())
	if err != nil {
		t.Fatalf("TrainSVM: %v", err)
	}
	data, err := clf.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	loaded, err := UnmarshalSVM(data)
	if err != nil {
		t.Fatalf("UnmarshalSVM: %v", err)
	}
	orig, _ := clf.Predict([]float64{0.1, 0.9})
	restored, _ := loaded.Predict([]float64{0.1, 0.9})
	if orig[0].Label != restored[0].Label || math.Abs(orig[0].Confidence-restored[0].Confidence) > 1e-12 {
		t.Errorf("loaded model predicts %v, original %v", restored[0], orig[0])
	}
}
