package ml

import "testing"

func TestKMeansSeparatedClusters(t *testing.T) {
	points := [][]float64{
		{0, 0}, {0.1, 0.1}, {0.2, 0},
		{10, 10}, {10.1, 9.9}, {9.8, 10.2},
	}
	model, err := KMeans(points, 2, 42)
	if err != nil {
		t.Fatalf("KMeans: %v", err)
	}
	if len(model.Centroids) != 2 {
		t.Fatalf("got %d centroids, want 2", len(model.Centroids))
	}

	low := model.Nearest([]float64{0.05, 0.05})
	high := model.Nearest([]float64{9.9, 10})
	if low == high {
		t.Error("points from different clusters mapped to the same centroid")
	}
	if got := model.Nearest([]float64{0.15, 0.02}); got != low {
		t.Errorf("nearby point assigned centroid %d, want %d", got, low)
	}
}

func TestKMeansCapsAtDistinctPoints(t *testing.T) {
	points := [][]float64{{1, 1}, {1, 1}, {2, 2}}
	model, err := KMeans(points, 8, 42)
	if err != nil {
		t.Fatalf("KMeans: %v", err)
	}
	if len(model.Centroids) != 2 {
		t.Errorf("got %d centroids, want 2 (distinct points)", len(model.Centroids))
	}
}

func TestKMeansErrors(t *testing.T) {
	if _, err := KMeans(nil, 2, 42); err == nil {
		t.Error("expected error for empty point set")
	}
	if _, err := KMeans([][]float64{{1}}, 0, 42); err == nil {
		t.Error("expected error for k=0")
	}
}
