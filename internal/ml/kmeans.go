package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

const kmeansMaxIterations = 100

// KMeansModel holds fitted cluster centroids.
type KMeansModel struct {
	Centroids [][]float64 `json:"centroids"`
}

// KMeans runs Lloyd's algorithm with seeded initialization. k is capped at
// the number of distinct points.
func KMeans(points [][]float64, k int, seed int64) (*KMeansModel, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("ml: kmeans: no points")
	}
	if k <= 0 {
		return nil, fmt.Errorf("ml: kmeans: k must be positive, got %d", k)
	}
	distinct := distinctPoints(points)
	if k > len(distinct) {
		k = len(distinct)
	}
	dim := len(points[0])

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(distinct))
	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float64(nil), distinct[perm[i]]...)
	}

	assign := make([]int, len(points))
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, p := range points {
			c := nearestCentroid(p, centroids)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			counts[assign[i]]++
			floats.Add(sums[assign[i]], p)
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			centroids[c] = sums[c]
		}
	}

	return &KMeansModel{Centroids: centroids}, nil
}

// Nearest returns the index of the closest centroid.
func (m *KMeansModel) Nearest(p []float64) int {
	return nearestCentroid(p, m.Centroids)
}

func (m *KMeansModel) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func UnmarshalKMeans(data []byte) (*KMeansModel, error) {
	var m KMeansModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ml: kmeans: unmarshal: %w", err)
	}
	return &m, nil
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best, arg := math.Inf(1), 0
	for c, centroid := range centroids {
		var d float64
		for j := range p {
			diff := p[j] - centroid[j]
			d += diff * diff
		}
		if d < best {
			best, arg = d, c
		}
	}
	return arg
}

func distinctPoints(points [][]float64) [][]float64 {
	seen := map[string]bool{}
	var out [][]float64
	for _, p := range points {
		key := fmt.Sprint(p)
		if !seen[key] {
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}
