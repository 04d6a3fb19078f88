package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DataPoint is one labeled training vector.
type DataPoint struct {
	Label       string    `json:"label"`
	Coordinates []float64 `json:"coordinates"`
}

// Prediction is one class with its confidence. Confidences over a prediction
// set sum to 1.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// SVMOptions tunes the linear trainer.
type SVMOptions struct {
	C      float64
	Epochs int
	Seed   int64
}

func DefaultSVMOptions() SVMOptions {
	return SVMOptions{C: 1, Epochs: 100, Seed: 42}
}

// SVMClassifier is a linear one-vs-rest classifier. Inputs are standardized
// with the training-set mean and deviation before scoring. Confidences are a
// softmax over the per-class margins.
type SVMClassifier struct {
	Labels  []string    `json:"labels"`
	Weights [][]float64 `json:"weights"` // per label, coordinates plus bias
	Mean    []float64   `json:"mean"`
	Stddev  []float64   `json:"stddev"`
	Dim     int         `json:"dim"`
}

// TrainSVM fits one linear classifier per label with Pegasos-style SGD over
// the hinge loss. Training is deterministic for a given seed.
func TrainSVM(points []DataPoint, opts SVMOptions) (*SVMClassifier, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("ml: svm: no training points")
	}
	dim := len(points[0].Coordinates)
	if dim == 0 {
		return nil, fmt.Errorf("ml: svm: zero-dimensional training points")
	}
	for i := range points {
		if len(points[i].Coordinates) != dim {
			return nil, fmt.Errorf("ml: svm: point %d has dimension %d, want %d", i, len(points[i].Coordinates), dim)
		}
	}

	labels := distinctLabels(points)
	mean, stddev := standardization(points, dim)

	// A single class degenerates to a constant classifier: softmax over the
	// lone margin always answers that class with confidence 1.
	if len(labels) == 1 {
		return &SVMClassifier{
			Labels:  labels,
			Weights: [][]float64{make([]float64, dim+1)},
			Mean:    mean,
			Stddev:  stddev,
			Dim:     dim,
		}, nil
	}

	scaled := make([][]float64, len(points))
	for i, p := range points {
		scaled[i] = standardize(p.Coordinates, mean, stddev)
	}

	if opts.Epochs <= 0 {
		opts.Epochs = DefaultSVMOptions().Epochs
	}
	if opts.C <= 0 {
		opts.C = DefaultSVMOptions().C
	}

	labelIdx := make(map[string]int, len(labels))
	for i, l := range labels {
		labelIdx[l] = i
	}

	lambda := 1 / (opts.C * float64(len(points)))
	weights := make([][]float64, len(labels))
	for i := range weights {
		weights[i] = make([]float64, dim+1)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}

	t := 0
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, idx := range order {
			t++
			eta := 1 / (lambda * float64(t))
			x := scaled[idx]
			target := labelIdx[points[idx].Label]
			for k := range weights {
				w := weights[k]
				y := -1.0
				if k == target {
					y = 1
				}
				margin := floats.Dot(w[:dim], x) + w[dim]
				floats.Scale(1-eta*lambda, w)
				if y*margin < 1 {
					floats.AddScaled(w[:dim], eta*y, x)
					w[dim] += eta * y
				}
			}
		}
	}

	return &SVMClassifier{
		Labels:  labels,
		Weights: weights,
		Mean:    mean,
		Stddev:  stddev,
		Dim:     dim,
	}, nil
}

// Predict scores the vector against every class and returns predictions
// sorted by confidence, best first.
func (c *SVMClassifier) Predict(coords []float64) ([]Prediction, error) {
	if len(coords) != c.Dim {
		return nil, fmt.Errorf("ml: svm: input dimension %d, want %d", len(coords), c.Dim)
	}
	x := standardize(coords, c.Mean, c.Stddev)

	margins := make([]float64, len(c.Labels))
	for k, w := range c.Weights {
		margins[k] = floats.Dot(w[:c.Dim], x) + w[c.Dim]
	}

	probs := softmax(margins)
	preds := make([]Prediction, len(c.Labels))
	for k, l := range c.Labels {
		preds[k] = Prediction{Label: l, Confidence: probs[k]}
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Confidence > preds[j].Confidence })
	return preds, nil
}

func (c *SVMClassifier) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func UnmarshalSVM(data []byte) (*SVMClassifier, error) {
	var c SVMClassifier
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("ml: svm: unmarshal: %w", err)
	}
	return &c, nil
}

func distinctLabels(points []DataPoint) []string {
	seen := map[string]bool{}
	var labels []string
	for _, p := range points {
		if !seen[p.Label] {
			seen[p.Label] = true
			labels = append(labels, p.Label)
		}
	}
	sort.Strings(labels)
	return labels
}

func standardization(points []DataPoint, dim int) (mean, stddev []float64) {
	mean = make([]float64, dim)
	stddev = make([]float64, dim)
	n := float64(len(points))
	for _, p := range points {
		floats.Add(mean, p.Coordinates)
	}
	floats.Scale(1/n, mean)
	for _, p := range points {
		for j, v := range p.Coordinates {
			d := v - mean[j]
			stddev[j] += d * d
		}
	}
	for j := range stddev {
		stddev[j] = math.Sqrt(stddev[j] / n)
		if stddev[j] == 0 {
			stddev[j] = 1
		}
	}
	return mean, stddev
}

func standardize(coords, mean, stddev []float64) []float64 {
	out := make([]float64, len(coords))
	for j, v := range coords {
		out[j] = (v - mean[j]) / stddev[j]
	}
	return out
}

func softmax(scores []float64) []float64 {
	max := floats.Max(scores)
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}
