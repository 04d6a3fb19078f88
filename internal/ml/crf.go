package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// CRFOptions tunes the linear-chain trainer. C1 and C2 are the L1 and L2
// regularization strengths.
type CRFOptions struct {
	C1            float64
	C2            float64
	MaxIterations int
	LearningRate  float64
	Seed          int64
}

func DefaultCRFOptions() CRFOptions {
	return CRFOptions{C1: 0.0001, C2: 0.01, MaxIterations: 500, LearningRate: 0.1, Seed: 42}
}

// FeatureSeq is one token sequence; each token is a bag of weighted features.
type FeatureSeq []map[string]float64

// CRFTagger is a linear-chain conditional random field over string features.
type CRFTagger struct {
	Labels       []string             `json:"labels"`
	StateWeights map[string][]float64 `json:"state_weights"` // feature -> per-label weight
	TransWeights [][]float64          `json:"trans_weights"` // from label -> to label
}

// TaggedToken is one token's predicted label with its marginal probability.
type TaggedToken struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// TrainCRF fits the chain by stochastic gradient ascent on the conditional
// log-likelihood, with elastic-net regularization. Deterministic per seed.
func TrainCRF(seqs []FeatureSeq, labels [][]string, opts CRFOptions) (*CRFTagger, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("ml: crf: no training sequences")
	}
	if len(seqs) != len(labels) {
		return nil, fmt.Errorf("ml: crf: %d sequences but %d label sequences", len(seqs), len(labels))
	}
	labelSet := map[string]bool{}
	for i, seq := range seqs {
		if len(seq) != len(labels[i]) {
			return nil, fmt.Errorf("ml: crf: sequence %d has %d tokens but %d labels", i, len(seq), len(labels[i]))
		}
		for _, l := range labels[i] {
			labelSet[l] = true
		}
	}
	var labelList []string
	for l := range labelSet {
		labelList = append(labelList, l)
	}
	sort.Strings(labelList)
	if len(labelList) < 2 {
		return nil, fmt.Errorf("ml: crf: need at least 2 labels, got %d", len(labelList))
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultCRFOptions().MaxIterations
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultCRFOptions().LearningRate
	}

	t := &CRFTagger{
		Labels:       labelList,
		StateWeights: map[string][]float64{},
		TransWeights: make([][]float64, len(labelList)),
	}
	for i := range t.TransWeights {
		t.TransWeights[i] = make([]float64, len(labelList))
	}
	labelIdx := make(map[string]int, len(labelList))
	for i, l := range labelList {
		labelIdx[l] = i
	}
	for _, seq := range seqs {
		for _, tok := range seq {
			for f := range tok {
				if _, ok := t.StateWeights[f]; !ok {
					t.StateWeights[f] = make([]float64, len(labelList))
				}
			}
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	order := make([]int, len(seqs))
	for i := range order {
		order[i] = i
	}

	for iter := 0; iter < opts.MaxIterations; iter++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		lr := opts.LearningRate / (1 + 0.01*float64(iter))
		for _, si := range order {
			t.sgdStep(seqs[si], labels[si], labelIdx, lr, opts)
		}
	}
	return t, nil
}

func (t *CRFTagger) sgdStep(seq FeatureSeq, gold []string, labelIdx map[string]int, lr float64, opts CRFOptions) {
	n := len(seq)
	if n == 0 {
		return
	}
	k := len(t.Labels)
	scores := t.tokenScores(seq)
	alpha, beta, logZ := t.forwardBackward(scores)

	// State gradients: empirical minus expected marginal counts.
	for i := 0; i < n; i++ {
		goldY := labelIdx[gold[i]]
		for f, fw := range seq[i] {
			w := t.StateWeights[f]
			for y := 0; y < k; y++ {
				marg := math.Exp(alpha[i][y] + beta[i][y] - logZ)
				grad := -marg * fw
				if y == goldY {
					grad += fw
				}
				w[y] += lr * (grad - opts.C2*w[y] - opts.C1*sign(w[y]))
			}
		}
	}

	// Transition gradients.
	for i := 1; i < n; i++ {
		goldPrev, goldCur := labelIdx[gold[i-1]], labelIdx[gold[i]]
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				marg := math.Exp(alpha[i-1][a] + t.TransWeights[a][b] + scores[i][b] + beta[i][b] - logZ)
				grad := -marg
				if a == goldPrev && b == goldCur {
					grad++
				}
				w := t.TransWeights[a][b]
				t.TransWeights[a][b] += lr * (grad - opts.C2*w - opts.C1*sign(w))
			}
		}
	}
}

// Tag runs Viterbi for the best path and forward-backward for per-token
// marginals. The third return value is the probability of the whole path.
func (t *CRFTagger) Tag(seq FeatureSeq) ([]TaggedToken, float64, error) {
	n := len(seq)
	if n == 0 {
		return nil, 0, nil
	}
	k := len(t.Labels)
	scores := t.tokenScores(seq)

	// Viterbi.
	delta := make([][]float64, n)
	back := make([][]int, n)
	for i := range delta {
		delta[i] = make([]float64, k)
		back[i] = make([]int, k)
	}
	copy(delta[0], scores[0])
	for i := 1; i < n; i++ {
		for b := 0; b < k; b++ {
			best, arg := math.Inf(-1), 0
			for a := 0; a < k; a++ {
				s := delta[i-1][a] + t.TransWeights[a][b]
				if s > best {
					best, arg = s, a
				}
			}
			delta[i][b] = best + scores[i][b]
			back[i][b] = arg
		}
	}
	bestEnd, bestScore := 0, math.Inf(-1)
	for b := 0; b < k; b++ {
		if delta[n-1][b] > bestScore {
			bestScore, bestEnd = delta[n-1][b], b
		}
	}
	path := make([]int, n)
	path[n-1] = bestEnd
	for i := n - 1; i > 0; i-- {
		path[i-1] = back[i][path[i]]
	}

	alpha, beta, logZ := t.forwardBackward(scores)
	out := make([]TaggedToken, n)
	for i, y := range path {
		out[i] = TaggedToken{
			Label:       t.Labels[y],
			Probability: math.Exp(alpha[i][y] + beta[i][y] - logZ),
		}
	}
	return out, math.Exp(bestScore - logZ), nil
}

// Marginals returns, for every token, the marginal probability of every
// label under the chain distribution.
func (t *CRFTagger) Marginals(seq FeatureSeq) []map[string]float64 {
	n := len(seq)
	if n == 0 {
		return nil
	}
	scores := t.tokenScores(seq)
	alpha, beta, logZ := t.forwardBackward(scores)
	out := make([]map[string]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make(map[string]float64, len(t.Labels))
		for y, label := range t.Labels {
			out[i][label] = math.Exp(alpha[i][y] + beta[i][y] - logZ)
		}
	}
	return out
}

func (t *CRFTagger) tokenScores(seq FeatureSeq) [][]float64 {
	k := len(t.Labels)
	scores := make([][]float64, len(seq))
	for i, tok := range seq {
		scores[i] = make([]float64, k)
		for f, fw := range tok {
			w, ok := t.StateWeights[f]
			if !ok {
				continue
			}
			for y := 0; y < k; y++ {
				scores[i][y] += w[y] * fw
			}
		}
	}
	return scores
}

// forwardBackward computes log-space alpha/beta tables and the partition.
func (t *CRFTagger) forwardBackward(scores [][]float64) (alpha, beta [][]float64, logZ float64) {
	n, k := len(scores), len(t.Labels)
	alpha = make([][]float64, n)
	beta = make([][]float64, n)
	for i := range alpha {
		alpha[i] = make([]float64, k)
		beta[i] = make([]float64, k)
	}
	copy(alpha[0], scores[0])
	buf := make([]float64, k)
	for i := 1; i < n; i++ {
		for b := 0; b < k; b++ {
			for a := 0; a < k; a++ {
				buf[a] = alpha[i-1][a] + t.TransWeights[a][b]
			}
			alpha[i][b] = logSumExp(buf) + scores[i][b]
		}
	}
	for i := n - 2; i >= 0; i-- {
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				buf[b] = t.TransWeights[a][b] + scores[i+1][b] + beta[i+1][b]
			}
			beta[i][a] = logSumExp(buf)
		}
	}
	return alpha, beta, logSumExp(alpha[n-1])
}

func (t *CRFTagger) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func UnmarshalCRF(data []byte) (*CRFTagger, error) {
	var t CRFTagger
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("ml: crf: unmarshal: %w", err)
	}
	return &t, nil
}

func logSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
