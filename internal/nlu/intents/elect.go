package intents

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ml"
	"github.com/botkit-ai/nlu-engine/internal/nlu"
)

// Minimum winning confidence; below it the election falls back to none.
const minElectedConfidence = 0.3

// Elect combines context scores with per-context intent predictions into a
// single calibrated ranking. Context confidences are first renormalized over
// the included contexts by their capped sum.
func Elect(ctxPreds []ml.Prediction, perCtx map[string][]ml.Prediction, includedContexts []string) []domain.IntentPrediction {
	var totalConfidence float64
	for _, p := range ctxPreds {
		if containsString(includedContexts, p.Label) {
			totalConfidence += p.Confidence
		}
	}
	totalConfidence = math.Min(1, totalConfidence)

	var elected []domain.IntentPrediction
	for _, ctxPred := range ctxPreds {
		ctx := ctxPred.Label
		if !containsString(includedContexts, ctx) {
			continue
		}
		intentPreds := perCtx[ctx]
		if len(intentPreds) == 0 {
			continue
		}
		ctxConf := ctxPred.Confidence
		if totalConfidence > 0 {
			ctxConf = ctxPred.Confidence / totalConfidence
		}
		elected = append(elected, calibrate(ctx, ctxConf, intentPreds)...)
	}

	sort.SliceStable(elected, func(i, j int) bool { return elected[i].Confidence > elected[j].Confidence })
	elected = dedupeByLabel(elected)

	if len(elected) == 0 || elected[0].Confidence < minElectedConfidence {
		ctx := "global"
		if len(elected) > 0 {
			ctx = elected[0].Context
		}
		withNone := []domain.IntentPrediction{{Label: nlu.NoneIntent, Context: ctx, Confidence: 1}}
		for _, p := range elected {
			if p.Label != nlu.NoneIntent {
				withNone = append(withNone, p)
			}
		}
		elected = withNone
	}
	return elected
}

// calibrate turns one context's raw intent confidences into final scores.
func calibrate(ctx string, ctxConf float64, intentPreds []ml.Prediction) []domain.IntentPrediction {
	sorted := append([]ml.Prediction(nil), intentPreds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })

	if len(sorted) == 1 || sorted[0].Confidence == 1 {
		return []domain.IntentPrediction{{Label: sorted[0].Label, Context: ctx, Confidence: ctxConf * 1}}
	}

	if reallyConfused(sorted) {
		out := []domain.IntentPrediction{{Label: nlu.NoneIntent, Context: ctx, Confidence: ctxConf * 1}}
		for i, p := range sorted {
			if i == 4 {
				break
			}
			out = append(out, domain.IntentPrediction{Label: p.Label, Context: ctx, Confidence: ctxConf * p.Confidence})
		}
		return out
	}

	logs := make([]float64, len(sorted))
	for i, p := range sorted {
		logs[i] = math.Log(p.Confidence)
	}
	lnStd := stat.StdDev(logs, nil)
	p1Conf := zPercent((math.Log(sorted[0].Confidence) - math.Log(sorted[1].Confidence)) / lnStd)
	if math.IsNaN(p1Conf) {
		p1Conf = 0.5
	}

	return []domain.IntentPrediction{
		{Label: sorted[0].Label, Context: ctx, Confidence: ctxConf * p1Conf},
		{Label: sorted[1].Label, Context: ctx, Confidence: ctxConf * (1 - p1Conf)},
	}
}

// reallyConfused reports whether the best predictions are too close to call.
func reallyConfused(sorted []ml.Prediction) bool {
	if len(sorted) <= 2 {
		return false
	}
	confs := make([]float64, len(sorted))
	for i, p := range sorted {
		confs[i] = p.Confidence
	}
	std := stat.StdDev(confs, nil)
	if (confs[0]-confs[1])/std >= 2.5 {
		return false
	}
	top3 := stat.StdDev(confs[:3], nil)
	return top3 <= 0.03
}

// zPercent maps a z-score through the standard normal CDF.
func zPercent(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func dedupeByLabel(preds []domain.IntentPrediction) []domain.IntentPrediction {
	seen := map[string]bool{}
	out := preds[:0]
	for _, p := range preds {
		if seen[p.Label] {
			continue
		}
		seen[p.Label] = true
		out = append(out, p)
	}
	return out
}
