package disease

import (
	"fmt"
	"math"
	"sort"

	"github.com/kiranshivaraju/agrismart/pkg/models"
)

// rank pairs labels with scores, sorts by confidence descending and keeps
// the first topK. Ties keep class order.
func rank(labels []string, scores []float32, topK int) ([]models.Prediction, error) {
	if len(labels) != len(scores) {
		return nil, fmt.Errorf("length of labels (%d) and predictions (%d) do not match", len(labels), len(scores))
	}

	preds := make([]models.Prediction, len(labels))
	for i := range labels {
		preds[i] = models.Prediction{Label: labels[i], Confidence: clamp01(float64(scores[i]))}
	}

	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})

	if topK > 0 && len(preds) > topK {
		preds = preds[:topK]
	}
	return preds, nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
