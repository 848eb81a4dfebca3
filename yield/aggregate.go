package yield

import "github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"

// Aggregate combines per-pod estimates into one overall result. With no
// detections the result defaults to the worst case: category Low, no score.
// Otherwise the overall score is the arithmetic mean of the per-pod scores
// and the overall category is that mean put through the same bucket
// thresholds as per-pod classification, so re-classifying an aggregate score
// is a no-op.
func Aggregate(detections []models.Detection) *models.AggregateResult {
	if len(detections) == 0 {
		return &models.AggregateResult{Category: models.CategoryLow}
	}

	sum := 0.0
	for _, d := range detections {
		sum += d.YieldScore
	}
	mean := models.Clamp01(sum / float64(len(detections)))

	return &models.AggregateResult{
		Category:   models.Categorize(mean),
		Score:      &mean,
		Count:      len(detections),
		Detections: detections,
	}
}
