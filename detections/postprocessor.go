package detections

import "github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"

// Postprocessor filters or modifies a detection list between NMS and
// classification.
type Postprocessor func([]models.Detection) []models.Detection

// NewMinSizeFilter drops detections whose source-space box is smaller than
// minSide pixels on either side or minArea square pixels. Tiny boxes are
// almost always false positives and waste a classifier run each.
func NewMinSizeFilter(minSide, minArea float64) Postprocessor {
	return func(in []models.Detection) []models.Detection {
		out := make([]models.Detection, 0, len(in))
		for _, d := range in {
			if d.Box.Width() < minSide || d.Box.Height() < minSide || d.Box.Area() < minArea {
				continue
			}
			out = append(out, d)
		}
		return out
	}
}
