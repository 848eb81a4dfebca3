package detections

import (
	"sort"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

// IoU is the intersection-over-union of two axis-aligned rectangles. It is 0
// when they do not overlap or either has non-positive area.
func IoU(a, b models.Box) float64 {
	areaA := a.Area()
	areaB := b.Area()
	if areaA <= 0 || areaB <= 0 {
		return 0
	}

	x1 := maxF(a.X1, b.X1)
	y1 := maxF(a.Y1, b.Y1)
	x2 := minF(a.X2, b.X2)
	y2 := minF(a.Y2, b.Y2)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	return intersection / (areaA + areaB - intersection)
}

// Suppress runs greedy non-maximum suppression: candidates are taken in
// descending confidence order and every remaining candidate overlapping the
// kept one with IoU >= iouThreshold is dropped. Suppression is class-agnostic:
// overlapping boxes of different classes still suppress each other, which is
// the behavior the detector was tuned against (class-aware NMS would keep
// them). Confidence ties keep decode order via the stable sort. Boxes are
// still in model space here.
func Suppress(candidates []models.RawCandidate, iouThreshold float64) []models.Detection {
	if len(candidates) == 0 {
		return nil
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return candidates[order[i]].Confidence > candidates[order[j]].Confidence
	})

	suppressed := make([]bool, len(candidates))
	kept := make([]models.Detection, 0, len(candidates))
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		c := candidates[i]
		kept = append(kept, models.Detection{
			ClassID:    c.ClassID,
			Confidence: c.Confidence,
			Box:        c.Box,
		})
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if IoU(c.Box, candidates[j].Box) >= iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
