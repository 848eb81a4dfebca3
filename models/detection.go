package models

// Box is an axis-aligned rectangle with corner coordinates. Which coordinate
// space it lives in (model input, source frame, display) depends on where it
// sits in the pipeline.
type Box struct {
	X1, Y1, X2, Y2 float64
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

func (b Box) Area() float64 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Array returns the wire form [x1, y1, x2, y2].
func (b Box) Array() [4]float64 {
	return [4]float64{b.X1, b.Y1, b.X2, b.Y2}
}

// RawCandidate is one decoded detector row, in model-input space. Discarded
// after NMS.
type RawCandidate struct {
	Box        Box
	Confidence float64
	ClassID    int
}

// Category buckets a continuous yield score.
type Category string

const (
	CategoryLow    Category = "Low"
	CategoryMedium Category = "Medium"
	CategoryHigh   Category = "High"
)

// Bucket thresholds are a hard contract shared by per-pod classification,
// aggregation and UI color coding. Lower bounds are closed.
const (
	LowUpperBound    = 1.0 / 3.0
	MediumUpperBound = 2.0 / 3.0
)

// Categorize maps a score in [0,1] to its yield category.
func Categorize(score float64) Category {
	switch {
	case score < LowUpperBound:
		return CategoryLow
	case score < MediumUpperBound:
		return CategoryMedium
	default:
		return CategoryHigh
	}
}

// Clamp01 clamps confidence and score values into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Detection is one recognized pod: box in source-frame coordinates,
// detector confidence, and the yield estimate filled in by the region
// classifier.
type Detection struct {
	ClassID       int
	Confidence    float64
	Box           Box
	YieldScore    float64
	YieldCategory Category
}

// AggregateResult summarizes all detections of one pipeline run. Detections
// keep decode order; sorting is a presentation concern.
type AggregateResult struct {
	Category   Category
	Score      *float64
	Count      int
	Detections []Detection
}
