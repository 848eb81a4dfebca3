// Package yield estimates pod yield: it scores each detected region with the
// ranking model and aggregates per-pod scores into one overall result.
package yield

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/codec"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/inference"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

// InputSize is the ranking model's fixed square input resolution.
const InputSize = 224

// RegionClassifier crops a detection's region from the source frame, encodes
// it for the ranking model and converts the model's single logit into a yield
// score and category.
type RegionClassifier struct {
	engine inference.Engine
}

func NewRegionClassifier(engine inference.Engine) *RegionClassifier {
	return &RegionClassifier{engine: engine}
}

// Classify scores one region. The box is in source-frame coordinates and is
// clamped to the frame; a crop that degenerates to zero width or height fails
// with ErrEmptyRegion.
func (c *RegionClassifier) Classify(ctx context.Context, img image.Image, box models.Box) (float64, models.Category, error) {
	bounds := img.Bounds()
	x1 := clampInt(int(box.X1), 0, bounds.Dx())
	y1 := clampInt(int(box.Y1), 0, bounds.Dy())
	x2 := clampInt(int(math.Ceil(box.X2)), 0, bounds.Dx())
	y2 := clampInt(int(math.Ceil(box.Y2)), 0, bounds.Dy())
	if x2-x1 <= 0 || y2-y1 <= 0 {
		return 0, "", fmt.Errorf("%w: box (%d,%d)-(%d,%d)", models.ErrEmptyRegion, x1, y1, x2, y2)
	}

	crop := imaging.Crop(img, image.Rect(x1, y1, x2, y2))
	input := codec.EncodeClassifier(crop, InputSize)

	output, err := c.engine.Infer(ctx, input)
	if err != nil {
		return 0, "", fmt.Errorf("classify region: %w", err)
	}
	if len(output.Data) != 1 {
		return 0, "", fmt.Errorf("%w: classifier returned %d values, want 1",
			models.ErrInferenceFailure, len(output.Data))
	}

	score := sigmoid(float64(output.Data[0]))
	return score, models.Categorize(score), nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
