package detections

import "github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"

// ToSourceSpace undoes the letterbox fit applied during encoding and clamps
// the result to frame bounds. Because encoding preserves aspect ratio, the
// inverse is a single uniform scale plus the pad offset; the two per-axis
// scale factors are intentionally identical.
func ToSourceSpace(box models.Box, lb models.Letterbox, frameWidth, frameHeight int) models.Box {
	w := float64(frameWidth)
	h := float64(frameHeight)
	return models.Box{
		X1: clamp((box.X1-lb.PadX)/lb.Gain, 0, w),
		Y1: clamp((box.Y1-lb.PadY)/lb.Gain, 0, h),
		X2: clamp((box.X2-lb.PadX)/lb.Gain, 0, w),
		Y2: clamp((box.Y2-lb.PadY)/lb.Gain, 0, h),
	}
}

// ToModelSpace is the forward mapping from source-frame coordinates into the
// detector's input space.
func ToModelSpace(box models.Box, lb models.Letterbox) models.Box {
	return models.Box{
		X1: box.X1*lb.Gain + lb.PadX,
		Y1: box.Y1*lb.Gain + lb.PadY,
		X2: box.X2*lb.Gain + lb.PadX,
		Y2: box.Y2*lb.Gain + lb.PadY,
	}
}

// ToDisplaySpace scales a source-frame box to the rendered element's pixel
// size. Only the overlay uses this; classification always crops from source
// pixels.
func ToDisplaySpace(box models.Box, frameWidth, frameHeight, displayWidth, displayHeight int) models.Box {
	scaleX := float64(displayWidth) / float64(frameWidth)
	scaleY := float64(displayHeight) / float64(frameHeight)
	return models.Box{
		X1: box.X1 * scaleX,
		Y1: box.Y1 * scaleY,
		X2: box.X2 * scaleX,
		Y2: box.Y2 * scaleY,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
