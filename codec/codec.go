// Package codec converts frames into model input tensors and validates raw
// model output buffers.
//
// Detector encoding letterboxes the frame onto a gray square canvas so aspect
// ratio is preserved; the returned Letterbox parameters let the coordinate
// mapper invert the fit exactly. Resampling is bilinear, which is
// deterministic and matters for box geometry after letterboxing.
package codec

import (
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

var bufferPool = sync.Pool{
	New: func() interface{} { return []float32(nil) },
}

// EncodeDetector letterboxes the frame into a size x size channel-first
// tensor with values scaled to 0..1.
func EncodeDetector(frame *models.Frame, size int) (*models.Tensor, models.Letterbox, error) {
	img, err := frame.Image()
	if err != nil {
		return nil, models.Letterbox{}, err
	}

	gain := float64(size) / float64(frame.Width)
	if g := float64(size) / float64(frame.Height); g < gain {
		gain = g
	}
	scaledW := int(float64(frame.Width)*gain + 0.5)
	scaledH := int(float64(frame.Height)*gain + 0.5)
	padX := (size - scaledW) / 2
	padY := (size - scaledH) / 2

	resized := imaging.Resize(img, scaledW, scaledH, imaging.Linear)
	canvas := imaging.New(size, size, padColor)
	canvas = imaging.Paste(canvas, resized, image.Pt(padX, padY))

	t := encodeImage(canvas, size, size, models.UnitNormalization)
	lb := models.Letterbox{
		InputSize: size,
		Gain:      gain,
		PadX:      float64(padX),
		PadY:      float64(padY),
	}
	return t, lb, nil
}

// EncodeClassifier resizes img to size x size (no letterbox, matching the
// classifier's training preprocessing) and applies ImageNet normalization.
func EncodeClassifier(img image.Image, size int) *models.Tensor {
	resized := imaging.Resize(img, size, size, imaging.Linear)
	return encodeImage(resized, size, size, models.ImageNetNormalization)
}

// encodeImage converts img to a 1x3xHxW channel-first tensor, splitting rows
// across workers.
func encodeImage(img image.Image, width, height int, norm models.Normalization) *models.Tensor {
	t := models.NewTensor(1, 3, int64(height), int64(width))
	channelSize := width * height

	buffer := bufferPool.Get().([]float32)
	if cap(buffer) < channelSize*3 {
		buffer = make([]float32, channelSize*3)
	}
	buffer = buffer[:channelSize*3]
	defer bufferPool.Put(buffer) //nolint:staticcheck

	numWorkers := runtime.NumCPU()
	if numWorkers > height {
		numWorkers = height
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if w == numWorkers-1 {
			endY = height
		}
		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				offset := y * width
				for x := 0; x < width; x++ {
					i := offset + x
					r, g, b, _ := img.At(x, y).RGBA()
					buffer[i] = (float32(r>>8)/255.0 - norm.Mean[0]) / norm.Std[0]
					buffer[channelSize+i] = (float32(g>>8)/255.0 - norm.Mean[1]) / norm.Std[1]
					buffer[channelSize*2+i] = (float32(b>>8)/255.0 - norm.Mean[2]) / norm.Std[2]
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	copy(t.Data, buffer)
	return t
}

// DecodeOutput wraps a raw output buffer in a shaped tensor, failing fast
// when the buffer does not match the expected shape.
func DecodeOutput(data []float32, shape []int64) (*models.Tensor, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: output has no shape", models.ErrInferenceFailure)
	}
	want := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: invalid output dimension %d", models.ErrInferenceFailure, d)
		}
		want *= d
	}
	if int64(len(data)) != want {
		return nil, fmt.Errorf("%w: output has %d values, shape %v needs %d",
			models.ErrInferenceFailure, len(data), shape, want)
	}
	return &models.Tensor{Shape: shape, Data: data}, nil
}
