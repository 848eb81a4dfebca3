package codec

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

func solidFrame(w, h int, c color.NRGBA) *models.Frame {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4+0] = c.R
		img.Pix[i*4+1] = c.G
		img.Pix[i*4+2] = c.B
		img.Pix[i*4+3] = c.A
	}
	return models.FrameFromImage(img)
}

func TestEncodeDetectorShapeAndRange(t *testing.T) {
	frame := solidFrame(320, 240, color.NRGBA{R: 255, G: 128, B: 0, A: 255})

	tensor, lb, err := EncodeDetector(frame, 640)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 640, 640}, tensor.Shape)
	assert.Len(t, tensor.Data, 3*640*640)
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %f at index %d outside 0..1", v, i)
		}
	}

	// 320x240 into 640: gain 2, scaled 640x480, vertical pad 80.
	assert.InDelta(t, 2.0, lb.Gain, 1e-12)
	assert.Equal(t, 0.0, lb.PadX)
	assert.Equal(t, 80.0, lb.PadY)
	assert.Equal(t, 640, lb.InputSize)
}

func TestEncodeDetectorPixelValues(t *testing.T) {
	frame := solidFrame(64, 64, color.NRGBA{R: 255, G: 0, B: 51, A: 255})

	tensor, lb, err := EncodeDetector(frame, 64)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, lb.Gain, 1e-12)

	channelSize := 64 * 64
	center := 32*64 + 32
	assert.InDelta(t, 1.0, float64(tensor.Data[center]), 1e-3)
	assert.InDelta(t, 0.0, float64(tensor.Data[channelSize+center]), 1e-3)
	assert.InDelta(t, 0.2, float64(tensor.Data[2*channelSize+center]), 1e-2)
}

func TestEncodeDetectorUnsupportedFormat(t *testing.T) {
	bad := &models.Frame{Width: 10, Height: 10, Pix: make([]byte, 5), Format: models.FormatRGBA}
	_, _, err := EncodeDetector(bad, 640)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnsupportedFormat))
}

func TestEncodeClassifierNormalization(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 224, 224))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	tensor := EncodeClassifier(img, 224)
	require.Equal(t, []int64{1, 3, 224, 224}, tensor.Shape)

	channelSize := 224 * 224
	norm := models.ImageNetNormalization
	assert.InDelta(t, float64((1.0-norm.Mean[0])/norm.Std[0]), float64(tensor.Data[0]), 1e-3)
	assert.InDelta(t, float64((1.0-norm.Mean[1])/norm.Std[1]), float64(tensor.Data[channelSize]), 1e-3)
	assert.InDelta(t, float64((1.0-norm.Mean[2])/norm.Std[2]), float64(tensor.Data[2*channelSize]), 1e-3)
}

func TestDecodeOutput(t *testing.T) {
	data := make([]float32, 6)
	out, err := DecodeOutput(data, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, out.Shape)

	_, err = DecodeOutput(data, []int64{1, 7})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInferenceFailure))

	_, err = DecodeOutput(data, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInferenceFailure))

	_, err = DecodeOutput(data, []int64{-1, 6})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInferenceFailure))
}

func TestFrameRGBRepack(t *testing.T) {
	frame := &models.Frame{
		Width:  2,
		Height: 1,
		Pix:    []byte{10, 20, 30, 40, 50, 60},
		Format: models.FormatRGB,
	}
	img, err := frame.Image()
	require.NoError(t, err)

	r, g, b, a := img.At(1, 0).RGBA()
	assert.Equal(t, uint32(40), r>>8)
	assert.Equal(t, uint32(50), g>>8)
	assert.Equal(t, uint32(60), b>>8)
	assert.Equal(t, uint32(255), a>>8)
}
