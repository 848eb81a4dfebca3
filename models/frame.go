package models

import (
	"image"
)

type PixelFormat int

const (
	FormatRGBA PixelFormat = iota
	FormatNRGBA
	FormatRGB
)

func (f PixelFormat) bytesPerPixel() int {
	if f == FormatRGB {
		return 3
	}
	return 4
}

// DisplaySize is the rendered size of the viewfinder element. It is only used
// for overlay scaling, never for classification crops.
type DisplaySize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Frame is a single source image. Immutable once produced; lives for one
// inference cycle.
type Frame struct {
	Width   int
	Height  int
	Pix     []byte
	Format  PixelFormat
	Display *DisplaySize
}

// FrameFromImage copies img into an NRGBA-backed frame.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != image.Pt(0, 0) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				nrgba.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	return &Frame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    nrgba.Pix,
		Format: FormatNRGBA,
	}
}

// Image interprets the pixel buffer as an image. Fails with
// ErrUnsupportedFormat when the buffer does not match the declared layout.
func (f *Frame) Image() (image.Image, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, ErrUnsupportedFormat
	}
	want := f.Width * f.Height * f.Format.bytesPerPixel()
	if len(f.Pix) < want {
		return nil, ErrUnsupportedFormat
	}
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case FormatRGBA:
		return &image.RGBA{Pix: f.Pix, Stride: f.Width * 4, Rect: rect}, nil
	case FormatNRGBA:
		return &image.NRGBA{Pix: f.Pix, Stride: f.Width * 4, Rect: rect}, nil
	case FormatRGB:
		// Repack to NRGBA so the imaging package can operate on it.
		out := image.NewNRGBA(rect)
		for i := 0; i < f.Width*f.Height; i++ {
			out.Pix[i*4+0] = f.Pix[i*3+0]
			out.Pix[i*4+1] = f.Pix[i*3+1]
			out.Pix[i*4+2] = f.Pix[i*3+2]
			out.Pix[i*4+3] = 0xff
		}
		return out, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
