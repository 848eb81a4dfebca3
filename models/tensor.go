package models

// Tensor is a shaped float32 buffer passed to and from the inference runtime.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func NewTensor(shape ...int64) *Tensor {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: shape, Data: make([]float32, n)}
}

func (t *Tensor) ElemCount() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Normalization is the per-channel affine transform applied after the 0..1
// scale during tensor encoding.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// UnitNormalization leaves values in 0..1 (detector input).
var UnitNormalization = Normalization{Mean: [3]float32{0, 0, 0}, Std: [3]float32{1, 1, 1}}

// ImageNetNormalization matches the classifier's training preprocessing.
var ImageNetNormalization = Normalization{
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// Letterbox records how a frame was fitted into the model's square input:
// source coordinates scale by Gain and shift by (PadX, PadY). The coordinate
// mapper inverts it to recover source-frame boxes.
type Letterbox struct {
	InputSize int
	Gain      float64
	PadX      float64
	PadY      float64
}
