package detections

const (
	// InputSize is the detector's fixed square input resolution.
	InputSize = 640
	// NumPredictions is the detector's anchor/grid row count.
	NumPredictions = 8400

	DefaultConfThreshold = 0.25
	DefaultIoUThreshold  = 0.45
)
