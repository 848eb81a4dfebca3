package models

import "time"

// ProcessingTimings carries per-stage durations of one pipeline run for
// debug-level telemetry.
type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Encode      time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Classify    time.Duration
	Total       time.Duration
}
