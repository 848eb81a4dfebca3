package models

import "errors"

// Error taxonomy shared across the pipeline. Per-frame occurrences of these
// are logged and skipped in live mode; in single-shot mode they propagate to
// the caller unchanged.
var (
	// ErrUnsupportedFormat: a frame's pixel buffer cannot be interpreted as
	// RGB or RGBA data.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrEmptyRegion: a crop degenerated to zero width or height after
	// clamping to frame bounds.
	ErrEmptyRegion = errors.New("empty crop region")

	// ErrModelNotLoaded: inference was invoked before the session finished
	// loading. Always fatal to the call.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrInferenceTimeout: the runtime did not answer within the configured
	// per-call interval.
	ErrInferenceTimeout = errors.New("inference timeout")

	// ErrInferenceFailure: the runtime returned malformed or absent output.
	ErrInferenceFailure = errors.New("inference failure")
)
