package tts

import "errors"

var (
	// ErrDecode is returned when an inference response does not contain an
	// audio URL in any known shape.
	ErrDecode = errors.New("unexpected inference result")

	// ErrNotConfigured is returned when no inference server URL is set.
	ErrNotConfigured = errors.New("inference server url not set")

	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrServiceClosed is returned by operations on a closed service.
	ErrServiceClosed = errors.New("tts service is closed")
)
