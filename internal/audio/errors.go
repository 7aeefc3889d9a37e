package audio

import (
	"errors"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when bytes are neither WAV nor MP3.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrEmptyAudio is returned for a clip with no samples.
	ErrEmptyAudio = errors.New("empty audio data")

	// ErrDeviceUnavailable is returned when no output device can be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)

// PlaybackError collects the failures of every renderer that was tried.
type PlaybackError struct {
	Attempts map[string]error
	order    []string
}

func (e *PlaybackError) add(name string, err error) {
	if e.Attempts == nil {
		e.Attempts = make(map[string]error)
	}
	e.Attempts[name] = err
	e.order = append(e.order, name)
}

func (e *PlaybackError) Error() string {
	parts := make([]string, 0, len(e.order))
	for _, name := range e.order {
		parts = append(parts, name+": "+e.Attempts[name].Error())
	}
	return "playback failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual renderer errors to errors.Is/As.
func (e *PlaybackError) Unwrap() []error {
	errs := make([]error, 0, len(e.order))
	for _, name := range e.order {
		errs = append(errs, e.Attempts[name])
	}
	return errs
}
