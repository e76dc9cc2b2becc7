package features

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks
var (
	ErrUnreadableAudio  = errors.New("unreadable audio")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidShape     = errors.New("invalid shape")
)

// UnreadableAudioError reports a file that is missing, corrupt, in an
// unsupported codec, or that did not decode within its deadline
type UnreadableAudioError struct {
	Path  string
	Label string
	Err   error
}

func (e *UnreadableAudioError) Error() string {
	msg := fmt.Sprintf("unreadable audio %q", e.Path)
	if e.Label != "" {
		msg += fmt.Sprintf(" (label %s)", e.Label)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnreadableAudioError) Unwrap() error { return e.Err }

func (e *UnreadableAudioError) Is(target error) bool { return target == ErrUnreadableAudio }

// InvalidParameterError reports an out-of-range configuration value
type InvalidParameterError struct {
	Param  string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Param, e.Value, e.Reason)
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

// InvalidShapeError reports a degenerate matrix reaching the resizer
type InvalidShapeError struct {
	Rows int
	Cols int
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("invalid spectrogram shape %dx%d", e.Rows, e.Cols)
}

func (e *InvalidShapeError) Is(target error) bool { return target == ErrInvalidShape }

func invalidParam(param string, value any, format string, args ...any) error {
	return &InvalidParameterError{Param: param, Value: value, Reason: fmt.Sprintf(format, args...)}
}
