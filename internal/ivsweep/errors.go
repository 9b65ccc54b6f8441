package ivsweep

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is matched by every error that rejects a sweep before
// any analysis can run.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError describes why a sweep could not be conditioned.
type InsufficientDataError struct {
	Points int
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data (%d points): %s", e.Points, e.Reason)
}

// Is reports ErrInsufficientData as the sentinel for this error.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

func insufficient(points int, format string, args ...interface{}) error {
	return &InsufficientDataError{Points: points, Reason: fmt.Sprintf(format, args...)}
}
