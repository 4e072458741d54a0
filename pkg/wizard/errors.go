package wizard

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed on
	// the current step.
	ErrInvalidTransition = errors.New("wizard: invalid transition")

	// ErrBusy is returned when a recording or upload in flight prevents the
	// operation.
	ErrBusy = errors.New("wizard: busy")

	// ErrNoRecording is returned when an operation needs a finalized
	// recording and there is none.
	ErrNoRecording = errors.New("wizard: no recording")
)

// ValidationError lists the metadata fields that are missing or that cannot
// be used as a path segment.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid path segment in: "+strings.Join(e.Invalid, ", "))
	}
	return "wizard: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the missing or invalid fields.
func (e *ValidationError) Has(field string) bool {
	return slices.Contains(e.Missing, field) || slices.Contains(e.Invalid, field)
}

func invalid(op string, from Step) error {
	return fmt.Errorf("%w: %s on %s step", ErrInvalidTransition, op, from)
}
