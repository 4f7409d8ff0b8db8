package pipeline

import (
	"errors"
	"fmt"

	"leafscan/internal/opencv/memory"
)

var (
	// ErrImageUnreadable means the supplied bytes do not decode to an image.
	ErrImageUnreadable = errors.New("cannot read image")

	// ErrUnavailable means the model bundle was not loaded and no inference can run.
	ErrUnavailable = errors.New("inference unavailable")

	// ErrBusy means the Mat budget is exhausted. The request can be retried.
	ErrBusy = memory.ErrBudgetExceeded
)

type ValidationError struct {
	Context string
	Field   string
	Value   interface{}
	Reason  string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s value %v - %s", ve.Context, ve.Field, ve.Value, ve.Reason)
}
