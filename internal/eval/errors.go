package eval

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferNotEmpty is returned by WarmEvaluate when the supplied buffer
	// already holds results. No inference runs.
	ErrBufferNotEmpty = errors.New("result buffer already filled with another value")

	// ErrBufferTimeout is returned when a buffer is not filled in time.
	ErrBufferTimeout = errors.New("result buffer not filled")

	// ErrUnknownEvaluation is returned by Run for an unsupported evaluation
	// option.
	ErrUnknownEvaluation = errors.New("undefined evaluation")
)

// UnsupportedArchitectureError is returned for a backbone other than vgg.
type UnsupportedArchitectureError struct {
	Backbone string
}

func (e *UnsupportedArchitectureError) Error() string {
	return fmt.Sprintf("undefined architecture %q", e.Backbone)
}
