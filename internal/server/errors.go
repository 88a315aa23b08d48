package server

import (
	"fmt"

	"fraud-detector/internal/common"
)

// InvalidInputError means the request carried no usable feature vector: the
// field was missing, null, empty or of the wrong length. It maps to 400.
type InvalidInputError struct {
	Expected int
	Got      int
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf(common.ErrMsgExpectedFormat, e.Expected)
}

// InternalError covers every other failure while handling a request. Cause is
// logged and never sent to the caller. It maps to 500.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string {
	if e.Cause == nil {
		return common.ErrMsgInternal
	}
	return "internal error: " + e.Cause.Error()
}

func (e *InternalError) Unwrap() error { return e.Cause }

func internalErr(format string, args ...any) *InternalError {
	return &InternalError{Cause: fmt.Errorf(format, args...)}
}
