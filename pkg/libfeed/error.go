package libfeed

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidBody is returned when a response body is too short to hold an item document.
var ErrInvalidBody = errors.New("body too short to be an item")

// A FetchError is returned when a request to the feed fails.
// It covers transport failures, non-2xx responses and malformed bodies.
type FetchError struct {
	Op         string
	ID         int64
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Op
	if e.ID > 0 {
		msg = fmt.Sprintf("%s %d", msg, e.ID)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// A DecodeError is returned when a document does not match the item shape.
type DecodeError struct {
	ID  int64
	Err error
}

func (e *DecodeError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("decode item %d: %s", e.ID, e.Err)
	}
	return fmt.Sprintf("decode item: %s", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
