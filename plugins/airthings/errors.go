package airthings

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCanceled is returned when the caller cancels a sync mid-pipeline.
var ErrCanceled = errors.New("airthings sync canceled")

// UnexpectedStatusError is a non-200 answer without a structured error body.
type UnexpectedStatusError struct {
	Status int
	Body   string
}

func (e UnexpectedStatusError) Error() string {
	return fmt.Sprintf("airthings api unexpected status %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// UnexpectedPayloadError is a 200 answer whose body could not be decoded.
type UnexpectedPayloadError struct {
	Path string
	Body string
	Err  error
}

func (e UnexpectedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("airthings api unexpected payload from %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("airthings api unexpected payload from %s", e.Path)
}

func (e UnexpectedPayloadError) Unwrap() error {
	return e.Err
}

// APIError carries the message of a structured server error, such as a rate
// limit rejection.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	return fmt.Sprintf("airthings api error %d: %s", e.Status, e.Message)
}
