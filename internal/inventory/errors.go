package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrMutationPending = errors.New("a mutation is already pending for this product")
	ErrStaleWrite      = errors.New("stale write rejected")
	ErrStopped         = errors.New("reconciler stopped")
	ErrInvalidProduct  = errors.New("invalid product")
)

// FetchError is returned when the initial product list cannot be loaded.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch products: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// StreamDecodeError marks a single malformed push message. The stream continues.
type StreamDecodeError struct {
	Source string
	Err    error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("decode %s message: %v", e.Source, e.Err)
}
func (e *StreamDecodeError) Unwrap() error { return e.Err }

// RemoteError wraps a failed backend call: transport error, non-2xx status or malformed body.
type RemoteError struct {
	Op         string
	ProductID  string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	msg := "remote " + e.Op
	if e.ProductID != "" {
		msg += " " + e.ProductID
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
