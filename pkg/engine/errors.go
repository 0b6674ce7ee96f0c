package engine

import (
	"errors"
	"fmt"

	"github.com/aeolun/tower/pkg/client"
)

var (
	// ErrInvalidAddress means the address was rejected locally; no network
	// call was made
	ErrInvalidAddress = client.ErrInvalidAddress

	ErrConnection        = errors.New("connection failed")
	ErrFetch             = errors.New("fetch failed")
	ErrSend              = errors.New("send failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSendInFlight      = errors.New("a send is already in flight")
	ErrNotConnected      = errors.New("not connected")
	ErrNotConfirmed      = errors.New("disconnect not confirmed")
	ErrShutdown          = errors.New("controller shut down")
)

// ConnectionError is returned when opening a session fails. Params are
// the original connect parameters so the attempt can be retried.
type ConnectionError struct {
	Params ConnectParams
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Params.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// FetchError is a transient failure of one sync tick
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch messages: %v", e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// SendError is returned when the remote send fails. Text is the input as
// the user typed it, kept for retry.
type SendError struct {
	Text string
	Err  error
}

func (e *SendError) Error() string { return fmt.Sprintf("send message: %v", e.Err) }

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool { return target == ErrSend }
