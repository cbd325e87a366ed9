package session

import (
	"errors"
	"fmt"
)

var (
	ErrUnreachable        = errors.New("server unreachable")
	ErrSocketUnreachable  = errors.New("websocket unreachable")
	ErrRegistrationFailed = errors.New("registration failed")
	ErrMalformedMessage   = errors.New("malformed inbound message")
	ErrAlreadyConnecting  = errors.New("session already connected or connecting")
	ErrAborted            = errors.New("connect aborted")
)

type Stage string

const (
	StageHealth Stage = "health"
	StageSocket Stage = "socket"
)

// ConnectError is returned by Connect once every candidate for a stage has
// failed. It is never retried automatically.
type ConnectError struct {
	Session string
	Stage   Stage
	Tried   int
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s stage failed after %d candidates: %v", e.Session, e.Stage, e.Tried, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
