package session

import "errors"

var ErrInvalidTransition = errors.New("invalid state transition")

type State string

const (
	StateIdle             State = "idle"
	StateCheckingHealth   State = "checking_health"
	StateRegistering      State = "registering"
	StateConnectingSocket State = "connecting_socket"
	StateConnected        State = "connected"
	StateDisconnected     State = "disconnected"
	StateMock             State = "mock"
)

type EventType string

const (
	EvtConnect         EventType = "Connect"
	EvtConnectMock     EventType = "ConnectMock"
	EvtHealthOK        EventType = "HealthOK"
	EvtHealthFailed    EventType = "HealthFailed"
	EvtRegistered      EventType = "Registered" // also fired on fallback id
	EvtSocketOpen      EventType = "SocketOpen"
	EvtSocketExhausted EventType = "SocketExhausted"
	EvtClosed          EventType = "Closed"
)

/*
	Idle             -Connect->         CheckingHealth
	Idle             -ConnectMock->     Mock
	CheckingHealth   -HealthOK->        Registering
	CheckingHealth   -HealthFailed->    Disconnected
	Registering      -Registered->      ConnectingSocket
	ConnectingSocket -SocketOpen->      Connected
	ConnectingSocket -SocketExhausted-> Disconnected
	any              -Closed->          Disconnected

	Disconnected behaves like Idle for Connect/ConnectMock so retries are an
	explicit new connect, never an automatic loop.
*/

// Apply returns the state reached from s on ev, or ErrInvalidTransition.
func Apply(s State, ev EventType) (State, error) {
	if ev == EvtClosed {
		return StateDisconnected, nil
	}

	switch s {
	case StateIdle, StateDisconnected:
		switch ev {
		case EvtConnect:
			return StateCheckingHealth, nil
		case EvtConnectMock:
			return StateMock, nil
		}
	case StateCheckingHealth:
		switch ev {
		case EvtHealthOK:
			return StateRegistering, nil
		case EvtHealthFailed:
			return StateDisconnected, nil
		}
	case StateRegistering:
		if ev == EvtRegistered {
			return StateConnectingSocket, nil
		}
	case StateConnectingSocket:
		switch ev {
		case EvtSocketOpen:
			return StateConnected, nil
		case EvtSocketExhausted:
			return StateDisconnected, nil
		}
	}
	return s, ErrInvalidTransition
}

// Live reports whether heartbeats and inbound dispatch are allowed in s.
func (s State) Live() bool {
	return s == StateConnected || s == StateMock
}

// Connecting reports whether a connect attempt is between stages in s.
func (s State) Connecting() bool {
	return s == StateCheckingHealth || s == StateRegistering || s == StateConnectingSocket
}
