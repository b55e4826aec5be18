package logstream

import "fmt"

// SubscriptionError reports a rejected or malformed logsSubscribe
// handshake. The stream never reached the streaming state.
type SubscriptionError struct {
	Address string
	Code    int
	Message string
}

func (e *SubscriptionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("logs subscription for %s rejected: %s (code %d)", e.Address, e.Message, e.Code)
	}
	return fmt.Sprintf("logs subscription for %s rejected: %s", e.Address, e.Message)
}

// TransportError reports a connection or I/O failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("log stream %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
