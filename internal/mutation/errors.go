package mutation

import "fmt"

// AppError wraps a message raised by a custom mutator: non-fatal to the
// pipeline, terminal for the specific mutation (spec §7 "Application
// errors").
type AppError struct {
	Message string
	Details interface{}
}

func (e *AppError) Error() string { return e.Message }

// ProtocolError is a fatal, typed protocol failure (spec §7 "Protocol
// errors"): malformed messages, version mismatches, push-endpoint
// failures. The raw wire code is preserved even when unrecognized.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("protocol error: %s", e.Code)
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Code, e.Message)
}

// OutOfOrderError is the oooMutation taxonomy: fatal, since it means the
// server observed a mutation ID ordering the client's state can't explain.
type OutOfOrderError struct {
	Message string
}

func (e *OutOfOrderError) Error() string { return "out-of-order mutation: " + e.Message }
