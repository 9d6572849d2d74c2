package admin

import (
	"errors"
	"fmt"
	"time"
)

// TransportKind separates the ways an exchange can fail before a result code
// is available.
type TransportKind int

const (
	// Timeout: no response within the request timeout.
	Timeout TransportKind = iota
	// NotAvailable: the connection could not be established.
	NotAvailable
	// BadStatus: a non-200 answer or a body that is not a result envelope.
	BadStatus
)

func (k TransportKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case NotAvailable:
		return "not_available"
	case BadStatus:
		return "bad_status"
	default:
		return "unknown"
	}
}

type TransportError struct {
	Kind       TransportKind
	Action     string
	StatusCode int
	Body       string
	Timeout    time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case Timeout:
		return fmt.Sprintf("admin api does not respond to %s: timeout reached after %s", e.Action, e.Timeout)
	case NotAvailable:
		return fmt.Sprintf("admin api connection failed for %s: %v", e.Action, e.Err)
	default:
		if e.StatusCode != 0 && e.StatusCode != 200 {
			return fmt.Sprintf("admin api returned http status %d for %s: %s", e.StatusCode, e.Action, e.Body)
		}
		return fmt.Sprintf("admin api returned a malformed response for %s: %v", e.Action, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is an application-level failure: the admin API answered with a
// non-zero result.
type ProtocolError struct {
	Action   string
	Result   int
	Kind     Kind
	Message  string
	Cause    string
	Feedback Feedback
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("executing %s did not succeed: result: %d (%s), message: %s", e.Action, e.Result, e.Kind, e.Message)
	if e.Cause != "" {
		msg += ", caused by: " + e.Cause
	}
	return msg
}

// NotFullyRunningError is returned instead of an action-not-found result when
// the runtime reports a status other than running.
type NotFullyRunningError struct {
	Status string
	Action string
}

func (e *NotFullyRunningError) Error() string {
	return fmt.Sprintf("runtime is not fully running but reporting status %q: unable to execute action %s", e.Status, e.Action)
}

// CapabilityError reports that the runtime does not offer an action.
type CapabilityError struct {
	Action string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("action %s is not available in this runtime version", e.Action)
}

// KindOf returns the classified result of err when it is a ProtocolError.
func KindOf(err error) (Kind, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return KindUnknown, false
}

// IsTransport reports whether err is a TransportError of any kind.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
