package classify

import (
	"fmt"
)

// Kind is the failure class of a classification request.
type Kind int

const (
	KindOther Kind = iota
	KindRateLimit
	KindTimeout
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	default:
		return "other"
	}
}

// APIError is returned once a request has failed for good.
type APIError struct {
	Kind     Kind
	Status   int // HTTP status of the last response, 0 if none
	Attempts int
	Err      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s error after %d attempt(s)", e.Kind, e.Attempts)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }
