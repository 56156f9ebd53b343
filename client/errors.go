package client

import (
	"fmt"
	"strings"
)

// NetworkError means a party could not be reached or the response could not
// be read.
type NetworkError struct {
	Party string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("party %s unreachable: %v", e.Party, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError is a non-2xx answer from a party.
type ProtocolError struct {
	Party      string
	StatusCode int
	Detail     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("party %s rejected the call (%d): %s", e.Party, e.StatusCode, e.Detail)
}

// PartyFailure pairs a party with its error.
type PartyFailure struct {
	Party string
	Err   error
}

// FanOutError reports every party that failed one fan-out call.
type FanOutError struct {
	Total    int
	Failures []PartyFailure
}

func (e *FanOutError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Err.Error()
	}
	return fmt.Sprintf("%d of %d parties failed: %s", len(e.Failures), e.Total, strings.Join(msgs, "; "))
}

// Unwrap exposes the per-party errors to errors.Is and errors.As.
func (e *FanOutError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
