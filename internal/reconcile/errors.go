package reconcile

import "errors"

// Domain errors for status polling.
var (
	// ErrUnreachable is returned when a controller did not answer with 200.
	ErrUnreachable = errors.New("reconcile: controller unreachable")

	// ErrMalformedResponse is returned when a status reply is not a JSON object.
	ErrMalformedResponse = errors.New("reconcile: malformed status response")
)
