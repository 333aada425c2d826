package classify

import "errors"

var (
	// ErrSubmission is returned when the service rejects an upload or answers
	// without a video id.
	ErrSubmission = errors.New("classification submission rejected")
	// ErrMalformedResponse is returned when a status payload lacks the fields
	// aggregation depends on.
	ErrMalformedResponse = errors.New("malformed classification response")
	// ErrUnauthorized is returned when the token endpoint refuses the client credentials.
	ErrUnauthorized = errors.New("classifier credentials rejected")
)
