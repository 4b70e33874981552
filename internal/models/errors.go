package models

import "errors"

// Errors returned by the external service clients. Callers classify failures
// with errors.Is.
var (
	ErrMissingImage       = errors.New("both front and back images are required")
	ErrNoCredentials      = errors.New("storage credentials rejected or missing")
	ErrStorage            = errors.New("object storage error")
	ErrOCRFailure         = errors.New("text recognition failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrMalformedOutput    = errors.New("model output is not a valid record")
)
