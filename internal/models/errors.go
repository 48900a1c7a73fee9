package models

import "errors"

// Failure kinds of a chat request. Callers classify with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrFeatureDisabled   = errors.New("AI assistant is disabled")
	ErrConfiguration     = errors.New("gemini API key not configured")
	ErrUpstream          = errors.New("gemini API request failed")
	ErrSourceUnavailable = errors.New("source unavailable")
)
