package auth

import "errors"

var (
	ErrAPIKeyRequired   = errors.New("API key is required")
	ErrMalformedAPIKey  = errors.New("Malformed API key")
	ErrVerifierInactive = errors.New("Verifier account is inactive")
	ErrNameRequired     = errors.New("Name is required")
)
