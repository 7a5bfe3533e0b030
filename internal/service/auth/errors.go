package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrWrongTokenType indicates a signed value was presented where a
	// different kind was expected, e.g. a state cookie as a bearer token.
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrInvalidStateCookie indicates the OAuth handshake cookie is missing,
	// malformed or not signed by this service.
	ErrInvalidStateCookie = errors.New("invalid handshake state cookie")
)
