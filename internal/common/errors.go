// Package common defines sentinel errors and constants shared by the token
// core and its transports. Callers should match errors with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorInvalidInput = errors.New("invalid input")

	// Refresh token lifecycle errors. All of them are terminal for the
	// presented credential: the caller has to log in again.
	ErrRefreshExpired  = errors.New("refresh token expired")
	ErrRefreshInvalid  = errors.New("refresh token invalid")
	ErrTokenUnreadable = errors.New("token unreadable")

	// ErrStoreUnavailable is the only transient failure. The request fails,
	// the caller may retry.
	ErrStoreUnavailable = errors.New("refresh token store unavailable")

	// Access token (gate) errors, produced when an authorization layer
	// demands an authenticated principal.
	ErrAuthRequired       = errors.New("authentication required")
	ErrAccessTokenExpired = errors.New("access token expired")
	ErrAccessTokenInvalid = errors.New("access token invalid")
	ErrWrongTokenType     = errors.New("wrong token type")
)
