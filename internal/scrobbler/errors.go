package scrobbler

import "errors"

// Errors surfaced by the scrobble engine.
var (
	// ErrConfiguration is returned by New when the API configuration or
	// engine limits are invalid. It is never retried.
	ErrConfiguration = errors.New("scrobbler: invalid configuration")

	// ErrAuthExpired is returned by a Client when the session is no longer
	// accepted and must be renewed with Reauthenticate.
	ErrAuthExpired = errors.New("scrobbler: authentication expired")

	// ErrNoCredentials is returned by Reauthenticate when no username and
	// password are configured.
	ErrNoCredentials = errors.New("scrobbler: no credentials for re-authentication")

	ErrInvalidTrack    = errors.New("scrobbler: invalid track")
	ErrClosed          = errors.New("scrobbler: closed")
	ErrBusy            = errors.New("scrobbler: event buffer full")
	ErrDuplicate       = errors.New("scrobbler: duplicate scrobble")
	ErrQueueFull       = errors.New("scrobbler: queue full")
	ErrUnknownRecord   = errors.New("scrobbler: unknown record")
	ErrShutdownTimeout = errors.New("scrobbler: shutdown timed out")
)
