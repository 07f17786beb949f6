package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrBindFailed       = fmt.Errorf("failed to bind callback listener")
	ErrAuthInProgress   = fmt.Errorf("another authorization is in progress")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlayback           = fmt.Errorf("playback request failed")
	ErrNoDevice           = fmt.Errorf("no playback device selected")

	// Session errors
	ErrInvalidState  = fmt.Errorf("invalid session state")
	ErrSessionClosed = fmt.Errorf("session closed")

	// Storage errors
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrUnknownStore     = fmt.Errorf("unknown store type")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
