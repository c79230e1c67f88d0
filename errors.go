package fitAuth

import "errors"

var (
	// ErrBackendNotConfigured is returned by Login/Register when no auth backend is wired.
	ErrBackendNotConfigured = errors.New("auth backend not configured")
	// ErrSessionSuperseded is returned by an in-flight login, registration or
	// restore whose result was discarded because a logout ran meanwhile.
	ErrSessionSuperseded = errors.New("session superseded by logout")
	// ErrAlreadyWired is returned when a coordinator injection point is set twice.
	ErrAlreadyWired = errors.New("coordinator dependency already wired")
	// ErrNilDependency is returned when a nil dependency is injected.
	ErrNilDependency = errors.New("nil dependency")
	// ErrNavigationUnavailable is logged when neither a navigator nor a fallback
	// redirect is available during logout.
	ErrNavigationUnavailable = errors.New("navigation unavailable")
	// ErrBuilderUsed is returned by a second Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid config")
)
