package fitAuth

import "github.com/MrEthical07/fitAuth/session"

// Status is the tag of a State.
type Status uint8

const (
	// StatusUnknown is the zero value: storage has not been consulted yet.
	StatusUnknown Status = iota
	// StatusLoading means a restore, login or registration is in flight.
	StatusLoading
	// StatusAuthenticated means a complete session is held.
	StatusAuthenticated
	// StatusUnauthenticated means no session is held.
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "invalid"
	}
}

// State is the auth state observed by the UI.
//
// The session payload exists only on the authenticated arm; the fields are
// unexported so no other combination can be built outside this package.
type State struct {
	status  Status
	session *session.Session
}

func loadingState() State {
	return State{status: StatusLoading}
}

func unauthenticatedState() State {
	return State{status: StatusUnauthenticated}
}

func authenticatedState(s *session.Session) State {
	return State{status: StatusAuthenticated, session: s.Clone()}
}

// Status returns the state tag.
func (s State) Status() Status {
	return s.status
}

// Session returns a copy of the held session when authenticated.
func (s State) Session() (*session.Session, bool) {
	if s.status != StatusAuthenticated || s.session == nil {
		return nil, false
	}
	return s.session.Clone(), true
}

// Role returns the held session's role when authenticated.
func (s State) Role() (session.Role, bool) {
	if s.status != StatusAuthenticated || s.session == nil {
		return "", false
	}
	return s.session.Role, true
}

// IsAuthenticated reports whether a session is held.
func (s State) IsAuthenticated() bool {
	return s.status == StatusAuthenticated
}

// IsSettled reports whether the state is authenticated or unauthenticated,
// i.e. safe to render something other than a loading screen.
func (s State) IsSettled() bool {
	return s.status == StatusAuthenticated || s.status == StatusUnauthenticated
}

func (s State) String() string {
	if s.status == StatusAuthenticated && s.session != nil {
		return s.status.String() + "(" + s.session.Role.String() + ")"
	}
	return s.status.String()
}
