package session

import (
	"errors"
	"strings"
)

var (
	// ErrIncomplete is returned when a session is missing a required field.
	ErrIncomplete = errors.New("session incomplete")
	// ErrUnknownRole is returned when a role value is not student or coach.
	ErrUnknownRole = errors.New("unknown role")
	// ErrUnknownAccountType is returned when the backend reports an account type
	// that has no role mapping.
	ErrUnknownAccountType = errors.New("unknown account type")
)

// Role is the client-side capability set of a signed-in user.
type Role string

const (
	// RoleStudent is a user following workouts prescribed by a coach.
	RoleStudent Role = "student"
	// RoleCoach is a user prescribing workouts to students.
	RoleCoach Role = "coach"
)

// Valid reports whether r is one of the two recognized roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleCoach
}

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts exactly "student" or "coach".
func ParseRole(v string) (Role, error) {
	r := Role(v)
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}

// AccountType is the account indicator returned by the backend.
type AccountType string

const (
	AccountTypeStudent         AccountType = "STUDENT"
	AccountTypePersonalTrainer AccountType = "PERSONAL_TRAINER"
)

// RoleFromAccountType maps a backend account type to a client role.
func RoleFromAccountType(t AccountType) (Role, error) {
	switch t {
	case AccountTypeStudent:
		return RoleStudent, nil
	case AccountTypePersonalTrainer:
		return RoleCoach, nil
	default:
		return "", ErrUnknownAccountType
	}
}

// AccountTypeFromRole is the inverse of RoleFromAccountType.
func AccountTypeFromRole(r Role) (AccountType, error) {
	switch r {
	case RoleStudent:
		return AccountTypeStudent, nil
	case RoleCoach:
		return AccountTypePersonalTrainer, nil
	default:
		return "", ErrUnknownRole
	}
}

// Profile is the user snapshot kept alongside the tokens.
type Profile struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Email     string `json:"email" yaml:"email"`
	Phone     string `json:"phone,omitempty" yaml:"phone,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty"`
	// CoachID links a student to their coach. Empty for coaches.
	CoachID string `json:"coachId,omitempty" yaml:"coachId,omitempty"`
}

// Session is the authenticated identity bundle.
//
// Session values are built by [New] or validated with [Session.Validate] and then
// treated as immutable.
type Session struct {
	AccessToken  string
	RefreshToken string
	Role         Role
	Profile      Profile
}

// New builds a complete session or fails.
func New(accessToken, refreshToken string, role Role, profile Profile) (*Session, error) {
	s := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Role:         role,
		Profile:      profile,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports whether every required field is populated.
func (s *Session) Validate() error {
	if s == nil {
		return ErrIncomplete
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return ErrIncomplete
	}
	if !s.Role.Valid() {
		return ErrUnknownRole
	}
	if strings.TrimSpace(s.Profile.ID) == "" {
		return ErrIncomplete
	}
	return nil
}

// HasRefreshToken reports whether the backend issued a refresh token.
func (s *Session) HasRefreshToken() bool {
	return s != nil && s.RefreshToken != ""
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
