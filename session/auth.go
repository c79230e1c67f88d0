package session

import (
	"fmt"
	"strings"
)

// Credentials is the email/password pair submitted at login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration carries the sign-up form fields.
type Registration struct {
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Phone       string      `json:"phone,omitempty"`
	AccountType AccountType `json:"accountType"`
	// CoachCode optionally links a new student to an existing coach.
	CoachCode string `json:"coachCode,omitempty"`
}

// AuthResult is the backend's login/registration response.
type AuthResult struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	AccountType  AccountType `json:"accountType"`
	Profile      Profile     `json:"profile"`
}

// FromAuthResult derives the role and builds a complete session.
func FromAuthResult(res *AuthResult) (*Session, error) {
	if res == nil {
		return nil, ErrIncomplete
	}
	role, err := RoleFromAccountType(AccountType(strings.TrimSpace(string(res.AccountType))))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, res.AccountType)
	}
	return New(res.Token, res.RefreshToken, role, res.Profile)
}
