package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/mcoot/lazysignup-go/internal/model"
)

// Username and password policy
const (
	MaxUsernameLength = 150
	MinPasswordLength = 8
	// MaxPasswordLength is in bytes; bcrypt rejects longer input
	MaxPasswordLength = 72
)

// ValidationError reports a signup field that failed validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SignupInput is the data submitted on a signup or conversion form
type SignupInput struct {
	Username        string
	Password        string
	PasswordConfirm string
	Email           string
}

// Validate checks the input against the username and password policy.
// An empty PasswordConfirm is not compared.
func (in SignupInput) Validate() error {
	username := strings.TrimSpace(in.Username)
	switch {
	case username == "":
		return &ValidationError{Field: "username", Message: "required"}
	case len(username) > MaxUsernameLength:
		return &ValidationError{Field: "username", Message: fmt.Sprintf("at most %d characters", MaxUsernameLength)}
	case username != in.Username:
		return &ValidationError{Field: "username", Message: "must not have leading or trailing spaces"}
	}
	for _, r := range username {
		if !validUsernameRune(r) {
			return &ValidationError{Field: "username", Message: "letters, digits and @.+-_ only"}
		}
	}

	if len(in.Password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("at least %d characters", MinPasswordLength)}
	}
	if len(in.Password) > MaxPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("at most %d bytes", MaxPasswordLength)}
	}
	if in.PasswordConfirm != "" && in.PasswordConfirm != in.Password {
		return &ValidationError{Field: "password_confirm", Message: "passwords do not match"}
	}

	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return &ValidationError{Field: "email", Message: "invalid address"}
		}
	}
	return nil
}

func validUsernameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("@.+-_", r)
}

// Signup is a validated credential update for one user
type Signup struct {
	userID       model.UserID
	username     string
	email        string
	passwordHash string
}

// UserID returns the user the signup was validated for
func (s *Signup) UserID() model.UserID {
	return s.userID
}

// Apply sets the new username, password hash and email on user
func (s *Signup) Apply(user *model.User) error {
	if user.DisplayName == "" || user.DisplayName == user.Username {
		user.DisplayName = s.username
	}
	user.Username = s.username
	user.PasswordHash = s.passwordHash
	user.Email = s.email
	return nil
}
