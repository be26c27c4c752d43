package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 6
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// User is a registered account. The password hash is never serialized.
type User struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	RefreshTokenHash *string   `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TokenPair is returned on register, login and refresh
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// FieldError names one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every rejected field of a request
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	return v[0].Message
}

// RegisterInput is the registration payload
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims the username, lower-cases the email and validates all fields
func (in RegisterInput) Normalize() (RegisterInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)

	var errs ValidationErrors
	switch {
	case in.Username == "":
		errs = append(errs, FieldError{"username", "Username is required"})
	case len(in.Username) < MinUsernameLength || len(in.Username) > MaxUsernameLength:
		errs = append(errs, FieldError{"username", fmt.Sprintf("Username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)})
	case !usernamePattern.MatchString(in.Username):
		errs = append(errs, FieldError{"username", "Username can only contain letters, numbers, and underscores"})
	}
	if fe := validateEmail(in.Email); fe != nil {
		errs = append(errs, *fe)
	}
	switch {
	case in.Password == "":
		errs = append(errs, FieldError{"password", "Password is required"})
	case len(in.Password) < MinPasswordLength:
		errs = append(errs, FieldError{"password", fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength)})
	}

	if len(errs) > 0 {
		return in, errs
	}
	return in, nil
}

// LoginInput is the login payload
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize lower-cases the email and checks both fields are present
func (in LoginInput) Normalize() (LoginInput, error) {
	in.Email = NormalizeEmail(in.Email)

	var errs ValidationErrors
	if fe := validateEmail(in.Email); fe != nil {
		errs = append(errs, *fe)
	}
	if in.Password == "" {
		errs = append(errs, FieldError{"password", "Password is required"})
	}
	if len(errs) > 0 {
		return in, errs
	}
	return in, nil
}

// NormalizeEmail trims and lower-cases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) *FieldError {
	if email == "" {
		return &FieldError{"email", "Email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return &FieldError{"email", "Please provide a valid email address"}
	}
	return nil
}
