package authclient

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	passwordLower  = regexp.MustCompile(`[a-z]`)
	passwordUpper  = regexp.MustCompile(`[A-Z]`)
	passwordDigit  = regexp.MustCompile(`\d`)
	passwordSymbol = regexp.MustCompile(`[@$!%*?&]`)
	passwordChars  = regexp.MustCompile(`^[A-Za-z\d@$!%*?&]+$`)
)

const minPasswordLength = 8

// FieldErrors maps a form field to what is wrong with it.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + fe[f]
	}
	return strings.Join(parts, "; ")
}

// ValidateCredentials checks a signup form before anything is sent. It
// returns nil or a FieldErrors keyed by "email" and "password".
func ValidateCredentials(email, password string) error {
	errs := FieldErrors{}

	switch {
	case email == "":
		errs["email"] = "Email is required"
	case !emailPattern.MatchString(email):
		errs["email"] = "Invalid email format"
	}

	switch {
	case password == "":
		errs["password"] = "Password is required"
	case len(password) < minPasswordLength:
		errs["password"] = "Password must be at least 8 characters long"
	case !passwordLower.MatchString(password),
		!passwordUpper.MatchString(password),
		!passwordDigit.MatchString(password),
		!passwordSymbol.MatchString(password),
		!passwordChars.MatchString(password):
		errs["password"] = "Password must contain at least one uppercase letter, lowercase letter, number and special character"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateLogin only requires both fields; the password policy is not
// re-checked at login.
func ValidateLogin(email, password string) error {
	errs := FieldErrors{}
	if email == "" {
		errs["email"] = "Email is required"
	}
	if password == "" {
		errs["password"] = "Password is required"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
