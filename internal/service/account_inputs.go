package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72 // bcrypt input limit
	maxEmailLength    = 254
)

// RegistrationInput is the sign-up form.
type RegistrationInput struct {
	Email                string `json:"email" form:"email"`
	Password             string `json:"password" form:"password1"`
	PasswordConfirmation string `json:"password_confirmation" form:"password2"`
}

// Validate checks shape and password policy.
func (r RegistrationInput) Validate() error {
	email := strings.TrimSpace(r.Email)
	return validation.Errors{
		"email": validation.Validate(email,
			validation.Required,
			validation.Length(3, maxEmailLength),
			is.Email,
		),
		"password": validation.Validate(r.Password,
			validation.Required,
			validation.Length(minPasswordLength, 0),
			validation.By(withinBytes(maxPasswordBytes)),
			validation.By(notEntirelyNumeric),
			validation.By(notSimilarTo(email)),
		),
		"password_confirmation": validation.Validate(r.PasswordConfirmation,
			validation.Required,
			validation.By(equals(r.Password, "passwords do not match")),
		),
	}.Filter()
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate checks both fields are present.
func (l LoginInput) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Email, validation.Required, validation.Length(1, maxEmailLength)),
		validation.Field(&l.Password, validation.Required, validation.By(withinBytes(maxPasswordBytes))),
	)
}

// ResendInput asks for a fresh activation email.
type ResendInput struct {
	Email string `json:"email" form:"email"`
}

// Validate checks the email is well formed.
func (r ResendInput) Validate() error {
	return validation.Errors{
		"email": validation.Validate(strings.TrimSpace(r.Email), validation.Required, is.Email),
	}.Filter()
}

func notEntirelyNumeric(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return errors.New("password must not be entirely numeric")
}

// withinBytes limits the encoded size rather than the rune count.
func withinBytes(limit int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > limit {
			return fmt.Errorf("password must be at most %d bytes", limit)
		}
		return nil
	}
}

func notSimilarTo(email string) validation.RuleFunc {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	return func(value interface{}) error {
		s, _ := value.(string)
		if local != "" && strings.EqualFold(s, local) || strings.EqualFold(s, email) {
			return errors.New("password is too similar to the email address")
		}
		return nil
	}
}

func equals(expected, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != expected {
			return errors.New(message)
		}
		return nil
	}
}

// validationError converts ozzo errors into a VALIDATION_FAILED domain error
// with one message per field.
func validationError(message string, err error) error {
	details := map[string]any{}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for field, ferr := range fieldErrs {
			if ferr != nil {
				details[field] = ferr.Error()
			}
		}
	} else if err != nil {
		details["form"] = err.Error()
	}
	return apperrors.NewValidationError(message, details)
}
