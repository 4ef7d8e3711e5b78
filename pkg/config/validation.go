package config

import (
	"fmt"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	msg := "configuration validation failed:"
	for _, err := range e {
		msg += fmt.Sprintf("\n  - %s", err.Error())
	}
	return msg
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator is a function that validates configuration and returns errors
type Validator func() ValidationErrors

// Validate runs multiple validators and combines their errors
func Validate(validators ...Validator) error {
	var allErrors ValidationErrors
	for _, validator := range validators {
		allErrors = append(allErrors, validator()...)
	}
	if allErrors.HasErrors() {
		return allErrors
	}
	return nil
}

// ValidateDeviceLimit checks the gate settings.
func (c DeviceLimitConfig) ValidateDeviceLimit() ValidationErrors {
	var errs ValidationErrors
	if c.DefaultLimit < 1 {
		errs = append(errs, ValidationError{Field: "DEVICE_LIMIT_DEFAULT", Message: "must be at least 1"})
	}
	if c.OTPWindow <= 0 {
		errs = append(errs, ValidationError{Field: "DEVICE_LIMIT_OTP_WINDOW", Message: "must be positive"})
	}
	switch c.PersistenceType {
	case "inmem", "file", "postgres", "postgresql":
	default:
		errs = append(errs, ValidationError{Field: "DEVICE_LIMIT_PERSISTENCE", Message: fmt.Sprintf("unsupported value %q", c.PersistenceType)})
	}
	switch c.ChallengeStore {
	case "inmem", "file", "redis", "postgres", "postgresql":
	default:
		errs = append(errs, ValidationError{Field: "DEVICE_LIMIT_CHALLENGE_STORE", Message: fmt.Sprintf("unsupported value %q", c.ChallengeStore)})
	}
	if (c.PersistenceType == "file" || c.ChallengeStore == "file") && c.DataDir == "" {
		errs = append(errs, ValidationError{Field: "DEVICE_LIMIT_DATA_DIR", Message: "required for file persistence"})
	}
	return errs
}

// ValidateJWT rejects an empty signing secret.
func (j JWTConfig) ValidateJWT() ValidationErrors {
	if j.Secret == "" {
		return ValidationErrors{{Field: "JWT_SECRET", Message: "must not be empty"}}
	}
	return nil
}
