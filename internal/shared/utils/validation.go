package utils

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"meshbridge/internal/shared/constants"
	"meshbridge/internal/shared/errors"
)

var validate *validator.Validate

// init initializes the validator
func init() {
	validate = validator.New()

	// Use JSON tag names for validation errors
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateStruct validates a struct and returns a user-friendly error
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return errors.NewValidationError("Validation failed", err.Error())
	}

	var errorMessages []string
	for _, fieldError := range validationErrors {
		errorMessages = append(errorMessages, getFieldErrorMessage(fieldError))
	}

	return errors.NewValidationError(
		"Validation failed",
		strings.Join(errorMessages, "; "),
	)
}

// getFieldErrorMessage returns a user-friendly error message for a field validation error
func getFieldErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.Tag()
	param := fe.Param()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, param)
	case "hexadecimal":
		return fmt.Sprintf("%s must be a hexadecimal string", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed validation for '%s'", field, tag)
	}
}

// ValidatePublicKey enforces the canonical node key shape: exactly 64
// lowercase hex characters. Uppercase input is the caller's problem; use
// NormalizePrefix first when accepting user input.
func ValidatePublicKey(key string) error {
	if len(key) != constants.PublicKeyLength {
		return errors.NewValidationError(
			"invalid public key",
			fmt.Sprintf("expected %d hex characters, got %d", constants.PublicKeyLength, len(key)),
		)
	}
	if !IsLowerHex(key) {
		return errors.NewValidationError("invalid public key", "must be lowercase hexadecimal")
	}
	return nil
}

// NormalizePrefix lowercases a key prefix and validates its shape: length
// 2..64, hex charset only.
func NormalizePrefix(prefix string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if len(p) < constants.PrefixMinLength || len(p) > constants.PublicKeyLength {
		return "", errors.NewValidationError(
			"invalid key prefix",
			fmt.Sprintf("length must be %d..%d hex characters, got %d", constants.PrefixMinLength, constants.PublicKeyLength, len(p)),
		)
	}
	if !IsLowerHex(p) {
		return "", errors.NewValidationError("invalid key prefix", "must be hexadecimal")
	}
	return p, nil
}

// ValidateCoordinate range-checks a latitude/longitude pair.
func ValidateCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return errors.NewValidationError("invalid coordinate", fmt.Sprintf("latitude %v out of range [-90, 90]", lat))
	}
	if lon < -180 || lon > 180 {
		return errors.NewValidationError("invalid coordinate", fmt.Sprintf("longitude %v out of range [-180, 180]", lon))
	}
	return nil
}

// IsLowerHex reports whether s is non-empty and contains only [0-9a-f].
func IsLowerHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
