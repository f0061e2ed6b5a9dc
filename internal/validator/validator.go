package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"marketplace/internal/apperrors"
	"marketplace/internal/money"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidIFSC          = errors.New("invalid IFSC code")
	ErrInvalidAccountNumber = errors.New("account number must be 9 to 18 digits")
)

var (
	ifscRegex          = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	accountNumberRegex = regexp.MustCompile(`^[0-9]{9,18}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("ifsc", func(fl validator.FieldLevel) bool {
		return ValidateIFSC(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("bank_account", func(fl validator.FieldLevel) bool {
		return ValidateAccountNumber(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := money.ParsePositiveMinor(fl.Field().String())
		return err == nil
	})
	return v
}

func ValidateIFSC(code string) error {
	if !ifscRegex.MatchString(code) {
		return ErrInvalidIFSC
	}
	return nil
}

func ValidateAccountNumber(number string) error {
	if !accountNumberRegex.MatchString(number) {
		return ErrInvalidAccountNumber
	}
	return nil
}

// MaskAccountNumber keeps the last four digits, e.g. "XXXXXX1234".
func MaskAccountNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return "XXXXXX" + number[len(number)-4:]
}

// DecodeJSONBody decodes a single JSON object into dest, rejecting unknown
// fields, then runs struct validation.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, err, "invalid request body").WithDetail("error", err.Error())
	}
	return Struct(dest)
}

func Struct(value any) error {
	if err := validate.Struct(value); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *apperrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		appErr := apperrors.New(apperrors.CodeValidation, "validation failed")
		for _, fieldErr := range errs {
			appErr.WithDetail(fieldErr.Field(), validationMessage(fieldErr))
		}
		return appErr
	}
	return apperrors.Wrap(apperrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "ifsc":
		return ErrInvalidIFSC.Error()
	case "bank_account":
		return ErrInvalidAccountNumber.Error()
	case "amount":
		return "must be a positive amount with at most two decimals"
	}
	return "is invalid"
}

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.New(apperrors.CodeValidation, "query parameter must be numeric").WithDetail("field", key)
	}
	if value < min || value > max {
		return 0, apperrors.New(apperrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
