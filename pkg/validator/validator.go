// Package validator wraps go-playground/validator with JSON field names and
// messages the storefront UI can show next to inputs.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// ErrEmptyBody is returned by DecodeAndValidate when the body is missing.
var ErrEmptyBody = errors.New("request body is empty")

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		return f.Kind() != reflect.String || strings.TrimSpace(f.String()) != ""
	})
	return v
}

// Validate checks s against its validate tags.
func Validate(s any) error {
	return wrap(validate.Struct(s))
}

// Var checks a single value, e.g. Var(email, "required,email").
func Var(field any, tag string) error {
	return wrap(validate.Var(field, tag))
}

func wrap(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return &ValidationError{Errors: ve}
	}
	return err
}

// ValidationError carries one message per failing field.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Field() == "" {
			msgs = append(msgs, "value "+message(fe))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", fe.Field(), message(fe)))
	}
	return strings.Join(msgs, "; ")
}

// Fields maps JSON field names to messages.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[fe.Field()] = message(fe)
	}
	return fields
}

var fixedMessages = map[string]string{
	"required":         "is required",
	"notblank":         "must not be blank",
	"email":            "must be a valid email address",
	"e164":             "must be a phone number in international format",
	"iso3166_1_alpha2": "must be a two-letter country code",
	"iso4217":          "must be a three-letter currency code",
	"url":              "must be a valid URL",
}

func message(fe validator.FieldError) string {
	if msg, ok := fixedMessages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		return fmt.Sprintf("must be %s %s%s", bound, fe.Param(), unit(fe.Kind()))
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "eqfield":
		return "must match " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

func unit(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return " items"
	default:
		return ""
	}
}

// DecodeAndValidate decodes a JSON body of at most MaxBodyBytes into dst and
// validates it.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return Validate(dst)
}
