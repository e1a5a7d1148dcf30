// Package validation binds request bodies and checks them with struct tags.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/rehab/clinic/internal/platform/errs"
	"github.com/rehab/clinic/internal/platform/lifecycle"
)

var (
	once     sync.Once
	validate *validator.Validate

	mu          sync.RWMutex
	tagMessages = map[string]string{}
)

// Validator returns the shared validator. Field names in errors are the json
// tag names.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("date", isDate)
		_ = validate.RegisterValidation("notblank", notBlank)
	})
	return validate
}

// RegisterStatus adds a tag that accepts exactly the statuses of m.
// Domain packages call it from init.
func RegisterStatus(tag string, m *lifecycle.Machine) {
	setMessage(tag, "must be one of: "+strings.Join(m.Statuses(), ", "))
	_ = Validator().RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return m.Valid(fl.Field().String())
	})
}

// RegisterOneOf adds a tag that accepts the given values.
func RegisterOneOf(tag string, values ...string) {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	setMessage(tag, "must be one of: "+strings.Join(values, ", "))
	_ = Validator().RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		_, ok := set[fl.Field().String()]
		return ok
	})
}

func setMessage(tag, msg string) {
	mu.Lock()
	tagMessages[tag] = msg
	mu.Unlock()
}

func isDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validatable is implemented by request payloads.
type Validatable interface {
	Validate() error
}

// CustomValidationError is a failure that struct tags cannot express.
type CustomValidationError struct {
	Field   string
	Message string
}

// CustomValidationErrors satisfies error so Validate can return it.
type CustomValidationErrors []CustomValidationError

func (c CustomValidationErrors) Error() string {
	return "Validation failed"
}

// Struct validates v with the shared validator.
func Struct(v interface{}) error {
	return Validator().Struct(v)
}

// BindAndValidate binds the request into payload and validates it. Failures
// come back as a 400 *errs.HTTPError.
func BindAndValidate(c echo.Context, payload Validatable) error {
	if err := c.Bind(payload); err != nil {
		return errs.NewBadRequest(bindMessage(err))
	}
	if err := payload.Validate(); err != nil {
		return ToHTTPError(err)
	}
	return nil
}

// ToHTTPError converts validator or custom errors into a 400 response.
// Other errors pass through.
func ToHTTPError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return errs.NewValidationError("Validation failed", fieldErrors(ve))
	}
	var ce CustomValidationErrors
	if errors.As(err, &ce) {
		out := make([]errs.FieldError, len(ce))
		for i, e := range ce {
			out[i] = errs.FieldError{Field: e.Field, Error: e.Message}
		}
		return errs.NewValidationError("Validation failed", out)
	}
	return err
}

var bindMessagePattern = regexp.MustCompile(`message=(.*?)(?:, internal=|$)`)

func bindMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok && m != "" {
			return m
		}
	}
	if m := bindMessagePattern.FindStringSubmatch(err.Error()); len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return "Invalid request body"
}

func fieldErrors(ve validator.ValidationErrors) []errs.FieldError {
	out := make([]errs.FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, errs.FieldError{Field: fieldPath(fe), Error: message(fe)})
	}
	return out
}

// fieldPath drops the top-level struct name: "createClientRequest.contacts.phone"
// becomes "contacts.phone".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with", "required_without", "notblank":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", fe.Param())
		}
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "date":
		return "must be a date in YYYY-MM-DD format"
	case "dive":
		return "some items are invalid"
	}
	mu.RLock()
	msg, ok := tagMessages[fe.Tag()]
	mu.RUnlock()
	if ok {
		return msg
	}
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}
