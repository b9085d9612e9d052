package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = func() *validator.Validate {
	v := validator.New()
	// report fields by their json name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}()

// messages renders a validator tag; %s receives the tag parameter.
var messages = map[string]string{
	"required":         "is required",
	"min":              "must be at least %s",
	"gte":              "must be at least %s",
	"max":              "must be at most %s",
	"lte":              "must be at most %s",
	"gt":               "must be greater than %s",
	"email":            "must be a valid email",
	"url":              "must be a valid url",
	"oneof":            "must be one of [%s]",
	"required_without": "is required when %s is missing",
	"excluded_with":    "cannot be combined with %s",
	"dive":             "contains an invalid item",
}

// DecodeJSONBody decodes a single JSON document into dest, rejecting unknown
// fields, then runs struct validation.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large")
	}
	return Struct(dest)
}

// Struct runs struct-tag validation outside of request decoding.
func Struct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func describe(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

// fieldPath drops the root struct name so nested items read as "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

// HTTPURL reports whether raw is an absolute http or https URL with a host.
func HTTPURL(raw string) bool {
	return validate.Var(raw, "required,http_url") == nil
}
