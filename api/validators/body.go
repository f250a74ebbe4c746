package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// MaxBodyBytes caps request bodies; order payloads are a few lines each.
const MaxBodyBytes = 1 << 20

// DecodeJSONBody decodes exactly one strict JSON object into dest and runs
// struct validation. Unknown fields, trailing data and oversized bodies are
// rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes+1))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.InputOffset() > MaxBodyBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body too large")
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must hold a single JSON object")
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "dive":
		return "contains an invalid entry"
	}
	return "is invalid"
}
