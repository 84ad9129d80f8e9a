package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/haski/recengine/pkg/skincare"
)

// Decode unmarshals a JSON document into v. Type mismatches such as a
// string for a boolean flag become a *skincare.ValidationError naming the
// field; other syntax problems are a ValidationError on the body itself.
func Decode(data []byte, v interface{}) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return skincare.NewFieldError("body", "required", "request body is required")
	}
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		want := "a different type"
		if typeErr.Type != nil {
			want = typeErr.Type.String()
		}
		return skincare.NewFieldError(field, "type", fmt.Sprintf("%s must be %s, got %s", field, want, typeErr.Value))
	}
	return skincare.NewFieldError("body", "json", "malformed JSON: "+err.Error())
}

// Outcome is the metrics label for a request that ended with err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case skincare.IsValidationError(err):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
