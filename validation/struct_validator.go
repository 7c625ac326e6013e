package validation

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/jae-editor/operate/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// getValidator returns the singleton validator instance.
func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report option names as the user wrote them.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "-" || name == "" {
				return toSnakeCase(fld.Name)
			}
			return name
		})
	})
	return validate
}

// Struct validates s using its struct tags and reports failures as a
// CONFIG_VALIDATION error attributed to owner.
func Struct(owner string, s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.ConfigValidation(owner, err.Error())
	}

	v := New(owner)
	for _, e := range validationErrors {
		v.AddError(fieldPath(e), formatValidationError(e))
	}
	return v.Err()
}

// Decode converts options into out (a pointer to an options struct) and
// validates the result. Unknown keys are rejected; string values are coerced
// to the target type where unambiguous ("3" → 3, "true" → true, "5s" → 5s).
func Decode(owner string, options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Internal(err)
	}
	if options == nil {
		options = map[string]any{}
	}
	if err := dec.Decode(options); err != nil {
		return errors.ConfigValidation(owner, err.Error()).WithCause(err)
	}
	return Struct(owner, out)
}

// fieldPath returns the option path of a failed field without the
// top-level struct name.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + requiredIfCondition(e.Param())
	case "required_without":
		return "is required unless " + toSnakeCase(e.Param()) + " is set"
	case "excluded_with":
		return "cannot be combined with " + toSnakeCase(e.Param())
	case "min":
		if e.Kind() == reflect.Slice || e.Kind() == reflect.Map {
			return "must have at least " + e.Param() + " entries"
		}
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be " + e.Param() + " or more"
	case "lte":
		return "must be " + e.Param() + " or less"
	case "oneof":
		return "must be one of: " + e.Param()
	case "len":
		return "must have length " + e.Param()
	case "hostname_port":
		return "must be host:port"
	default:
		return "is invalid"
	}
}

// requiredIfCondition renders a required_if param ("Fn rename") as "fn is rename".
func requiredIfCondition(param string) string {
	parts := strings.Fields(param)
	if len(parts) < 2 {
		return param
	}
	return toSnakeCase(parts[0]) + " is " + strings.Join(parts[1:], " ")
}

// toSnakeCase converts a field name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		if r >= 'A' && r <= 'Z' {
			result.WriteRune(r + 32) // lowercase
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
