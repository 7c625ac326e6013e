// Package validation decodes and validates operator options and engine
// configuration.
//
// Operator options arrive as a loosely typed map. Decode converts the map
// into an options struct with mapstructure, rejecting unknown keys, and then
// validates it with struct tags (go-playground/validator). Failures are
// reported as CONFIG_VALIDATION errors naming every offending field.
//
// # Struct Tag Validation
//
//	type lineOptions struct {
//	    Delimiter string `mapstructure:"delimiter" validate:"required"`
//	}
//	var opts lineOptions
//	err := validation.Decode("lines", spec.Options, &opts)
//
// # Programmatic Validation
//
//	v := validation.New("map")
//	v.Check(opts.Start <= opts.End, "end", "must not be before start")
//	err := v.Err()
package validation
