package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/jae-editor/operate/errors"
)

type sampleOptions struct {
	Fn      string        `mapstructure:"fn" validate:"required,oneof=rename drop"`
	From    string        `mapstructure:"from" validate:"required_if=Fn rename"`
	Fields  []string      `mapstructure:"fields" validate:"required_if=Fn drop"`
	Width   int           `mapstructure:"width" validate:"gte=0"`
	Grace   time.Duration `mapstructure:"grace_period"`
	Enabled bool          `mapstructure:"enabled"`
}

func TestDecode_Valid(t *testing.T) {
	var opts sampleOptions
	err := Decode("map", map[string]any{
		"fn":           "rename",
		"from":         "a",
		"width":        "4",
		"grace_period": "2s",
		"enabled":      "true",
	}, &opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Width != 4 {
		t.Errorf("expected width 4, got %d", opts.Width)
	}
	if opts.Grace != 2*time.Second {
		t.Errorf("expected 2s, got %v", opts.Grace)
	}
	if !opts.Enabled {
		t.Error("expected enabled=true")
	}
}

func TestDecode_SliceFromString(t *testing.T) {
	var opts sampleOptions
	if err := Decode("map", map[string]any{"fn": "drop", "fields": "a,b"}, &opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts.Fields) != 2 || opts.Fields[0] != "a" || opts.Fields[1] != "b" {
		t.Errorf("expected [a b], got %v", opts.Fields)
	}
}

func TestDecode_UnknownKey(t *testing.T) {
	var opts sampleOptions
	err := Decode("map", map[string]any{"fn": "drop", "fields": []string{"x"}, "colour": "red"}, &opts)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !errors.HasCode(err, errors.ErrCodeConfigValidation) {
		t.Errorf("expected CONFIG_VALIDATION, got %v", err)
	}
	if !strings.Contains(err.Error(), "colour") {
		t.Errorf("expected offending key in message, got %q", err.Error())
	}
}

func TestDecode_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		want    string
	}{
		{"missing fn", map[string]any{}, "fn: is required"},
		{"bad fn", map[string]any{"fn": "explode"}, "fn: must be one of: rename drop"},
		{"rename without from", map[string]any{"fn": "rename"}, "from: is required when fn is rename"},
		{"negative width", map[string]any{"fn": "drop", "fields": "a", "width": -1}, "width: must be 0 or more"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var opts sampleOptions
			err := Decode("map", tc.options, &opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected %q in %q", tc.want, err.Error())
			}
			appErr, ok := errors.AsAppError(err)
			if !ok || appErr.Operator != "map" {
				t.Errorf("expected error attributed to map, got %#v", err)
			}
		})
	}
}

func TestDecode_NilOptions(t *testing.T) {
	type empty struct {
		Flag bool `mapstructure:"flag"`
	}
	var opts empty
	if err := Decode("x", nil, &opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidator_Collects(t *testing.T) {
	v := New("frames")
	v.Check(false, "width", "must be positive").
		OneOf("endian", "middle", []string{"big", "little"}).
		Range("prefix_bytes", 3, 1, 8)
	if re := v.Regexp("pattern", "(unclosed"); re != nil {
		t.Error("expected nil regexp for invalid pattern")
	}
	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %v", v.Errors())
	}
	err := v.Err()
	if err == nil || !strings.Contains(err.Error(), "endian: must be one of: big, little") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestValidator_NoErrors(t *testing.T) {
	v := New("lines").Required("delimiter", "\n")
	if v.Err() != nil {
		t.Errorf("expected nil error, got %v", v.Err())
	}
	if re := v.Regexp("pattern", `^\d+$`); re == nil || !re.MatchString("42") {
		t.Error("expected compiled regexp")
	}
}

func TestValidator_Merge(t *testing.T) {
	inner := New("inner").Required("a", "").Err()
	v := New("outer").Merge("nested", inner).Merge("other", errors.Internal(nil))
	if len(v.Errors()) != 2 {
		t.Fatalf("expected 2 merged errors, got %v", v.Errors())
	}
	if v.Errors()[0].Field != "a" || v.Errors()[1].Field != "other" {
		t.Errorf("unexpected merged fields %v", v.Errors())
	}
}

func TestToSnakeCase(t *testing.T) {
	if got := toSnakeCase("PrefixBytes"); got != "prefix_bytes" {
		t.Errorf("expected prefix_bytes, got %q", got)
	}
}
