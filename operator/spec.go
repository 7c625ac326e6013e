package operator

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"

	"golang.org/x/crypto/blake2b"

	apperrors "github.com/jae-editor/operate/errors"
)

// Spec is the user-facing description of one stage.
type Spec struct {
	Kind    Kind           `json:"kind" yaml:"kind"`
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Label returns the display name of the stage, falling back to its kind.
func (s Spec) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}

// Fingerprint identifies a stage configuration. Two specs with the same kind
// and options have the same fingerprint regardless of option order or name.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:8]) }

// Fingerprint hashes the kind and options of s.
func (s Spec) Fingerprint() Fingerprint {
	// encoding/json sorts map keys, which makes the encoding canonical.
	b, err := json.Marshal(struct {
		Kind    Kind           `json:"kind"`
		Options map[string]any `json:"options"`
	}{s.Kind, s.Options})
	if err != nil {
		b = fmt.Appendf(nil, "%s:%v", s.Kind, s.Options)
	}
	return blake2b.Sum256(b)
}

// ParseSpec decodes a JSON stage description. Options may be given nested
// under "options" or inline next to "kind":
//
//	{"kind":"filter","options":{"expr":"len > 3"}}
//	{"kind":"filter","expr":"len > 3"}
func ParseSpec(data []byte) (Spec, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Spec{}, apperrors.ConfigValidation("", "invalid operator JSON").WithCause(err)
	}
	kind, _ := raw["kind"].(string)
	if kind == "" {
		return Spec{}, apperrors.ConfigValidation("", "kind: is required")
	}
	spec := Spec{Kind: Kind(kind), Options: map[string]any{}}
	if name, ok := raw["name"].(string); ok {
		spec.Name = name
	}
	if nested, ok := raw["options"].(map[string]any); ok {
		maps.Copy(spec.Options, nested)
	}
	for k, v := range raw {
		switch k {
		case "kind", "name", "options":
		default:
			spec.Options[k] = v
		}
	}
	return spec, nil
}
