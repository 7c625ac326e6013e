package operator

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

// Map functions.
const (
	fnRename   = "rename"
	fnDrop     = "drop"
	fnKeep     = "keep"
	fnSet      = "set"
	fnCoerce   = "coerce"
	fnSlice    = "slice"
	fnEncode   = "encode"
	fnDecode   = "decode"
	fnUpper    = "upper"
	fnLower    = "lower"
	fnTrim     = "trim"
	fnReplace  = "replace"
	fnEval     = "eval"
	fnToLine   = "to_line"
	fnToText   = "to_text"
	fnToStruct = "to_struct"
)

type mapOptions struct {
	Fn       string   `mapstructure:"fn" validate:"required,oneof=rename drop keep set coerce slice encode decode upper lower trim replace eval to_line to_text to_struct"`
	From     string   `mapstructure:"from" validate:"required_if=Fn rename"`
	To       string   `mapstructure:"to" validate:"required_if=Fn rename"`
	Fields   []string `mapstructure:"fields"`
	Field    string   `mapstructure:"field"`
	Value    any      `mapstructure:"value"`
	Type     string   `mapstructure:"type" validate:"omitempty,oneof=int float bool string"`
	Start    *int     `mapstructure:"start"`
	End      *int     `mapstructure:"end"`
	Codec    string   `mapstructure:"codec" validate:"omitempty,oneof=hex base64 base64url"`
	Pattern  string   `mapstructure:"pattern" validate:"required_if=Fn replace"`
	With     string   `mapstructure:"with"`
	Expr     string   `mapstructure:"expr" validate:"required_if=Fn eval"`
	Template string   `mapstructure:"template"`
}

// mapper rewrites one record at a time. A record the function cannot handle
// is passed through unchanged with an issue attached.
type mapper struct {
	base
	opts    mapOptions
	re      *regexp.Regexp
	program *vm.Program
	tmpl    *template.Template
	codec   codec
	apply   func(record.Record) (record.Record, error)
}

func newMap(spec Spec) (Operator, error) {
	opts := mapOptions{Codec: "hex"}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	m := &mapper{base: base{spec}, opts: opts, codec: codecs[opts.Codec]}
	v := validation.New(spec.Label())
	switch opts.Fn {
	case fnDrop, fnKeep:
		v.Check(len(opts.Fields) > 0, "fields", "is required when fn is "+opts.Fn)
	case fnSet:
		v.Required("field", opts.Field)
		v.Check(opts.Value != nil, "value", "is required when fn is set")
	case fnCoerce:
		v.Required("field", opts.Field).Required("type", opts.Type)
	case fnReplace:
		m.re = v.Regexp("pattern", opts.Pattern)
	case fnEval:
		v.Required("field", opts.Field)
		program, err := compileValue(opts.Expr)
		if err != nil {
			v.Check(false, "expr", err.Error())
		}
		m.program = program
	case fnToLine:
		if opts.Template != "" {
			tmpl, err := template.New(spec.Label()).Option("missingkey=zero").Parse(opts.Template)
			if err != nil {
				v.Check(false, "template", err.Error())
			}
			m.tmpl = tmpl
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	m.apply = m.function()
	return m, nil
}

func (m *mapper) Apply(env *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return perRecord(in, func(r record.Record) (record.Record, bool) {
		out, err := m.apply(r)
		if err != nil {
			return record.WithIssue(r, fmt.Sprintf("%s: %v", m.label(), err)), true
		}
		return out, true
	})
}

func (m *mapper) function() func(record.Record) (record.Record, error) {
	o := m.opts
	switch o.Fn {
	case fnRename:
		return structuredOnly(func(f *record.Fields) error {
			if !f.Rename(o.From, o.To) {
				return fmt.Errorf("no field %q", o.From)
			}
			return nil
		})
	case fnDrop:
		return structuredOnly(func(f *record.Fields) error {
			for _, name := range o.Fields {
				f.Delete(name)
			}
			return nil
		})
	case fnKeep:
		return structuredOnly(func(f *record.Fields) error {
			keep := make(map[string]bool, len(o.Fields))
			for _, name := range o.Fields {
				keep[name] = true
			}
			for _, name := range f.Keys() {
				if !keep[name] {
					f.Delete(name)
				}
			}
			return nil
		})
	case fnSet:
		return structuredOnly(func(f *record.Fields) error {
			f.Set(o.Field, o.Value)
			return nil
		})
	case fnCoerce:
		return structuredOnly(func(f *record.Fields) error {
			v, ok := f.Get(o.Field)
			if !ok {
				return fmt.Errorf("no field %q", o.Field)
			}
			c, err := record.Coerce(v, o.Type)
			if err != nil {
				return err
			}
			f.Set(o.Field, c)
			return nil
		})
	case fnEval:
		return m.eval
	case fnSlice:
		return m.slice
	case fnEncode:
		return m.encode
	case fnDecode:
		return m.decode
	case fnUpper:
		return m.text(strings.ToUpper)
	case fnLower:
		return m.text(strings.ToLower)
	case fnTrim:
		return m.text(strings.TrimSpace)
	case fnReplace:
		return m.text(func(s string) string { return m.re.ReplaceAllString(s, o.With) })
	case fnToLine:
		return m.toLine
	case fnToText:
		return toText
	default:
		return toStruct
	}
}

// structuredOnly lifts a field edit to a record function. The fields are
// cloned first so the input record is never modified.
func structuredOnly(edit func(*record.Fields) error) func(record.Record) (record.Record, error) {
	return func(r record.Record) (record.Record, error) {
		s, ok := r.(*record.Structured)
		if !ok {
			return nil, fmt.Errorf("requires structured input, got %s", r.Kind())
		}
		out := *s
		out.Fields = s.Fields.Clone()
		if err := edit(out.Fields); err != nil {
			return nil, err
		}
		return &out, nil
	}
}

func (m *mapper) eval(r record.Record) (record.Record, error) {
	v, err := expr.Run(m.program, record.View(r))
	if err != nil {
		return nil, err
	}
	return structuredOnly(func(f *record.Fields) error {
		f.Set(m.opts.Field, normalize(v))
		return nil
	})(r)
}

// normalize maps expression results onto the field value types.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// text applies fn to the text of a Line, or to the field option of a
// Structured record.
func (m *mapper) text(fn func(string) string) func(record.Record) (record.Record, error) {
	return func(r record.Record) (record.Record, error) {
		return record.Switch(r,
			func(x *record.Raw) result {
				out := *x
				out.Bytes = []byte(fn(string(x.Bytes)))
				return result{&out, nil}
			},
			func(x *record.Line) result {
				out := *x
				out.Text = fn(x.Text)
				return result{&out, nil}
			},
			func(x *record.Structured) result {
				if m.opts.Field == "" {
					return result{nil, fmt.Errorf("field is required for structured input")}
				}
				return wrap(structuredOnly(func(f *record.Fields) error {
					v, ok := f.Get(m.opts.Field)
					if !ok {
						return fmt.Errorf("no field %q", m.opts.Field)
					}
					f.Set(m.opts.Field, fn(record.FormatValue(v)))
					return nil
				})(x))
			},
		).unpack()
	}
}

// slice keeps the bytes [start, end) of a Raw or Line record. Negative bounds
// count from the end. The span is narrowed to match.
func (m *mapper) slice(r record.Record) (record.Record, error) {
	bounds := func(n int) (int, int) {
		start, end := 0, n
		if m.opts.Start != nil {
			start = *m.opts.Start
		}
		if m.opts.End != nil {
			end = *m.opts.End
		}
		if start < 0 {
			start += n
		}
		if end < 0 {
			end += n
		}
		start = min(max(start, 0), n)
		end = min(max(end, start), n)
		return start, end
	}
	narrow := func(span record.Range, n, start, end int) record.Range {
		if span.Len() != int64(n) {
			return span
		}
		return record.Range{Start: span.Start + int64(start), End: span.Start + int64(end)}
	}
	return record.Switch(r,
		func(x *record.Raw) result {
			start, end := bounds(len(x.Bytes))
			out := *x
			out.Bytes = x.Bytes[start:end]
			out.Span = narrow(x.Span, len(x.Bytes), start, end)
			return result{&out, nil}
		},
		func(x *record.Line) result {
			start, end := bounds(len(x.Text))
			out := *x
			out.Text = x.Text[start:end]
			out.Span = narrow(x.Span, len(x.Text), start, end)
			return result{&out, nil}
		},
		func(x *record.Structured) result {
			return result{nil, fmt.Errorf("requires raw or line input")}
		},
	).unpack()
}

func (m *mapper) encode(r record.Record) (record.Record, error) {
	return record.Switch(r,
		func(x *record.Raw) result {
			return result{&record.Line{Text: m.codec.encode(x.Bytes), Terminator: "\n", Meta: x.Meta}, nil}
		},
		func(x *record.Line) result {
			out := *x
			out.Text = m.codec.encode([]byte(x.Text))
			return result{&out, nil}
		},
		func(x *record.Structured) result {
			if m.opts.Field == "" {
				return result{nil, fmt.Errorf("field is required for structured input")}
			}
			return wrap(structuredOnly(func(f *record.Fields) error {
				v, _ := f.Get(m.opts.Field)
				f.Set(m.opts.Field, m.codec.encode(valueBytes(v)))
				return nil
			})(x))
		},
	).unpack()
}

func (m *mapper) decode(r record.Record) (record.Record, error) {
	return record.Switch(r,
		func(x *record.Raw) result {
			b, err := m.codec.decode(string(bytes.TrimSpace(x.Bytes)))
			if err != nil {
				return result{nil, err}
			}
			out := *x
			out.Bytes = b
			return result{&out, nil}
		},
		func(x *record.Line) result {
			b, err := m.codec.decode(strings.TrimSpace(x.Text))
			if err != nil {
				return result{nil, err}
			}
			return result{&record.Raw{Bytes: b, Meta: x.Meta}, nil}
		},
		func(x *record.Structured) result {
			if m.opts.Field == "" {
				return result{nil, fmt.Errorf("field is required for structured input")}
			}
			return wrap(structuredOnly(func(f *record.Fields) error {
				v, _ := f.Get(m.opts.Field)
				b, err := m.codec.decode(record.FormatValue(v))
				if err != nil {
					return err
				}
				f.Set(m.opts.Field, string(b))
				return nil
			})(x))
		},
	).unpack()
}

func (m *mapper) toLine(r record.Record) (record.Record, error) {
	if m.tmpl != nil {
		var buf bytes.Buffer
		if err := m.tmpl.Execute(&buf, record.View(r)); err != nil {
			return nil, err
		}
		number := 0
		if l, ok := r.(*record.Line); ok {
			number = l.Number
		}
		return &record.Line{Text: buf.String(), Number: number, Terminator: "\n", Meta: r.Info()}, nil
	}
	return record.Switch(r,
		func(x *record.Raw) result { return wrap(toText(x)) },
		func(x *record.Line) result { return result{x, nil} },
		func(x *record.Structured) result {
			b, err := json.Marshal(x.Fields)
			if err != nil {
				return result{nil, err}
			}
			return result{&record.Line{Text: string(b), Terminator: "\n", Meta: x.Meta}, nil}
		},
	).unpack()
}

// toText reinterprets Raw bytes as text, replacing invalid UTF-8.
func toText(r record.Record) (record.Record, error) {
	return record.Switch(r,
		func(x *record.Raw) result {
			return result{&record.Line{Text: strings.ToValidUTF8(string(x.Bytes), "�"), Meta: x.Meta}, nil}
		},
		func(x *record.Line) result { return result{x, nil} },
		func(x *record.Structured) result {
			return result{nil, fmt.Errorf("requires raw or line input")}
		},
	).unpack()
}

func toStruct(r record.Record) (record.Record, error) {
	return record.Switch(r,
		func(x *record.Raw) record.Record {
			return &record.Structured{
				Fields: record.FieldsOf("bytes", string(x.Bytes), "len", int64(len(x.Bytes))),
				Meta:   x.Meta,
			}
		},
		func(x *record.Line) record.Record {
			return &record.Structured{
				Fields: record.FieldsOf("text", x.Text, "line", int64(x.Number)),
				Meta:   x.Meta,
			}
		},
		func(x *record.Structured) record.Record { return x },
	), nil
}

type result struct {
	r   record.Record
	err error
}

func wrap(r record.Record, err error) result { return result{r, err} }

func (r result) unpack() (record.Record, error) { return r.r, r.err }

type codec struct {
	encode func([]byte) string
	decode func(string) ([]byte, error)
}

var codecs = map[string]codec{
	"hex":       {hex.EncodeToString, hex.DecodeString},
	"base64":    {base64.StdEncoding.EncodeToString, base64.StdEncoding.DecodeString},
	"base64url": {base64.URLEncoding.EncodeToString, base64.URLEncoding.DecodeString},
}

func valueBytes(v any) []byte {
	if b, ok := v.([]byte); ok {
		return b
	}
	return []byte(record.FormatValue(v))
}
