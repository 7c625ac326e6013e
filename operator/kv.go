package operator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

type kvOptions struct {
	Pattern       string `mapstructure:"pattern"`
	PairSeparator string `mapstructure:"pair_separator" validate:"excluded_with=Pattern"`
	KVSeparator   string `mapstructure:"kv_separator" validate:"excluded_with=Pattern"`
	StripCR       bool   `mapstructure:"strip_cr"`
}

// kv extracts key-value pairs from each line, either with a regular
// expression's named groups or with a logfmt-like grammar:
//
//	key=value key2="quoted value" flag
type kv struct {
	base
	opts    kvOptions
	re      *regexp.Regexp
	groups  []string
	pairSep string
	kvSep   string
}

func newKV(spec Spec) (Operator, error) {
	opts := kvOptions{StripCR: true}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	op := &kv{base: base{spec}, opts: opts, pairSep: " ", kvSep: "="}
	if opts.PairSeparator != "" {
		op.pairSep = opts.PairSeparator
	}
	if opts.KVSeparator != "" {
		op.kvSep = opts.KVSeparator
	}
	v := validation.New(spec.Label())
	v.Check(op.pairSep != op.kvSep, "kv_separator", "must differ from pair_separator")
	if opts.Pattern != "" {
		op.re = v.Regexp("pattern", opts.Pattern)
		if op.re != nil {
			for _, name := range op.re.SubexpNames()[1:] {
				if name != "" {
					op.groups = append(op.groups, name)
				}
			}
			v.Check(len(op.groups) > 0, "pattern", "must contain at least one named group")
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return op, nil
}

func (k *kv) Apply(_ *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.Transform(in, func() stream.Stage[record.Record, record.Record] {
		return &kvStage{k: k, split: newLineSplitter("\n", k.opts.StripCR)}
	})
}

type kvStage struct {
	k     *kv
	split *lineSplitter
}

func (s *kvStage) Step(_ context.Context, r record.Record, emit func(record.Record)) error {
	return record.Switch(r,
		func(x *record.Raw) error {
			s.split.feed(x.Bytes, x.Span.Start, func(l *record.Line) { emit(s.k.parse(l)) })
			return nil
		},
		func(x *record.Line) error {
			emit(s.k.parse(x))
			return nil
		},
		func(x *record.Structured) error {
			emit(x)
			return nil
		},
	)
}

func (s *kvStage) Finish(_ context.Context, emit func(record.Record)) error {
	s.split.flush(func(l *record.Line) { emit(s.k.parse(l)) })
	return nil
}

func (k *kv) parse(l *record.Line) record.Record {
	var (
		fields *record.Fields
		err    error
	)
	if k.re != nil {
		fields, err = k.parsePattern(l.Text)
	} else {
		fields, err = k.parseLogfmt(l.Text)
	}
	out := record.NewStructured(fields, l.Span)
	out.Incomplete = l.Incomplete
	if err != nil {
		if _, ok := fields.Get("text"); !ok && fields.Len() == 0 {
			fields.Set("text", l.Text)
		}
		fields.Set(record.ParseErrorField, err.Error())
		out.Issue = apperrors.ParseDegraded(err.Error()).Error()
	}
	return out
}

func (k *kv) parsePattern(text string) (*record.Fields, error) {
	fields := record.NewFields()
	m := k.re.FindStringSubmatch(text)
	if m == nil {
		return fields, fmt.Errorf("line does not match pattern")
	}
	for i, name := range k.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		fields.Set(name, m[i])
	}
	return fields, nil
}

func (k *kv) parseLogfmt(text string) (*record.Fields, error) {
	fields := record.NewFields()
	rest := text
	for {
		for strings.HasPrefix(rest, k.pairSep) {
			rest = rest[len(k.pairSep):]
		}
		if rest == "" {
			return fields, nil
		}
		keyEnd := strings.Index(rest, k.kvSep)
		pairEnd := strings.Index(rest, k.pairSep)
		if keyEnd < 0 || (pairEnd >= 0 && pairEnd < keyEnd) {
			// A bare key is a flag.
			if pairEnd < 0 {
				pairEnd = len(rest)
			}
			fields.Set(rest[:pairEnd], true)
			rest = rest[pairEnd:]
			continue
		}
		key := rest[:keyEnd]
		if key == "" {
			return fields, fmt.Errorf("empty key at %q", rest)
		}
		rest = rest[keyEnd+len(k.kvSep):]
		if strings.HasPrefix(rest, `"`) {
			value, n, err := unquote(rest)
			if err != nil {
				return fields, fmt.Errorf("value of %s: %w", key, err)
			}
			fields.Set(key, value)
			rest = rest[n:]
			continue
		}
		end := strings.Index(rest, k.pairSep)
		if end < 0 {
			end = len(rest)
		}
		fields.Set(key, rest[:end])
		rest = rest[end:]
	}
}

// unquote reads a double-quoted value with backslash escapes from the start
// of s and returns it with the number of bytes consumed.
func unquote(s string) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("dangling escape")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated quote")
}
