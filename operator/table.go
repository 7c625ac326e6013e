package operator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

type tableOptions struct {
	Delimiter string   `mapstructure:"delimiter" validate:"required"`
	Quote     string   `mapstructure:"quote"`
	Header    bool     `mapstructure:"header"`
	Columns   []string `mapstructure:"columns" validate:"dive,required"`
	TrimSpace bool     `mapstructure:"trim_space"`
	StripCR   bool     `mapstructure:"strip_cr"`
}

// table parses delimiter-separated rows into Structured records. Each line is
// one row; field names come from the header line, the columns option, or are
// positional (c1..cN).
type table struct {
	base
	opts  tableOptions
	delim rune
	quote rune
}

func newTable(spec Spec) (Operator, error) {
	opts := tableOptions{Delimiter: ",", Quote: `"`, Header: true, StripCR: true}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	v := validation.New(spec.Label())
	if opts.Delimiter == `\t` {
		opts.Delimiter = "\t"
	}
	delim, n := utf8.DecodeRuneInString(opts.Delimiter)
	v.Check(n == len(opts.Delimiter), "delimiter", "must be a single character")
	var quote rune
	if opts.Quote != "" {
		var qn int
		quote, qn = utf8.DecodeRuneInString(opts.Quote)
		v.Check(qn == len(opts.Quote), "quote", "must be a single character or empty")
		v.Check(quote != delim, "quote", "must differ from delimiter")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return &table{base: base{spec}, opts: opts, delim: delim, quote: quote}, nil
}

func (t *table) Apply(_ *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.Transform(in, func() stream.Stage[record.Record, record.Record] {
		return &tableStage{
			t:       t,
			split:   newLineSplitter("\n", t.opts.StripCR),
			names:   t.opts.Columns,
			pending: t.opts.Header,
		}
	})
}

type tableStage struct {
	t     *table
	split *lineSplitter
	names []string
	// pending is true while the header line is still expected.
	pending bool
}

func (s *tableStage) Step(_ context.Context, r record.Record, emit func(record.Record)) error {
	return record.Switch(r,
		func(x *record.Raw) error {
			s.split.feed(x.Bytes, x.Span.Start, func(l *record.Line) { s.row(l, emit) })
			return nil
		},
		func(x *record.Line) error {
			s.row(x, emit)
			return nil
		},
		func(x *record.Structured) error {
			emit(x)
			return nil
		},
	)
}

func (s *tableStage) Finish(_ context.Context, emit func(record.Record)) error {
	s.split.flush(func(l *record.Line) { s.row(l, emit) })
	return nil
}

func (s *tableStage) row(l *record.Line, emit func(record.Record)) {
	text := strings.TrimSuffix(l.Text, "\r")
	if strings.TrimSpace(text) == "" {
		return
	}
	values, perr := splitRow(text, s.t.delim, s.t.quote)
	if s.t.opts.TrimSpace {
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
	}
	if s.pending {
		s.pending = false
		if len(s.names) == 0 {
			s.names = headerNames(values)
		}
		return
	}
	if len(s.names) == 0 {
		s.names = positionalNames(len(values))
	}

	fields := record.NewFields()
	for i, v := range values {
		name := fmt.Sprintf("c%d", i+1)
		if i < len(s.names) {
			name = s.names[i]
		}
		fields.Set(name, v)
	}
	out := record.NewStructured(fields, l.Span)
	out.Incomplete = l.Incomplete

	issue := ""
	switch {
	case perr != nil:
		issue = perr.Error()
	case len(values) != len(s.names):
		issue = fmt.Sprintf("expected %d fields, got %d", len(s.names), len(values))
	}
	if issue != "" {
		fields.Set(record.ParseErrorField, issue)
		out.Issue = apperrors.ParseDegraded(issue).Error()
	}
	emit(out)
}

// splitRow splits one row on delim. A field starting with quote runs to the
// matching quote; a doubled quote inside it is a literal quote. quote == 0
// disables quoting.
func splitRow(line string, delim, quote rune) ([]string, error) {
	var (
		fields []string
		field  strings.Builder
		quoted bool
		start  = true
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quoted && c == quote:
			if i+1 < len(runes) && runes[i+1] == quote {
				field.WriteRune(quote)
				i++
			} else {
				quoted = false
			}
		case quoted:
			field.WriteRune(c)
		case start && quote != 0 && c == quote:
			quoted = true
			start = false
		case c == delim:
			fields = append(fields, field.String())
			field.Reset()
			start = true
		default:
			field.WriteRune(c)
			start = false
		}
	}
	fields = append(fields, field.String())
	if quoted {
		return fields, fmt.Errorf("unterminated quoted field")
	}
	return fields, nil
}

func headerNames(values []string) []string {
	names := make([]string, len(values))
	seen := make(map[string]bool, len(values))
	for i, v := range values {
		name := strings.TrimSpace(v)
		if name == "" || seen[name] {
			name = fmt.Sprintf("c%d", i+1)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func positionalNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("c%d", i+1)
	}
	return names
}
