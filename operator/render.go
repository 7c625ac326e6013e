package operator

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

type renderOptions struct {
	Format    string   `mapstructure:"format" validate:"oneof=text jsonl csv tsv yaml hex logfmt"`
	Fields    []string `mapstructure:"fields"`
	Separator string   `mapstructure:"separator"`
	Header    bool     `mapstructure:"header"`
	Width     int      `mapstructure:"width" validate:"gte=1,lte=256"`
}

// render turns records into display lines. Every output record is a Line
// terminated by "\n", except that text format passes Line and Raw records
// through untouched so that a render-only pipeline reproduces its input.
type render struct {
	base
	opts renderOptions
}

func newRender(spec Spec) (Operator, error) {
	opts := renderOptions{Format: "text", Separator: " ", Header: true, Width: 16}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	if opts.Separator == `\t` {
		opts.Separator = "\t"
	}
	return &render{base: base{spec}, opts: opts}, nil
}

func (r *render) Apply(_ *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.Transform(in, func() stream.Stage[record.Record, record.Record] {
		return &renderStage{r: r, columns: r.opts.Fields}
	})
}

type renderStage struct {
	r       *render
	columns []string
	header  bool
	number  int
}

func (s *renderStage) Step(_ context.Context, in record.Record, emit func(record.Record)) error {
	line := func(text string, span record.Range) {
		s.number++
		out := record.NewLine(text, s.number, "\n", span)
		out.Incomplete = in.Info().Incomplete
		out.Issue = in.Info().Issue
		emit(out)
	}
	span := in.Info().Span
	switch s.r.opts.Format {
	case "jsonl":
		b, err := json.Marshal(fieldsOf(in, s.r.opts.Fields))
		if err != nil {
			return err
		}
		line(string(b), span)
	case "csv", "tsv":
		if s.columns == nil {
			s.columns = columnsOf(in)
		}
		if s.r.opts.Header && !s.header {
			s.header = true
			s.number++
			emit(record.NewLine(s.csvRow(s.columns), s.number, "\n", record.Range{Start: span.Start, End: span.Start}))
		}
		values := make([]string, len(s.columns))
		for i, c := range s.columns {
			v, _ := record.Lookup(in, c)
			values[i] = record.FormatValue(v)
		}
		line(s.csvRow(values), span)
	case "yaml":
		text, err := yamlItem(fieldsOf(in, s.r.opts.Fields))
		if err != nil {
			return err
		}
		line(text, span)
	case "hex":
		data, _, ok := bytesOf(in)
		if !ok {
			b, err := record.Encode(in)
			if err != nil {
				return err
			}
			data = b
		}
		w := s.r.opts.Width
		for i := 0; i < len(data); i += w {
			end := min(i+w, len(data))
			rowSpan := span
			if span.Len() >= int64(end) {
				rowSpan = record.Range{Start: span.Start + int64(i), End: span.Start + int64(end)}
			}
			line(hexRow(span.Start+int64(i), data[i:end], w), rowSpan)
		}
	case "logfmt":
		line(logfmt(fieldsOf(in, s.r.opts.Fields)), span)
	default:
		record.Switch(in,
			func(x *record.Raw) struct{} { emit(x); return struct{}{} },
			func(x *record.Line) struct{} { emit(x); return struct{}{} },
			func(x *record.Structured) struct{} {
				parts := make([]string, 0, x.Fields.Len())
				fieldsOf(x, s.r.opts.Fields).Each(func(_ string, v any) {
					parts = append(parts, record.FormatValue(v))
				})
				line(strings.Join(parts, s.r.opts.Separator), span)
				return struct{}{}
			},
		)
	}
	return nil
}

func (s *renderStage) Finish(context.Context, func(record.Record)) error { return nil }

func (s *renderStage) csvRow(values []string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if s.r.opts.Format == "tsv" {
		w.Comma = '\t'
	}
	_ = w.Write(values)
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

// fieldsOf returns the fields of r to render: the Structured fields, or the
// text or bytes of Line and Raw records, restricted to names when given.
func fieldsOf(r record.Record, names []string) *record.Fields {
	if len(names) > 0 {
		f := record.NewFields()
		for _, n := range names {
			v, _ := record.Lookup(r, n)
			f.Set(n, v)
		}
		return f
	}
	return record.Switch(r,
		func(x *record.Raw) *record.Fields { return record.FieldsOf("bytes", string(x.Bytes)) },
		func(x *record.Line) *record.Fields { return record.FieldsOf("text", x.Text) },
		func(x *record.Structured) *record.Fields { return x.Fields },
	)
}

func columnsOf(r record.Record) []string {
	return fieldsOf(r, nil).Keys()
}

// yamlItem renders fields as one item of a YAML sequence, keeping field order.
func yamlItem(f *record.Fields) (string, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	var err error
	f.Each(func(name string, v any) {
		val := &yaml.Node{}
		if e := val.Encode(v); e != nil && err == nil {
			err = e
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: name}, val)
	})
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{m}}); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// hexRow renders one hexdump row: offset, width bytes of hex and the
// printable characters.
func hexRow(off int64, data []byte, width int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%08x  ", off)
	for i := 0; i < width; i++ {
		if i < len(data) {
			b.WriteString(hex.EncodeToString(data[i : i+1]))
		} else {
			b.WriteString("  ")
		}
		b.WriteByte(' ')
	}
	b.WriteString(" |")
	for _, c := range data {
		if c < 0x20 || c > 0x7e {
			c = '.'
		}
		b.WriteByte(c)
	}
	b.WriteByte('|')
	return b.String()
}

func logfmt(f *record.Fields) string {
	var b strings.Builder
	f.Each(func(name string, v any) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
		b.WriteByte('=')
		s := record.FormatValue(v)
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			fmt.Fprintf(&b, "%q", s)
		} else {
			b.WriteString(s)
		}
	})
	return b.String()
}
