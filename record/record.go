// Package record defines the unit of data flowing through an Operate
// pipeline: a closed set of variants (Raw, Line, Structured) that all carry
// provenance back to the byte range of the source they were read from.
package record

import "fmt"

// Kind identifies a record variant.
type Kind uint8

const (
	KindRaw Kind = iota + 1
	KindLine
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindLine:
		return "line"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseErrorField is the reserved field set on Structured records that
// could not be parsed cleanly.
const ParseErrorField = "__parse_error"

// Range is a half-open byte range [Start, End) relative to the start of
// the originating source.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes covered by r.
func (r Range) Len() int64 { return r.End - r.Start }

// Within reports whether r is a valid sub-range of a source of size n.
func (r Range) Within(n int64) bool {
	return r.Start >= 0 && r.Start <= r.End && r.End <= n
}

// Union returns the smallest range covering r and o.
func (r Range) Union(o Range) Range {
	out := r
	if o.Start < out.Start {
		out.Start = o.Start
	}
	if o.End > out.End {
		out.End = o.End
	}
	return out
}

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Meta is the provenance and status carried by every record.
type Meta struct {
	// Span is the byte range of the source this record was derived from.
	Span Range
	// Incomplete marks a trailing partial line or frame.
	Incomplete bool
	// Issue describes a recoverable per-record problem; empty when clean.
	Issue string
}

// Info returns the record metadata.
func (m Meta) Info() Meta { return m }

// Record is one of *Raw, *Line or *Structured. The set is closed: the
// interface cannot be implemented outside this package.
type Record interface {
	Kind() Kind
	Info() Meta
	sealed()
}

// Raw is an uninterpreted byte slice.
type Raw struct {
	Bytes []byte
	Meta
}

// Line is a decoded line of text.
type Line struct {
	Text string
	// Number is the 1-based line number within its source.
	Number int
	// Terminator is the delimiter that followed the line in the source;
	// empty for an incomplete trailing line.
	Terminator string
	Meta
}

// Structured is an ordered mapping of field names to values.
type Structured struct {
	Fields *Fields
	Meta
}

func (*Raw) Kind() Kind        { return KindRaw }
func (*Line) Kind() Kind       { return KindLine }
func (*Structured) Kind() Kind { return KindStructured }

func (*Raw) sealed()        {}
func (*Line) sealed()       {}
func (*Structured) sealed() {}

// Switch dispatches r to the handler for its variant. Every variant must be
// handled, so adding a variant breaks every caller at compile time.
func Switch[T any](r Record, onRaw func(*Raw) T, onLine func(*Line) T, onStructured func(*Structured) T) T {
	switch v := r.(type) {
	case *Raw:
		return onRaw(v)
	case *Line:
		return onLine(v)
	case *Structured:
		return onStructured(v)
	default:
		panic(fmt.Sprintf("record: unexpected variant %T", r))
	}
}

// WithIssue returns a copy of r with issue recorded. An existing issue is kept
// and the new one appended.
func WithIssue(r Record, issue string) Record {
	merge := func(m Meta) Meta {
		if m.Issue != "" {
			m.Issue += "; " + issue
		} else {
			m.Issue = issue
		}
		return m
	}
	return Switch(r,
		func(v *Raw) Record {
			c := *v
			c.Meta = merge(c.Meta)
			return &c
		},
		func(v *Line) Record {
			c := *v
			c.Meta = merge(c.Meta)
			return &c
		},
		func(v *Structured) Record {
			c := *v
			c.Meta = merge(c.Meta)
			return &c
		},
	)
}

// NewRaw builds a Raw record for bytes read at span.
func NewRaw(b []byte, span Range) *Raw {
	return &Raw{Bytes: b, Meta: Meta{Span: span}}
}

// NewLine builds a complete Line record.
func NewLine(text string, number int, terminator string, span Range) *Line {
	return &Line{Text: text, Number: number, Terminator: terminator, Meta: Meta{Span: span}}
}

// NewStructured builds a Structured record.
func NewStructured(fields *Fields, span Range) *Structured {
	return &Structured{Fields: fields, Meta: Meta{Span: span}}
}
