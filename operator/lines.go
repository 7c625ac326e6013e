package operator

import (
	"context"

	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

type linesOptions struct {
	Delimiter string `mapstructure:"delimiter" validate:"required"`
	StripCR   bool   `mapstructure:"strip_cr"`
}

// lines splits byte content on a delimiter into Line records.
type lines struct {
	base
	opts linesOptions
}

func newLines(spec Spec) (Operator, error) {
	opts := linesOptions{Delimiter: "\n"}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	return &lines{base: base{spec}, opts: opts}, nil
}

func (l *lines) Apply(_ *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.Transform(in, func() stream.Stage[record.Record, record.Record] {
		return &linesStage{split: newLineSplitter(l.opts.Delimiter, l.opts.StripCR)}
	})
}

type linesStage struct {
	split *lineSplitter
}

func (s *linesStage) Step(_ context.Context, r record.Record, emit func(record.Record)) error {
	data, off, ok := bytesOf(r)
	if !ok {
		emit(r)
		return nil
	}
	s.split.feed(data, off, func(l *record.Line) { emit(l) })
	return nil
}

func (s *linesStage) Finish(_ context.Context, emit func(record.Record)) error {
	s.split.flush(func(l *record.Line) { emit(l) })
	return nil
}
