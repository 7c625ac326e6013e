package operator

import (
	"context"
	"slices"

	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

type sortOptions struct {
	By      []string `mapstructure:"by"`
	Desc    bool     `mapstructure:"desc"`
	Numeric bool     `mapstructure:"numeric"`
}

// sorter orders its whole input by the by fields, or by the encoded record
// when none are given. The sort is stable: records
// with equal keys keep their input order, also when desc is set.
type sorter struct {
	base
	opts sortOptions
}

func newSort(spec Spec) (Operator, error) {
	var opts sortOptions
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	return &sorter{base: base{spec}, opts: opts}, nil
}

func (s *sorter) Apply(env *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.Barrier(in, func(_ context.Context, records []record.Record) ([]record.Record, error) {
		if len(records) > LargeInput {
			env.log().Warn("sorting a large input in memory", logger.Fields(logger.FieldRecords, len(records)))
		}
		out := slices.Clone(records)
		slices.SortStableFunc(out, s.compare)
		return out, nil
	})
}

func (s *sorter) compare(a, b record.Record) int {
	if len(s.opts.By) == 0 {
		ab, _ := record.Encode(a)
		bb, _ := record.Encode(b)
		return s.direction(record.Compare(string(ab), string(bb), s.opts.Numeric))
	}
	for _, name := range s.opts.By {
		av, _ := record.Lookup(a, name)
		bv, _ := record.Lookup(b, name)
		if c := record.Compare(av, bv, s.opts.Numeric); c != 0 {
			return s.direction(c)
		}
	}
	return 0
}

func (s *sorter) direction(c int) int {
	if s.opts.Desc {
		return -c
	}
	return c
}

type dedupOptions struct {
	By    []string `mapstructure:"by"`
	Scope string   `mapstructure:"scope" validate:"oneof=adjacent global"`
}

// dedup drops records whose key equals an earlier one: the previous record for
// adjacent scope, any earlier record for global scope. Without by fields the
// key is the encoded record.
type dedup struct {
	base
	opts dedupOptions
}

func newDedup(spec Spec) (Operator, error) {
	opts := dedupOptions{Scope: "adjacent"}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	return &dedup{base: base{spec}, opts: opts}, nil
}

func (d *dedup) Apply(_ *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.Transform(in, func() stream.Stage[record.Record, record.Record] {
		return &dedupStage{d: d, seen: map[string]struct{}{}}
	})
}

type dedupStage struct {
	d    *dedup
	seen map[string]struct{}
	last string
	any  bool
}

func (s *dedupStage) Step(_ context.Context, r record.Record, emit func(record.Record)) error {
	key, err := s.key(r)
	if err != nil {
		return err
	}
	if s.d.opts.Scope == "global" {
		if _, dup := s.seen[key]; dup {
			return nil
		}
		s.seen[key] = struct{}{}
		emit(r)
		return nil
	}
	if s.any && key == s.last {
		return nil
	}
	s.last, s.any = key, true
	emit(r)
	return nil
}

func (s *dedupStage) key(r record.Record) (string, error) {
	if len(s.d.opts.By) > 0 {
		return record.Key(r, s.d.opts.By), nil
	}
	if l, ok := r.(*record.Line); ok {
		return "line\x00" + l.Text, nil
	}
	b, err := record.Encode(r)
	if err != nil {
		return "", err
	}
	return r.Kind().String() + "\x00" + string(b), nil
}

func (s *dedupStage) Finish(context.Context, func(record.Record)) error { return nil }
