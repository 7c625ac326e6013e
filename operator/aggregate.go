package operator

import (
	"context"
	"fmt"

	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

// LargeInput is the record count above which barrier stages log a memory
// warning.
const LargeInput = 1_000_000

type aggregateOptions struct {
	By    []string `mapstructure:"by"`
	Fn    string   `mapstructure:"fn" validate:"oneof=count sum min max distinct"`
	Field string   `mapstructure:"field"`
	As    string   `mapstructure:"as"`
}

// aggregate groups its whole input by key and emits one Structured record per
// group in order of first appearance. It holds every input record in memory.
type aggregate struct {
	base
	opts aggregateOptions
}

func newAggregate(spec Spec) (Operator, error) {
	opts := aggregateOptions{Fn: "count"}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	v := validation.New(spec.Label())
	if opts.Fn != "count" {
		v.Required("field", opts.Field)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	if opts.As == "" {
		opts.As = opts.Fn
		if opts.Field != "" {
			opts.As = opts.Fn + "_" + opts.Field
		}
	}
	return &aggregate{base: base{spec}, opts: opts}, nil
}

func (a *aggregate) Apply(env *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.Barrier(in, func(_ context.Context, records []record.Record) ([]record.Record, error) {
		if len(records) > LargeInput {
			env.log().Warn("aggregating a large input in memory", logger.Fields(logger.FieldRecords, len(records)))
		}
		return a.reduce(records), nil
	})
}

type group struct {
	key      []any
	span     record.Range
	count    int64
	acc      float64
	seen     bool
	distinct map[string]struct{}
	skipped  int
}

func (a *aggregate) reduce(records []record.Record) []record.Record {
	var order []*group
	groups := make(map[string]*group)
	for _, r := range records {
		k := record.Key(r, a.opts.By)
		g, ok := groups[k]
		if !ok {
			g = &group{span: r.Info().Span, distinct: map[string]struct{}{}}
			for _, name := range a.opts.By {
				v, _ := record.Lookup(r, name)
				g.key = append(g.key, v)
			}
			groups[k] = g
			order = append(order, g)
		}
		g.span = g.span.Union(r.Info().Span)
		a.add(g, r)
	}

	out := make([]record.Record, 0, len(order))
	for _, g := range order {
		fields := record.NewFields()
		for i, name := range a.opts.By {
			fields.Set(name, g.key[i])
		}
		fields.Set(a.opts.As, a.value(g))
		s := record.NewStructured(fields, g.span)
		if g.skipped > 0 {
			s.Issue = fmt.Sprintf("%s: skipped %d non-numeric values of %s", a.label(), g.skipped, a.opts.Field)
		}
		out = append(out, s)
	}
	return out
}

func (a *aggregate) add(g *group, r record.Record) {
	g.count++
	if a.opts.Fn == "count" {
		return
	}
	v, ok := record.Lookup(r, a.opts.Field)
	if a.opts.Fn == "distinct" {
		if ok {
			g.distinct[record.FormatValue(v)] = struct{}{}
		}
		return
	}
	f, num := record.AsFloat(v)
	if !ok || !num {
		g.skipped++
		return
	}
	switch {
	case !g.seen:
		g.acc = f
	case a.opts.Fn == "sum":
		g.acc += f
	case a.opts.Fn == "min":
		g.acc = min(g.acc, f)
	case a.opts.Fn == "max":
		g.acc = max(g.acc, f)
	}
	g.seen = true
}

func (a *aggregate) value(g *group) any {
	switch a.opts.Fn {
	case "count":
		return g.count
	case "distinct":
		return int64(len(g.distinct))
	case "sum":
		return g.acc
	default:
		if !g.seen {
			return nil
		}
		return g.acc
	}
}
