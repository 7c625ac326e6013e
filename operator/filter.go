package operator

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

type filterOptions struct {
	Expr   string `mapstructure:"expr" validate:"required"`
	Invert bool   `mapstructure:"invert"`
}

// filter keeps the records for which its predicate holds. The predicate is an
// expression over the record's field view, for example:
//
//	status >= 500 && path matches "^/api"
//	between(num(latency), 100, 250)
//	byteAt(bytes, 0) == 0x7f
type filter struct {
	base
	opts    filterOptions
	program *vm.Program
}

func newFilter(spec Spec) (Operator, error) {
	var opts filterOptions
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	program, err := compilePredicate(opts.Expr)
	if err != nil {
		return nil, validation.New(spec.Label()).Check(false, "expr", err.Error()).Err()
	}
	return &filter{base: base{spec}, opts: opts, program: program}, nil
}

func (f *filter) Apply(env *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return perRecord(in, func(r record.Record) (record.Record, bool) {
		keep, err := f.match(r)
		if err != nil {
			env.log().Debug("predicate failed", logger.ErrorFields(f.label(), err))
			return record.WithIssue(r, fmt.Sprintf("%s: %v", f.label(), err)), true
		}
		return r, keep != f.opts.Invert
	})
}

func (f *filter) match(r record.Record) (bool, error) {
	out, err := expr.Run(f.program, record.View(r))
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("predicate returned %T, want bool", out)
	}
	return b, nil
}

// compilePredicate compiles a boolean expression over the record field view.
func compilePredicate(source string) (*vm.Program, error) {
	return expr.Compile(source, append(exprFunctions(), expr.AsBool(), expr.AllowUndefinedVariables())...)
}

// compileValue compiles an expression producing any value.
func compileValue(source string) (*vm.Program, error) {
	return expr.Compile(source, append(exprFunctions(), expr.AllowUndefinedVariables())...)
}

// exprFunctions are the helpers available in filter and map expressions.
func exprFunctions() []expr.Option {
	return []expr.Option{
		expr.Function("num", func(params ...any) (any, error) {
			f, ok := record.AsFloat(params[0])
			if !ok {
				return nil, fmt.Errorf("num: %q is not a number", record.FormatValue(params[0]))
			}
			return f, nil
		}, new(func(any) float64)),
		expr.Function("between", func(params ...any) (any, error) {
			x, ok1 := record.AsFloat(params[0])
			lo, ok2 := record.AsFloat(params[1])
			hi, ok3 := record.AsFloat(params[2])
			if !ok1 || !ok2 || !ok3 {
				return false, nil
			}
			return x >= lo && x <= hi, nil
		}, new(func(any, any, any) bool)),
		expr.Function("byteAt", func(params ...any) (any, error) {
			s := record.FormatValue(params[0])
			i, ok := record.AsFloat(params[1])
			if !ok {
				return nil, fmt.Errorf("byteAt: index %v is not a number", params[1])
			}
			idx := int(i)
			if idx < 0 {
				idx += len(s)
			}
			if idx < 0 || idx >= len(s) {
				return -1, nil
			}
			return int(s[idx]), nil
		}, new(func(any, any) int)),
		expr.Function("str", func(params ...any) (any, error) {
			return record.FormatValue(params[0]), nil
		}, new(func(any) string)),
	}
}
