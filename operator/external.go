package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/process"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/source"
	"github.com/jae-editor/operate/stream"
	"github.com/jae-editor/operate/validation"
)

type externalOptions struct {
	Command     string        `mapstructure:"command" validate:"required"`
	Args        []string      `mapstructure:"args"`
	Env         []string      `mapstructure:"env" validate:"dive,contains=="`
	Dir         string        `mapstructure:"dir"`
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"gte=0"`
	Output      string        `mapstructure:"output" validate:"oneof=lines raw"`
}

// external pipes the encoded upstream through a subprocess. The upstream is
// materialised before the process starts; the process output is then read
// lazily, as Line records (output=lines) or Raw chunks (output=raw). Offsets
// of the emitted records refer to the process output.
type external struct {
	base
	opts externalOptions
}

func newExternal(spec Spec) (Operator, error) {
	opts := externalOptions{Output: "lines"}
	if err := validation.Decode(spec.Label(), spec.Options, &opts); err != nil {
		return nil, err
	}
	return &external{base: base{spec}, opts: opts}, nil
}

func (e *external) command(env *Env) process.Command {
	grace := e.opts.GracePeriod
	if grace == 0 {
		grace = env.GracePeriod
	}
	return process.Command{
		Binary:      e.opts.Command,
		Args:        e.opts.Args,
		Dir:         e.opts.Dir,
		Env:         append(append([]string(nil), env.ExtraEnv...), e.opts.Env...),
		GracePeriod: grace,
	}
}

func (e *external) Apply(env *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record] {
	return stream.FromFunc(func(context.Context) stream.Iterator[record.Record] {
		return &externalIter{e: e, env: env, in: in}
	})
}

// externalIter starts the process on the first pull and owns it until Close.
type externalIter struct {
	e       *external
	env     *Env
	in      *stream.Stream[record.Record]
	started bool
	handle  *process.Handle
	group   *errgroup.Group
	out     stream.Iterator[record.Record]
}

func (it *externalIter) Next(ctx context.Context) (record.Record, bool, error) {
	if !it.started {
		it.started = true
		if err := it.start(ctx); err != nil {
			return nil, false, err
		}
	}
	if it.out == nil {
		return nil, false, nil
	}
	return it.out.Next(ctx)
}

func (it *externalIter) start(ctx context.Context) error {
	records, err := stream.Collect(ctx, it.in)
	if err != nil {
		return err
	}
	input, err := record.EncodeAll(records)
	if err != nil {
		return apperrors.Internal(err)
	}

	cmd := it.e.command(it.env)
	log := it.env.log().WithFields(logger.Fields(logger.FieldCommand, cmd.String()))
	spawner := it.env.Spawner
	if spawner == nil {
		spawner = process.NewSpawner(it.env.GracePeriod)
	}
	h, err := spawner.Spawn(ctx, cmd)
	if err != nil {
		it.env.Metrics.RecordSpawn(ctx, cmd.Binary, "error")
		return apperrors.ExternalSpawn(cmd.String(), err)
	}
	it.handle = h
	log.Debug("process started", logger.Fields(logger.FieldPID, h.PID, "input_bytes", len(input)))

	acc := source.NewAccumulator(source.WithChunkSize(it.env.ChunkSize))
	g := new(errgroup.Group)
	it.group = g
	g.Go(func() error {
		defer h.Stdin.Close()
		if _, err := h.Stdin.Write(input); err != nil && !brokenPipe(err) {
			return fmt.Errorf("write stdin: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n, copyErr := io.Copy(acc, h.Stdout)
		res, waitErr := h.Wait()
		status := it.finish(ctx, acc, cmd, n, res, errors.Join(copyErr, waitErr))
		it.env.Metrics.RecordSpawn(ctx, cmd.Binary, status)
		log.Debug("process exited", logger.Fields(logger.FieldStatus, status, "output_bytes", n, logger.FieldDuration, res.Duration.Milliseconds()))
		return nil
	})

	out := source.Records(acc)
	if it.e.opts.Output == "lines" {
		out = stream.Transform(out, func() stream.Stage[record.Record, record.Record] {
			return &linesStage{split: newLineSplitter("\n", false)}
		})
	}
	it.out = out.Iter(ctx)
	return nil
}

// finish closes acc according to how the process ended and returns a status
// for metrics.
func (it *externalIter) finish(ctx context.Context, acc *source.Accumulator, cmd process.Command, n int64, res *process.Result, err error) string {
	switch {
	case res.Terminated:
		cause := ctx.Err()
		if cause == nil {
			cause = apperrors.Cancelled(nil)
		}
		acc.CloseWithError(cause)
		return "terminated"
	case res.ExitCode != 0:
		exit := apperrors.ExternalExitNonZero(cmd.String(), res.ExitCode, strings.TrimSpace(string(res.Stderr))).
			WithStage(it.env.Stage, it.e.label())
		if n == 0 {
			acc.CloseWithError(apperrors.SourceUnavailable("process exited before producing output").WithCause(exit))
			return "failed"
		}
		it.env.degrade(exit)
		acc.CloseWithError(nil)
		return "degraded"
	case err != nil:
		acc.CloseWithError(apperrors.SourceUnavailable("reading process output").WithCause(err))
		return "failed"
	default:
		acc.CloseWithError(nil)
		return "ok"
	}
}

// Close terminates a process that is still running and waits for the I/O
// goroutines to drain.
func (it *externalIter) Close() error {
	var errs []error
	if it.out != nil {
		errs = append(errs, it.out.Close())
	}
	if it.handle != nil {
		if err := it.handle.Terminate(); err != nil {
			it.env.log().Warn("terminate failed", logger.ErrorFields(it.e.label(), err))
			errs = append(errs, err)
		}
		errs = append(errs, it.group.Wait())
	}
	return errors.Join(errs...)
}

func brokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}
