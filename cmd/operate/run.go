package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/jae-editor/operate/buffer"
	"github.com/jae-editor/operate/config"
	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/executor"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/observability"
	"github.com/jae-editor/operate/operator"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/session"
	"github.com/jae-editor/operate/sink"
	"github.com/jae-editor/operate/version"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitUsage     = 2
	exitCancelled = 130
)

type options struct {
	ops           []string
	preview       int
	tail          int
	commit        bool
	output        string
	configFile    string
	start, end    int64
	format        string
	logLevel      string
	allowDegraded bool
	showVersion   bool
	input         string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := pflag.NewFlagSet("operate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringArrayVar(&o.ops, "op", nil, `operator as JSON, repeatable in pipeline order, e.g. '{"kind":"lines"}'`)
	fs.IntVar(&o.preview, "preview", 0, "rows to preview (default from config)")
	fs.IntVar(&o.tail, "tail", 0, "preview the last N rows instead of the first")
	fs.BoolVar(&o.commit, "commit", false, "replace the region with the result and save")
	fs.StringVarP(&o.output, "output", "o", "", "file to save a commit to (default: the input file, or stdout for -)")
	fs.StringVarP(&o.configFile, "config", "c", "", "config file")
	fs.Int64Var(&o.start, "start", 0, "region start offset")
	fs.Int64Var(&o.end, "end", -1, "region end offset (default: end of input)")
	fs.StringVar(&o.format, "format", "text", "preview format: text or json")
	fs.StringVar(&o.logLevel, "log-level", "", "log level override")
	fs.BoolVar(&o.allowDegraded, "allow-degraded", false, "commit runs that completed degraded")
	fs.BoolVar(&o.showVersion, "version", false, "print the version and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: operate [flags] FILE|-")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.showVersion {
		return &o, nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("expected one input, got %d", fs.NArg())
	}
	o.input = fs.Arg(0)
	if len(o.ops) == 0 {
		return nil, fmt.Errorf("at least one --op is required")
	}
	if o.format != "text" && o.format != "json" {
		return nil, fmt.Errorf("--format must be text or json")
	}
	return &o, nil
}

func loadConfig(o *options) (*config.Config, error) {
	var cfg config.Config
	var loadOpts []config.LoaderOption
	if o.configFile != "" {
		loadOpts = append(loadOpts, config.WithConfigFile(o.configFile))
	}
	if err := config.Load("operate", &cfg, loadOpts...); err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.allowDegraded {
		cfg.Commit.AllowDegraded = true
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if o.showVersion {
		fmt.Fprintln(stdout, "operate", version.Get())
		return exitOK
	}
	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	log := logger.NewWithWriter(&cfg.Logging, cfg.Name, stderr)
	logger.SetGlobalLogger(log)

	shutdown, err := observability.Setup(ctx, cfg.Observability, cfg.Name, cfg.Environment)
	if err != nil {
		log.Warn("observability disabled", logger.ErrorFields("setup", err))
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("observability shutdown failed", logger.ErrorFields("shutdown", err))
			}
		}()
	}

	specs := make([]operator.Spec, len(o.ops))
	for i, op := range o.ops {
		if specs[i], err = operator.ParseSpec([]byte(op)); err != nil {
			fmt.Fprintf(stderr, "--op %d: %v\n", i+1, err)
			return exitUsage
		}
	}

	var (
		target session.Buffer
		size   int64
		buf    *buffer.Buffer
	)
	if o.commit || o.input == "-" {
		if buf, err = readInput(o.input, stdin); err != nil {
			return report(stderr, err)
		}
		target, size = buf, buf.Len()
	} else {
		f, err := buffer.OpenFile(o.input)
		if err != nil {
			return report(stderr, err)
		}
		defer func() { _ = f.Close() }()
		target, size = f, f.Len()
	}
	region := record.Range{Start: o.start, End: o.end}
	if region.End < 0 {
		region.End = size
	}

	s, err := session.New(target, region,
		session.FromConfig(cfg),
		session.WithLogger(log),
		session.WithMetrics(observability.Default()),
		session.WithProgress(func(p executor.Progress) {
			log.Debug("progress", logger.Fields(logger.FieldStage, p.Stage, logger.FieldOperator, p.Operator, logger.FieldRecords, p.Records))
		}),
	)
	if err != nil {
		return report(stderr, err)
	}
	defer func() { _ = s.Close() }()

	if err := s.SetOperators(specs); err != nil {
		return report(stderr, err)
	}

	if o.commit {
		return commit(ctx, s, buf, o, stdout, stderr)
	}
	return preview(ctx, s, cfg, o, stdout, stderr)
}

func readInput(path string, stdin io.Reader) (*buffer.Buffer, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, apperrors.SourceUnavailable("cannot read standard input").WithCause(err)
		}
		return buffer.New(data), nil
	}
	return buffer.ReadFile(path)
}

func preview(ctx context.Context, s *session.Session, cfg *config.Config, o *options, stdout, stderr io.Writer) int {
	p, err := s.Preview(ctx)
	if err != nil {
		return report(stderr, err)
	}
	var snap *sink.Snapshot
	if o.tail > 0 {
		snap, err = p.Tail(ctx, o.tail)
	} else {
		limit := o.preview
		if limit <= 0 {
			limit = cfg.Executor.PreviewLimit
		}
		snap, err = p.Head(ctx, limit)
	}
	if werr := writeRows(stdout, o.format, snap.Rows); werr != nil {
		return report(stderr, werr)
	}
	if err != nil {
		return report(stderr, err)
	}
	summary := fmt.Sprintf("-- %d rows, %s", len(snap.Rows), snap.Status())
	if snap.More {
		summary += ", more available"
	}
	if snap.Skipped > 0 {
		summary += fmt.Sprintf(", %d earlier rows skipped", snap.Skipped)
	}
	if n := snap.IssueCount(); n > 0 {
		summary += fmt.Sprintf(", %d with issues", n)
	}
	for _, d := range snap.Degraded {
		summary += "\n-- degraded: " + d.Error()
	}
	fmt.Fprintln(stderr, summary)
	return exitOK
}

func writeRows(w io.Writer, format string, rows []sink.Row) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range rows {
		line := r.Text
		if r.Issue != "" {
			line += "\t# " + r.Issue
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func commit(ctx context.Context, s *session.Session, buf *buffer.Buffer, o *options, stdout, stderr io.Writer) int {
	res, err := s.Commit(ctx)
	if err != nil {
		return report(stderr, err)
	}
	target := o.output
	if target == "" && o.input != "-" {
		target = o.input
	}
	if target == "" || target == "-" {
		if _, err := stdout.Write(buf.Bytes()); err != nil {
			return report(stderr, err)
		}
	} else if err := buf.WriteFile(target); err != nil {
		return report(stderr, err)
	}
	fmt.Fprintf(stderr, "-- committed %d records (%d bytes)\n", res.Records, res.Bytes)
	for _, d := range res.Degraded {
		fmt.Fprintln(stderr, "-- degraded: "+d.Error())
	}
	return exitOK
}

// report prints err and maps it to an exit code.
func report(stderr io.Writer, err error) int {
	r := apperrors.Describe(err)
	fmt.Fprintln(stderr, r.String())
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeConfigValidation, apperrors.ErrCodeInvalidRegion:
		return exitUsage
	case apperrors.ErrCodeCancelled:
		return exitCancelled
	}
	if app, ok := apperrors.AsAppError(err); ok && app.Details["kind"] == string(apperrors.ErrCodeCancelled) {
		return exitCancelled
	}
	return exitFailed
}
