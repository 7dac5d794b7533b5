package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/hvctl/internal/batch"
	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/inventory"
	"github.com/jbweber/hvctl/internal/runner"
)

// selectFlags are the target selection flags shared by lifecycle verbs.
type selectFlags struct {
	all        bool
	match      string
	state      string
	persistent bool
	transient  bool
	summary    bool
}

// register adds the flags. filters is false for volumes, which have no
// state or persistence.
func (f *selectFlags) register(cmd *cobra.Command, filters bool) {
	fl := cmd.Flags()
	fl.BoolVar(&f.all, "all", false, "select every object")
	fl.StringVar(&f.match, "match", "", "select objects whose name matches this regular expression")
	if filters {
		fl.StringVar(&f.state, "state", "", "only objects in this state: running, stopped")
		fl.BoolVar(&f.persistent, "persistent", false, "only persistent objects")
		fl.BoolVar(&f.transient, "transient", false, "only transient objects")
		cmd.MarkFlagsMutuallyExclusive("persistent", "transient")
	}
	fl.BoolVar(&f.summary, "summary", false, "print the results summary for a single target too")
}

func (f *selectFlags) selector(names []string) (inventory.Selector, error) {
	sel := inventory.Selector{
		Names: names,
		All:   f.all,
		State: f.state,
	}
	if f.match != "" {
		re, err := regexp.Compile(f.match)
		if err != nil {
			return inventory.Selector{}, fmt.Errorf("invalid --match pattern: %w", err)
		}
		sel.Match = re
	}
	switch {
	case f.persistent:
		sel.Persistent = boolPtr(true)
	case f.transient:
		sel.Persistent = boolPtr(false)
	}
	return sel, sel.Validate()
}

func boolPtr(b bool) *bool { return &b }

// verb describes one lifecycle subcommand.
type verb struct {
	use   string
	short string
	long  string
	kind  entity.Kind
	// op builds the operation once flags are parsed.
	op func(a *app) (runner.Operation, error)
	// flags registers verb specific flags.
	flags func(cmd *cobra.Command)
}

func newLifecycleCmd(a *app, v verb) *cobra.Command {
	var sf selectFlags
	use := v.use + " [NAME...]"
	if v.kind == entity.KindVolume {
		use = v.use + " POOL [NAME...]"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: v.short,
		Long:  v.long,
		RunE: func(cmd *cobra.Command, args []string) error {
			var pool string
			if v.kind == entity.KindVolume {
				if len(args) == 0 {
					return usageError(cmd, "a storage pool is required")
				}
				pool, args = args[0], args[1:]
			}
			sel, err := sf.selector(args)
			if err != nil {
				return usageError(cmd, err.Error())
			}
			op, err := v.op(a)
			if err != nil {
				return usageError(cmd, err.Error())
			}
			return a.runLifecycle(cmd.Context(), v.kind, pool, sel, op, sf.summary)
		},
	}
	sf.register(cmd, v.kind != entity.KindVolume)
	if v.flags != nil {
		v.flags(cmd)
	}
	return cmd
}

func usageError(cmd *cobra.Command, msg string) error {
	return &exitError{code: batch.ExitFailure, err: fmt.Errorf("%s\nRun '%s --help' for usage", msg, cmd.CommandPath())}
}

// runLifecycle applies op to the selection. One exact name runs inline on
// a single session; anything else is expanded and handed to a batch.
func (a *app) runLifecycle(ctx context.Context, kind entity.Kind, pool string, sel inventory.Selector, op runner.Operation, summary bool) error {
	hv, err := a.conn(ctx)
	if err != nil {
		return err
	}
	policy := a.cfg.Policy()

	if sel.Exact() {
		target := runner.Target{Kind: kind, Parent: pool, Name: sel.Names[0]}
		s, err := a.runInline(ctx, hv, target, op, policy)
		if summary && err == nil {
			if perr := a.printSummary(s); perr != nil {
				return perr
			}
		}
		return exitFor(s, policy, err)
	}

	var targets []runner.Target
	err = a.withLister(ctx, func(l inventory.Lister) error {
		var err error
		switch kind {
		case entity.KindDomain:
			targets, err = inventory.SelectDomains(ctx, l, sel)
		case entity.KindPool:
			targets, err = inventory.SelectPools(ctx, l, sel)
		case entity.KindVolume:
			targets, err = inventory.SelectVolumes(ctx, l, pool, sel)
		default:
			err = fmt.Errorf("cannot select %s objects", kind)
		}
		return err
	})
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		_, _ = fmt.Fprintf(a.stdout, "No %ss matched.\n", kind)
	}

	c := batch.New(hv, policy,
		batch.WithReporter(batch.ReporterFunc(a.report)),
		batch.WithMetrics(a.metrics),
	)
	s, err := c.Run(ctx, targets, op)

	if len(targets) > 0 {
		_, _ = fmt.Fprintf(a.stdout, "Finished %s specified %ss.\n\n", op.Terms().Continuous, kind)
	}
	if perr := a.printSummary(s); perr != nil && err == nil {
		err = perr
	}
	return exitFor(s, policy, err)
}

// runInline runs op against one target on one session and classifies the
// result the same way a batch would.
func (a *app) runInline(ctx context.Context, hv *hypervisor, t runner.Target, op runner.Operation, policy batch.Policy) (batch.Summary, error) {
	start := time.Now()

	var res runner.Result[entity.LifecycleResult]
	s, err := hv.Open(ctx)
	if err != nil {
		res = runner.Result[entity.LifecycleResult]{
			Target:     t,
			Connected:  runner.Failed,
			AttrsFound: true,
			Err:        fmt.Errorf("connect: %w", err),
		}
	} else {
		res = runner.Inline(ctx, s, t, op)
		if cerr := s.Close(); cerr != nil {
			a.log.Debug().Err(cerr).Msg("failed to close session")
		}
	}

	v := batch.Classify(res, op, policy)
	a.metrics.ObserveOperation(t.Kind.String(), op.Name(), v.Outcome.String(), time.Since(start))
	a.report(batch.Event{Target: t, Operation: op.Name(), Verdict: v})

	if v.Outcome == batch.OutcomeDefect {
		return batch.Single(v), fmt.Errorf("%w: internal error processing %s: %w", entity.ErrUnsupported, t, res.Err)
	}
	return batch.Single(v), nil
}

// report prints one per-target message. Failures also go to the log with
// the underlying error.
func (a *app) report(e batch.Event) {
	_, _ = fmt.Fprintln(a.stdout, e.Verdict.Message)
	if e.Verdict.Err != nil && !e.Verdict.Success {
		a.log.Info().
			Err(e.Verdict.Err).
			Str("target", e.Target.String()).
			Str("op", e.Operation).
			Str("outcome", e.Verdict.Outcome.String()).
			Msg("operation failed")
	}
}

func (a *app) printSummary(s batch.Summary) error {
	return a.print(a.formatter().FormatSummary(s))
}

func exitFor(s batch.Summary, policy batch.Policy, err error) error {
	code := batch.ExitCode(s, policy, err)
	if code == batch.ExitSuccess {
		return nil
	}
	return &exitError{code: code, err: err}
}

// newDefineCmd creates an object of kind from an XML file.
func newDefineCmd(a *app, kind entity.Kind) *cobra.Command {
	return newDocumentCmd(a, kind, "define", func(ctx context.Context, hv runner.Connector, pool, doc string) runner.Result[string] {
		return runner.RunDefine(ctx, hv, kind, pool, doc)
	})
}

func newCreateCmd(a *app, kind entity.Kind) *cobra.Command {
	var opts entity.CreateOptions
	cmd := newDocumentCmd(a, kind, "create", func(ctx context.Context, hv runner.Connector, _, doc string) runner.Result[string] {
		return runner.RunCreate(ctx, hv, kind, doc, opts)
	})
	cmd.Long = fmt.Sprintf("Start a %s from an XML file without defining it. It is gone once it stops.", kind)
	if kind == entity.KindDomain {
		cmd.Flags().BoolVar(&opts.Paused, "paused", false, "start the domain paused")
		cmd.Flags().BoolVar(&opts.ResetNVRAM, "reset-nvram", false, "reset any existing NVRAM state first")
	}
	return cmd
}

// newDocumentCmd builds a command that hands the contents of FILE to
// libvirt. action is define or create.
func newDocumentCmd(a *app, kind entity.Kind, action string, run func(ctx context.Context, hv runner.Connector, pool, doc string) runner.Result[string]) *cobra.Command {
	use, nargs := action+" FILE", 1
	if kind == entity.KindVolume {
		use, nargs = action+" POOL FILE", 2
	}
	short := fmt.Sprintf("Define a new %s from an XML file", kind)
	if action == "create" {
		short = fmt.Sprintf("Start a transient %s from an XML file", kind)
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pool string
			if kind == entity.KindVolume {
				pool, args = args[0], args[1:]
			}
			path := args[0]
			doc, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			ctx := cmd.Context()
			hv, err := a.conn(ctx)
			if err != nil {
				return err
			}
			return a.documentResult(action, kind, pool, path, run(ctx, hv, pool, string(doc)))
		},
	}
}

func (a *app) documentResult(action string, kind entity.Kind, pool, path string, res runner.Result[string]) error {
	done := "Defined"
	if action == "create" {
		done = "Created"
	}
	switch {
	case res.OK():
		_, _ = fmt.Fprintf(a.stdout, "%s %s %q.\n", done, kind, res.Value)
		return nil
	case res.FailedStage() == runner.StagePostproc:
		_, _ = fmt.Fprintf(a.stdout, "%s %s from %q, but could not read back its name.\n", done, kind, path)
		return nil
	case res.NotFound():
		_, _ = fmt.Fprintf(a.stdout, "Could not find %s %q.\n", entity.KindPool, pool)
		return &exitError{code: batch.ExitParentNotFound}
	case res.FailedStage() == runner.StageConnect:
		return &exitError{code: batch.ExitFailure, err: res.Err}
	default:
		_, _ = fmt.Fprintf(a.stdout, "Failed to %s %s from %q: %v.\n", action, kind, path, res.Err)
		a.log.Debug().Err(res.Err).Str("file", path).Msgf("%s failed", action)
		return &exitError{code: batch.ExitOperationFailed}
	}
}

func newXMLCmd(a *app, kind entity.Kind) *cobra.Command {
	use, nargs := "xml NAME", 1
	if kind == entity.KindVolume {
		use, nargs = "xml POOL NAME", 2
	}
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Print the XML configuration of a %s", kind),
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := runner.Target{Kind: kind, Name: args[0]}
			if kind == entity.KindVolume {
				t = runner.VolumeTarget(args[0], args[1])
			}

			ctx := cmd.Context()
			hv, err := a.conn(ctx)
			if err != nil {
				return err
			}
			res := runner.RunConfig(ctx, hv, t)
			switch {
			case res.OK():
				doc := res.Value
				if !strings.HasSuffix(doc, "\n") {
					doc += "\n"
				}
				_, err := io.WriteString(a.stdout, doc)
				return err
			case res.NotFound() && res.FailedStage() == runner.StageEntity && kind == entity.KindVolume:
				return &exitError{code: batch.ExitParentNotFound, err: res.Err}
			case res.NotFound():
				return &exitError{code: batch.ExitEntityNotFound, err: res.Err}
			default:
				return res.Err
			}
		},
	}
}
