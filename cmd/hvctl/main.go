package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbweber/hvctl/internal/batch"
)

var (
	version = "dev"
	commit  = "unknown"
)

// exitError carries a process exit code out of a command. err may be nil
// when everything worth saying has already been printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newApp(os.Stdout, os.Stderr), os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the exit code.
func execute(ctx context.Context, a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)

	if closeErr := a.close(ctx); closeErr != nil {
		_, _ = fmt.Fprintf(a.stderr, "Warning: %v\n", closeErr)
	}

	if err == nil {
		return batch.ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return batch.ExitFailure
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "hvctl",
		Short: "hvctl - libvirt lifecycle management tool",
		Long: `hvctl manages the lifecycle of libvirt domains, storage pools and
storage volumes.

Every lifecycle verb accepts one or more names, or selects objects with
--all and --match. Operations on many objects run in parallel, each on its
own connection, and finish with a summary of the results.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	a.flags.register(root)

	root.AddCommand(newDomainCmd(a))
	root.AddCommand(newPoolCmd(a))
	root.AddCommand(newVolumeCmd(a))
	root.AddCommand(newTestConnCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hvctl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.stdout, "hvctl %s (commit: %s)\n", version, commit)
			return err
		},
	}
}

func newTestConnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test-conn",
		Short: "Test libvirt connection",
		Long:  `Test connectivity to the libvirt daemon and display version information.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hv, err := a.conn(cmd.Context())
			if err != nil {
				return err
			}
			info := hv.info
			_, _ = fmt.Fprintln(a.stdout, "✓ Connected to libvirt daemon")
			_, _ = fmt.Fprintf(a.stdout, "✓ Libvirt version: %s\n", info.Version)
			_, _ = fmt.Fprintf(a.stdout, "✓ Hypervisor hostname: %s\n", info.Hostname)
			_, _ = fmt.Fprintf(a.stdout, "✓ Connection URI: %s\n", info.URI)
			if a.cfg.ReadOnly {
				_, _ = fmt.Fprintln(a.stdout, "✓ Read-only connection")
			}
			_, err = fmt.Fprintln(a.stdout, "\nConnection test successful!")
			return err
		},
	}
}
