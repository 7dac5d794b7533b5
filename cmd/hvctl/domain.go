package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/hvctl/internal/batch"
	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/inventory"
	"github.com/jbweber/hvctl/internal/runner"
)

func newDomainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "domain",
		Aliases: []string{"dom", "vm"},
		Short:   "Manage domains",
		Long: `Manage libvirt domains (virtual machines).

Names may also be UUIDs. Without names, select domains with --all or
--match, optionally narrowed with --state and --persistent/--transient.`,
	}

	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "start",
		short: "Start domains",
		kind:  entity.KindDomain,
		op: func(a *app) (runner.Operation, error) {
			return runner.Start{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "stop",
		short: "Stop domains immediately (destroy)",
		long:  `Stop domains immediately, like pulling the power cord. Transient domains disappear.`,
		kind:  entity.KindDomain,
		op: func(a *app) (runner.Operation, error) {
			return runner.Destroy{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newDomainShutdownCmd(a))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "reset",
		short: "Reset running domains",
		kind:  entity.KindDomain,
		op: func(*app) (runner.Operation, error) {
			return runner.Reset{}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "undefine",
		short: "Undefine domains",
		long:  `Remove domain definitions. A running domain keeps running as a transient domain.`,
		kind:  entity.KindDomain,
		op: func(a *app) (runner.Operation, error) {
			return runner.Undefine{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "save",
		short: "Save running domains to a managed save image and stop them",
		kind:  entity.KindDomain,
		op: func(a *app) (runner.Operation, error) {
			return runner.ManagedSave{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newAutostartCmd(a, entity.KindDomain))
	cmd.AddCommand(newDomainEditCmd(a))
	cmd.AddCommand(newDefineCmd(a, entity.KindDomain))
	cmd.AddCommand(newCreateCmd(a, entity.KindDomain))
	cmd.AddCommand(newXMLCmd(a, entity.KindDomain))
	cmd.AddCommand(newDomainListCmd(a))
	cmd.AddCommand(newDomainInfoCmd(a))
	return cmd
}

func newDomainShutdownCmd(a *app) *cobra.Command {
	var (
		timeout time.Duration
		force   bool
		changed func(string) bool
	)
	return newLifecycleCmd(a, verb{
		use:   "shutdown",
		short: "Gracefully shut down domains",
		long: `Ask domains to shut down and wait for them to stop. With --force, domains
still running after the timeout are stopped immediately.`,
		kind: entity.KindDomain,
		flags: func(cmd *cobra.Command) {
			cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait (default shutdown_timeout from config, 60s)")
			cmd.Flags().BoolVar(&force, "force", false, "stop domains that do not shut down in time")
			changed = cmd.Flags().Changed
		},
		op: func(a *app) (runner.Operation, error) {
			t := a.cfg.ShutdownTimeout
			if changed("timeout") {
				if timeout < 0 {
					return nil, errors.New("--timeout cannot be negative")
				}
				t = timeout
			}
			if force && t == 0 {
				return nil, errors.New("--force needs a non-zero --timeout")
			}
			return runner.Shutdown{Timeout: t, Force: force, Idempotent: a.cfg.Idempotent}, nil
		},
	})
}

func newAutostartCmd(a *app, kind entity.Kind) *cobra.Command {
	var disable bool
	return newLifecycleCmd(a, verb{
		use:   "autostart",
		short: "Enable or disable autostart",
		kind:  kind,
		flags: func(cmd *cobra.Command) {
			cmd.Flags().BoolVar(&disable, "disable", false, "disable autostart instead of enabling it")
		},
		op: func(a *app) (runner.Operation, error) {
			return runner.SetAutostart{Enabled: !disable, Idempotent: a.cfg.Idempotent}, nil
		},
	})
}

func newDomainEditCmd(a *app) *cobra.Command {
	var (
		memoryMiB   uint
		vcpus       uint
		title       string
		description string
		changed     func(string) bool
	)
	return newLifecycleCmd(a, verb{
		use:   "edit",
		short: "Change domain settings",
		long: `Change the persistent configuration of domains. Running domains pick up
the new settings on their next start.`,
		kind: entity.KindDomain,
		flags: func(cmd *cobra.Command) {
			cmd.Flags().UintVar(&memoryMiB, "memory", 0, "memory in MiB")
			cmd.Flags().UintVar(&vcpus, "vcpus", 0, "number of virtual CPUs")
			cmd.Flags().StringVar(&title, "title", "", "short title")
			cmd.Flags().StringVar(&description, "description", "", "description")
			changed = cmd.Flags().Changed
		},
		op: func(*app) (runner.Operation, error) {
			if !changed("memory") && !changed("vcpus") && !changed("title") && !changed("description") {
				return nil, errors.New("nothing to change: use --memory, --vcpus, --title or --description")
			}
			if changed("memory") && memoryMiB == 0 || changed("vcpus") && vcpus == 0 {
				return nil, errors.New("--memory and --vcpus must be positive")
			}
			setTitle, setDescription := changed("title"), changed("description")
			t := entity.DomainTransform(func(d *libvirtxml.Domain) error {
				if memoryMiB > 0 {
					d.Memory = &libvirtxml.DomainMemory{Value: memoryMiB, Unit: "MiB"}
					d.CurrentMemory = &libvirtxml.DomainCurrentMemory{Value: memoryMiB, Unit: "MiB"}
				}
				if vcpus > 0 {
					if d.VCPU == nil {
						d.VCPU = &libvirtxml.DomainVCPU{}
					}
					d.VCPU.Value = vcpus
					d.VCPU.Current = 0
				}
				if setTitle {
					d.Title = title
				}
				if setDescription {
					d.Description = description
				}
				return nil
			})
			return runner.ApplyTransform{Transform: t}, nil
		},
	})
}

func newDomainListCmd(a *app) *cobra.Command {
	var sf selectFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sf.all = true
			sel, err := sf.selector(nil)
			if err != nil {
				return usageError(cmd, err.Error())
			}
			ctx := cmd.Context()
			return a.withLister(ctx, func(l inventory.Lister) error {
				all, err := inventory.ListDomains(ctx, l)
				if err != nil {
					return err
				}
				var rows []inventory.DomainInfo
				for _, d := range all {
					if sel.Matches(d.Name, d.Running, d.Persistent) {
						rows = append(rows, d)
					}
				}
				return a.print(a.formatter().FormatDomainList(rows))
			})
		},
	}
	sf.register(cmd, true)
	_ = cmd.Flags().MarkHidden("all")
	_ = cmd.Flags().MarkHidden("summary")
	return cmd
}

func newDomainInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Show details about a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withLister(ctx, func(l inventory.Lister) error {
				d, err := inventory.Domain(ctx, l, args[0])
				if err != nil {
					return infoError(err)
				}
				return a.print(a.formatter().FormatDomain(d))
			})
		},
	}
}

// infoError maps a missing object onto the not found exit code.
func infoError(err error) error {
	if errors.Is(err, entity.ErrNotFound) {
		return &exitError{code: batch.ExitEntityNotFound, err: err}
	}
	return err
}
