package main

import (
	"github.com/spf13/cobra"

	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/inventory"
	"github.com/jbweber/hvctl/internal/runner"
)

func newPoolCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Manage storage pools",
	}

	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "start",
		short: "Start storage pools",
		kind:  entity.KindPool,
		op: func(a *app) (runner.Operation, error) {
			return runner.Start{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "stop",
		short: "Stop storage pools",
		kind:  entity.KindPool,
		op: func(a *app) (runner.Operation, error) {
			return runner.Destroy{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "undefine",
		short: "Undefine storage pools",
		kind:  entity.KindPool,
		op: func(a *app) (runner.Operation, error) {
			return runner.Undefine{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "build",
		short: "Build the underlying storage for pools",
		kind:  entity.KindPool,
		op: func(*app) (runner.Operation, error) {
			return runner.Build{}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "refresh",
		short: "Rescan running pools for volumes",
		kind:  entity.KindPool,
		op: func(*app) (runner.Operation, error) {
			return runner.Refresh{}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "delete",
		short: "Delete the underlying storage of inactive pools",
		long:  `Delete the underlying storage of inactive pools. The pool definitions remain.`,
		kind:  entity.KindPool,
		op: func(a *app) (runner.Operation, error) {
			return runner.Delete{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newAutostartCmd(a, entity.KindPool))
	cmd.AddCommand(newDefineCmd(a, entity.KindPool))
	cmd.AddCommand(newCreateCmd(a, entity.KindPool))
	cmd.AddCommand(newXMLCmd(a, entity.KindPool))
	cmd.AddCommand(newPoolListCmd(a))
	cmd.AddCommand(newPoolInfoCmd(a))
	return cmd
}

func newPoolListCmd(a *app) *cobra.Command {
	var sf selectFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List storage pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sf.all = true
			sel, err := sf.selector(nil)
			if err != nil {
				return usageError(cmd, err.Error())
			}
			ctx := cmd.Context()
			return a.withLister(ctx, func(l inventory.Lister) error {
				all, err := inventory.ListPools(ctx, l)
				if err != nil {
					return err
				}
				var rows []inventory.PoolInfo
				for _, p := range all {
					if sel.Matches(p.Name, p.Running, p.Persistent) {
						rows = append(rows, p)
					}
				}
				return a.print(a.formatter().FormatPoolList(rows))
			})
		},
	}
	sf.register(cmd, true)
	_ = cmd.Flags().MarkHidden("all")
	_ = cmd.Flags().MarkHidden("summary")
	return cmd
}

func newPoolInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Show details about a storage pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withLister(ctx, func(l inventory.Lister) error {
				p, err := inventory.Pool(ctx, l, args[0])
				if err != nil {
					return infoError(err)
				}
				return a.print(a.formatter().FormatPool(p))
			})
		},
	}
}
