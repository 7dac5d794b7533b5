package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/inventory"
	"github.com/jbweber/hvctl/internal/runner"
)

func newVolumeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "volume",
		Aliases: []string{"vol"},
		Short:   "Manage storage volumes",
		Long: `Manage volumes inside a storage pool. Every subcommand takes the pool
name as its first argument.`,
	}

	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "delete",
		short: "Delete volumes",
		kind:  entity.KindVolume,
		op: func(a *app) (runner.Operation, error) {
			return runner.Delete{Idempotent: a.cfg.Idempotent}, nil
		},
	}))
	cmd.AddCommand(newLifecycleCmd(a, verb{
		use:   "wipe",
		short: "Overwrite volume contents with zeroes",
		kind:  entity.KindVolume,
		op: func(*app) (runner.Operation, error) {
			return runner.Wipe{}, nil
		},
	}))
	cmd.AddCommand(newVolumeResizeCmd(a))
	cmd.AddCommand(newDefineCmd(a, entity.KindVolume))
	cmd.AddCommand(newXMLCmd(a, entity.KindVolume))
	cmd.AddCommand(newVolumeListCmd(a))
	cmd.AddCommand(newVolumeInfoCmd(a))
	return cmd
}

func newVolumeResizeCmd(a *app) *cobra.Command {
	var (
		capacity string
		delta    bool
		shrink   bool
		allocate bool
	)
	return newLifecycleCmd(a, verb{
		use:   "resize",
		short: "Change volume capacity",
		long: `Change the capacity of volumes. Sizes accept unit suffixes such as 512M,
10GiB or 1T. With --delta the size is added to the current capacity, or
subtracted when combined with --shrink.`,
		kind: entity.KindVolume,
		flags: func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&capacity, "capacity", "", "new capacity, or the change with --delta")
			cmd.Flags().BoolVar(&delta, "delta", false, "treat --capacity as a change to the current size")
			cmd.Flags().BoolVar(&shrink, "shrink", false, "allow the volume to get smaller")
			cmd.Flags().BoolVar(&allocate, "allocate", false, "allocate the new space instead of leaving it sparse")
			_ = cmd.MarkFlagRequired("capacity")
		},
		op: func(a *app) (runner.Operation, error) {
			size, err := parseSize(capacity)
			if err != nil {
				return nil, err
			}
			if delta && size == 0 {
				return nil, errors.New("--capacity must be non-zero with --delta")
			}
			return runner.Resize{
				Capacity:   size,
				Delta:      delta,
				Shrink:     shrink,
				Allocate:   allocate,
				Idempotent: a.cfg.Idempotent,
			}, nil
		},
	})
}

// parseSize reads a byte count. Bare numbers are bytes.
func parseSize(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("--capacity is required")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}

func newVolumeListCmd(a *app) *cobra.Command {
	var sf selectFlags
	cmd := &cobra.Command{
		Use:   "list POOL",
		Short: "List volumes in a storage pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sf.all = true
			sel, err := sf.selector(nil)
			if err != nil {
				return usageError(cmd, err.Error())
			}
			ctx := cmd.Context()
			return a.withLister(ctx, func(l inventory.Lister) error {
				all, err := inventory.ListVolumes(ctx, l, args[0])
				if err != nil {
					return infoError(err)
				}
				var rows []inventory.VolumeInfo
				for _, v := range all {
					if sel.Matches(v.Name, false, true) {
						rows = append(rows, v)
					}
				}
				return a.print(a.formatter().FormatVolumeList(rows))
			})
		},
	}
	sf.register(cmd, false)
	_ = cmd.Flags().MarkHidden("all")
	_ = cmd.Flags().MarkHidden("summary")
	return cmd
}

func newVolumeInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info POOL NAME",
		Short: "Show details about a volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withLister(ctx, func(l inventory.Lister) error {
				v, err := inventory.Volume(ctx, l, args[0], args[1])
				if err != nil {
					return infoError(err)
				}
				return a.print(a.formatter().FormatVolume(v))
			})
		},
	}
}
