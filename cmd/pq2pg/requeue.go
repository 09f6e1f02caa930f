package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pq2pg/internal/worklist"
)

func newRequeueCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue KEY...",
		Short: "Move Claimed or Failed keys back to Pending",
		Long: `Requeue returns keys to Pending so the next run picks them up again.

Claimed keys are left behind when a run stops abnormally; nothing requeues
them automatically. Requeueing a Pending key is a no-op; a Done key is
refused.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.valid(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			wl, err := worklist.Open(ctx, o.cfg.WorkLists.Dir)
			if err != nil {
				return err
			}
			defer wl.Close()

			for _, key := range args {
				if err := wl.Requeue(ctx, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", key)
			}
			return nil
		},
	}
}
