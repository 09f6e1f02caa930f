package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pq2pg/internal/worklist"
)

func newSeedCmd(o *rootOpts) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Add keys to the work list without loading anything",
		Long: `Seed adds keys to the work list as Pending. By default the keys come from
listing the bucket through s3.prefix and s3.pattern. With --from-file they
are read from a text file instead, one key per line; blank lines and lines
starting with '#' are ignored.

Keys already in the work list keep their state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.valid(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			c, err := newContainer(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			var matched, added int
			if fromFile != "" {
				keys, err := worklist.ImportList(fromFile)
				if err != nil {
					return err
				}
				matched = len(keys)
				if added, err = c.wl.Initialize(ctx, keys); err != nil {
					return err
				}
			} else if matched, added, err = c.discover(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d new of %d keys\n", added, matched)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "from-file", "", "read keys from this file instead of listing the bucket")
	return cmd
}
