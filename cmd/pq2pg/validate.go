package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"pq2pg/internal/config"
)

func newValidateCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the job config and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues := config.Validate(o.cfg)
			for _, iss := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if config.HasErrors(issues) {
				return errors.Errorf("%s: %w", o.configPath, errInvalidConfig)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", o.configPath)
			return nil
		},
	}
}
