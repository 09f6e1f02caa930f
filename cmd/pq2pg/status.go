package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"pq2pg/internal/worklist"
)

const (
	outputText = "text"
	outputYAML = "yaml"
)

// statusDoc is the YAML form of the status output.
type statusDoc struct {
	Counts map[worklist.State]int `yaml:"counts"`
	Items  []statusItem           `yaml:"items,omitempty"`
}

type statusItem struct {
	Key     string         `yaml:"key"`
	State   worklist.State `yaml:"state"`
	Reason  string         `yaml:"reason,omitempty"`
	BatchID string         `yaml:"batch_id,omitempty"`
}

var stateColor = map[worklist.State]*color.Color{
	worklist.StatePending: color.New(color.FgYellow),
	worklist.StateClaimed: color.New(color.FgCyan),
	worklist.StateDone:    color.New(color.FgGreen),
	worklist.StateFailed:  color.New(color.FgRed),
}

func newStatusCmd(o *rootOpts) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show work list counts and every item that is not Done",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != outputText && output != outputYAML {
				return errors.Errorf("unknown output %q (want %s or %s)", output, outputText, outputYAML)
			}
			if err := o.valid(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			wl, err := worklist.Open(ctx, o.cfg.WorkLists.Dir)
			if err != nil {
				return err
			}
			defer wl.Close()

			counts, err := wl.Counts(ctx)
			if err != nil {
				return err
			}
			items, err := wl.Items(ctx)
			if err != nil {
				return err
			}

			doc := statusDoc{Counts: counts}
			for _, it := range items {
				if it.State == worklist.StateDone {
					continue
				}
				doc.Items = append(doc.Items, statusItem{Key: it.Key, State: it.State, Reason: it.Reason, BatchID: it.BatchID})
			}

			if output == outputYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(doc); err != nil {
					return errors.Errorf("encode status: %w", err)
				}
				return enc.Close()
			}
			writeStatus(cmd.OutOrStdout(), doc)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text|yaml)")
	return cmd
}

func writeStatus(w io.Writer, doc statusDoc) {
	for _, st := range worklist.States {
		stateColor[st].Fprintf(w, "%-8s", st)
		fmt.Fprintf(w, " %d\n", doc.Counts[st])
	}
	if len(doc.Items) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, it := range doc.Items {
		stateColor[it.State].Fprintf(w, "%-8s", it.State)
		fmt.Fprintf(w, " %s", it.Key)
		if it.Reason != "" {
			fmt.Fprintf(w, ": %s", it.Reason)
		}
		fmt.Fprintln(w)
	}
}
