package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/powell/internal/optimization/objectives"
)

func newObjectivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "objectives",
		Short: "List the registered objective functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDIMENSION\tDESCRIPTION")
			for _, o := range objectives.All() {
				dim := fmt.Sprintf(">= %d", o.MinDim)
				if o.MaxDim == o.MinDim {
					dim = fmt.Sprintf("%d", o.MinDim)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", o.Name, dim, o.Description)
			}
			return w.Flush()
		},
	}
}
