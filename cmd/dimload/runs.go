package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/dimload/internal/application/handlers"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent load runs and fact table sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				result, err := deps.CatalogHandler.HandleRuns(ctx, limit)
				if err != nil {
					return err
				}
				displayRuns(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultRunsLimit, "Maximum number of runs to display")

	return cmd
}

func displayRuns(w io.Writer, result *handlers.RunsResult) {
	for _, c := range result.FactCounts {
		fmt.Fprintf(w, "%s: %d rows\n", c.Kind.Table(), c.Rows)
	}
	fmt.Fprintln(w)

	if len(result.Runs) == 0 {
		fmt.Fprintln(w, "No load runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tSTATUS\tAPPENDED\tDROPPED\tCLAMPED\tCREATED\tSOURCE")
	for _, r := range result.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Kind, r.Status,
			r.Appended, r.Dropped, r.Clamped, r.Created, r.Source)
	}
	tw.Flush()

	for _, r := range result.Runs {
		if r.Error != "" {
			fmt.Fprintf(w, "\nrun %s failed: %s\n", r.ID, r.Error)
		}
	}
}
