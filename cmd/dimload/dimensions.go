package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/dimload/internal/domain/entities"
)

func newDimensionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dimensions <client|project|employee|task>",
		Short: "List the values of a dimension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(deps *Deps) error {
				result, err := deps.CatalogHandler.HandleDimension(ctx, args[0])
				if err != nil {
					return err
				}
				displayDimension(cmd.OutOrStdout(), result.Dimension, result.Values)
				return nil
			})
		},
	}
}

func displayDimension(w io.Writer, dim entities.Dimension, values []entities.DimensionValue) {
	if len(values) == 0 {
		fmt.Fprintf(w, "No %s values found.\n", dim)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if dim == entities.DimensionEmployee {
		fmt.Fprintln(tw, "ID\tNAME\tROLE")
	} else {
		fmt.Fprintln(tw, "ID\tNAME")
	}
	for _, v := range values {
		if dim == entities.DimensionEmployee {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", v.SurrogateKey, v.NaturalKey, v.Attributes[entities.AttrRole])
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\n", v.SurrogateKey, v.NaturalKey)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d %s values\n", len(values), dim)
}
