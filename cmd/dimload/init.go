package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/dimload/internal/application/handlers"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new dimload project",
		Long:  "Creates a .dimload directory with default configuration and creates the warehouse tables.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	basePath, err := projectDir()
	if err != nil {
		return err
	}

	result, err := handlers.NewInitHandler(openWarehouse).Handle(cmd.Context(), basePath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", result.ConfigPath)
	fmt.Fprintf(out, "Warehouse schema ready (%s)\n", result.Driver)
	fmt.Fprintln(out, "dimload initialized successfully!")

	return nil
}
