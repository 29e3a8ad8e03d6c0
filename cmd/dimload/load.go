package main

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/dimload/internal/application/handlers"
	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/services"
)

type loadFlags struct {
	kind    string
	format  string
	pattern string
}

func newLoadCmd() *cobra.Command {
	var flags loadFlags

	cmd := &cobra.Command{
		Use:   "load <file|directory|glob>",
		Short: "Load a task log or allocation export",
		Long: `Loads a JSON or CSV export as one batch. Unknown clients, projects, employees
and tasks are added to their dimensions; rows missing any of them are skipped.
A directory loads every file matching --pattern, one batch per file. A glob such
as 'exports/*.csv' loads the files it matches the same way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.kind, "type", "t", "", "Fact table to load (task-log, allocation)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", DefaultLoadFormat, "File format (json, csv, auto)")
	cmd.Flags().StringVarP(&flags.pattern, "pattern", "p", DefaultLoadGlob, "File pattern when loading a directory")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runLoad(cmd *cobra.Command, path string, flags loadFlags) error {
	kind, ok := entities.ParseFactKind(flags.kind)
	if !ok {
		return fmt.Errorf("invalid --type %q (valid: task-log, allocation)", flags.kind)
	}
	if !slices.Contains(validFormats, flags.format) {
		return fmt.Errorf("invalid --format %q (valid: %s)", flags.format, strings.Join(validFormats, ", "))
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	opts := handlers.LoadOptions{Kind: kind, Format: flags.format}

	return withDeps(ctx, func(deps *Deps) error {
		switch {
		case handlers.IsDirectory(path):
			return loadDirectory(deps, cmd, path, flags.pattern, opts)
		case handlers.IsGlobPattern(path):
			return loadDirectory(deps, cmd, filepath.Dir(path), filepath.Base(path), opts)
		}

		fmt.Fprintf(out, "Loading %s...\n", path)
		result, err := deps.LoadHandler.Handle(ctx, path, opts)
		if err != nil {
			return err
		}
		displaySummary(out, result.Summary)
		return nil
	})
}

func loadDirectory(deps *Deps, cmd *cobra.Command, dir, pattern string, opts handlers.LoadOptions) error {
	out := cmd.OutOrStdout()
	result, err := deps.LoadHandler.HandleDirectory(cmd.Context(), dir, pattern, opts, func(file string) {
		fmt.Fprintf(out, "Loading %s...\n", filepath.Base(file))
	})
	if err != nil {
		return err
	}
	displayBatchResult(out, result)
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d of %d files failed", len(result.Errors), len(result.Errors)+result.TotalFiles)
	}
	return nil
}

func displaySummary(w io.Writer, s *services.LoadSummary) {
	fmt.Fprintf(w, "Run %s (%s)\n", s.RunID, s.Kind)
	fmt.Fprintf(w, "  processed: %d\n", s.Processed)
	fmt.Fprintf(w, "  appended:  %d\n", s.Appended)
	fmt.Fprintf(w, "  dropped:   %d\n", s.Dropped)
	fmt.Fprintf(w, "  clamped:   %d\n", s.Clamped)
	fmt.Fprintf(w, "  new dimension values: %d\n", s.Created)

	if len(s.Issues) == 0 {
		return
	}

	fmt.Fprintf(w, "\nIssues (%d):\n", len(s.Issues))
	for i, issue := range s.Issues {
		if i == MaxIssuesShown {
			fmt.Fprintf(w, "  ... and %d more\n", len(s.Issues)-MaxIssuesShown)
			break
		}
		fmt.Fprintf(w, "  [%s] %s\n", issue.Kind, issue)
	}
}

func displayBatchResult(w io.Writer, result *handlers.LoadBatchResult) {
	for _, fr := range result.FileResults {
		fmt.Fprintf(w, "\n%s\n", filepath.Base(fr.FilePath))
		displaySummary(w, fr.Summary)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "\nFailed files (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  %v\n", err)
		}
	}

	fmt.Fprintf(w, "\nLoaded %d files: %d rows appended, %d issues\n",
		result.TotalFiles, result.TotalAppended, result.TotalIssues)
}
