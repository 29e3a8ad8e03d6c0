package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/services"
	"github.com/ersonp/dimload/internal/infrastructure/parsers"
)

// LoadHandler handles loading fact files into the warehouse.
type LoadHandler struct {
	orchestrator *services.BatchOrchestrator
}

// NewLoadHandler creates a new load handler.
func NewLoadHandler(orchestrator *services.BatchOrchestrator) *LoadHandler {
	return &LoadHandler{
		orchestrator: orchestrator,
	}
}

// LoadOptions controls load behavior.
type LoadOptions struct {
	Kind   entities.FactKind // fact table the file feeds
	Format string            // "json", "csv", or "auto"
}

// LoadResult contains the result of loading one file.
type LoadResult struct {
	FilePath string
	Summary  *services.LoadSummary
}

// LoadBatchResult contains the result of loading a directory.
type LoadBatchResult struct {
	TotalFiles    int
	TotalAppended int
	TotalIssues   int
	FileResults   []*LoadResult
	Errors        []error
}

// Handle parses a file and loads it as a single batch.
func (h *LoadHandler) Handle(ctx context.Context, filePath string, opts LoadOptions) (*LoadResult, error) {
	if !opts.Kind.IsValid() {
		return nil, fmt.Errorf("invalid fact kind %q", opts.Kind)
	}

	var parser parsers.Parser
	if opts.Format == "" || opts.Format == "auto" {
		parser = parsers.ForFile(filePath)
	} else {
		parser = parsers.ForFormat(opts.Format)
	}

	if parser == nil {
		return nil, fmt.Errorf("unsupported format for file: %s", filePath)
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	raws, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(absPath), err)
	}

	summary, err := h.orchestrator.Load(ctx, services.Batch{
		Kind:    opts.Kind,
		Source:  absPath,
		Records: parsers.FactRecords(opts.Kind, raws),
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", filepath.Base(absPath), err)
	}

	return &LoadResult{
		FilePath: absPath,
		Summary:  summary,
	}, nil
}

// HandleDirectory loads every file in dirPath matching pattern, one batch per file.
// A failed file doesn't stop the others.
func (h *LoadHandler) HandleDirectory(ctx context.Context, dirPath string, pattern string, opts LoadOptions, progressFn func(file string)) (*LoadBatchResult, error) {
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("accessing path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	files, err := findFiles(absPath, pattern)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching pattern %q found in %s", pattern, absPath)
	}

	result := &LoadBatchResult{
		FileResults: make([]*LoadResult, 0, len(files)),
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if progressFn != nil {
			progressFn(file)
		}

		fileResult, err := h.Handle(ctx, file, opts)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", file, err))
			continue
		}

		result.FileResults = append(result.FileResults, fileResult)
		result.TotalFiles++
		result.TotalAppended += fileResult.Summary.Appended
		result.TotalIssues += len(fileResult.Summary.Issues)
	}

	return result, nil
}

// findFiles returns the files directly inside dirPath whose names match pattern, sorted by name.
func findFiles(dirPath string, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := filepath.Match(pattern, entry.Name())
		if err != nil {
			return nil, err
		}
		if matched {
			files = append(files, filepath.Join(dirPath, entry.Name()))
		}
	}
	return files, nil
}

// IsDirectory checks if the given path is a directory.
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsGlobPattern checks if the path contains glob characters.
func IsGlobPattern(path string) bool {
	return strings.ContainsAny(path, "*?[")
}
