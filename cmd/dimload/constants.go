package main

// Default limits for CLI commands.
const (
	DefaultRunsLimit  = 20
	DefaultLoadFormat = "auto"
	DefaultLoadGlob   = "*.csv"
	MaxIssuesShown    = 20
)

// Valid load formats.
var validFormats = []string{"auto", "json", "csv"}
