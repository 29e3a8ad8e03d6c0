package services

import (
	"errors"
	"fmt"

	"github.com/ersonp/dimload/internal/domain/entities"
)

var (
	// ErrEmptyNaturalKey is returned when a natural key is empty after normalization.
	ErrEmptyNaturalKey = errors.New("empty natural key")
	// ErrUnknownDimension is returned for a dimension name outside the warehouse model.
	ErrUnknownDimension = errors.New("unknown dimension")
	// ErrMixedBatch is returned when a record's measures don't match the batch kind.
	ErrMixedBatch = errors.New("record kind does not match batch kind")
)

// PersistenceError reports a durable storage failure. It is fatal for the batch.
type PersistenceError struct {
	Op         string             // what was being done, e.g. "inserting"
	Dimension  entities.Dimension // set for dimension operations
	NaturalKey string             // set for single-value operations
	Kind       entities.FactKind  // set for fact appends
	Err        error
}

func (e *PersistenceError) Error() string {
	switch {
	case e.NaturalKey != "":
		return fmt.Sprintf("%s %s %q: %v", e.Op, e.Dimension, e.NaturalKey, e.Err)
	case e.Dimension != "":
		return fmt.Sprintf("%s %s dimension: %v", e.Op, e.Dimension, e.Err)
	case e.Kind != "":
		return fmt.Sprintf("%s %s rows: %v", e.Op, e.Kind.Table(), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IssueKind classifies a non-fatal problem found while reconciling.
type IssueKind string

// Issue kinds.
const (
	// IssueValidationDrop marks a record skipped for a missing natural key.
	IssueValidationDrop IssueKind = "validation_drop"
	// IssueMeasureClamp marks a negative measure rewritten to zero.
	IssueMeasureClamp IssueKind = "measure_clamp"
)

// LoadIssue is a non-fatal problem with a single record.
type LoadIssue struct {
	Kind    IssueKind
	Line    int    // Line number (1-indexed, 0 if unknown)
	Field   string // Which field has the issue
	Value   string // The offending value
	Message string // Human-readable message
}

func (i LoadIssue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s", i.Line, i.Message)
	}
	return i.Message
}
