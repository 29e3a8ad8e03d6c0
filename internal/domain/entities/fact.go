// Package entities contains core domain data structures.
package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// FactKind selects the fact table a record belongs to.
type FactKind string

// Fact kinds.
const (
	FactTaskLog           FactKind = "task_log"
	FactProjectAllocation FactKind = "project_allocation"
)

// IsValid reports whether k is a known fact kind.
func (k FactKind) IsValid() bool {
	return k == FactTaskLog || k == FactProjectAllocation
}

// Table returns the fact table name for k.
func (k FactKind) Table() string {
	return "fact_" + string(k)
}

// ParseFactKind accepts the canonical kind or its dashed CLI spelling.
func ParseFactKind(s string) (FactKind, bool) {
	switch s {
	case "task_log", "task-log", "tasklog":
		return FactTaskLog, true
	case "project_allocation", "project-allocation", "allocation":
		return FactProjectAllocation, true
	}
	return "", false
}

// DimensionKeys holds the natural key a record carries for each dimension.
type DimensionKeys struct {
	Client   string `json:"client"`
	Project  string `json:"project"`
	Employee string `json:"employee"`
	Task     string `json:"task"`
}

// Get returns the natural key for dim.
func (k DimensionKeys) Get(dim Dimension) string {
	switch dim {
	case DimensionClient:
		return k.Client
	case DimensionProject:
		return k.Project
	case DimensionEmployee:
		return k.Employee
	case DimensionTask:
		return k.Task
	}
	return ""
}

// SurrogateKeys holds the resolved surrogate key for each dimension.
type SurrogateKeys struct {
	ClientID   int64 `json:"client_id"`
	ProjectID  int64 `json:"project_id"`
	EmployeeID int64 `json:"employee_id"`
	TaskID     int64 `json:"task_id"`
}

// Set stores id as the surrogate key for dim.
func (k *SurrogateKeys) Set(dim Dimension, id int64) {
	switch dim {
	case DimensionClient:
		k.ClientID = id
	case DimensionProject:
		k.ProjectID = id
	case DimensionEmployee:
		k.EmployeeID = id
	case DimensionTask:
		k.TaskID = id
	}
}

// FactMeasures is the per-kind payload of a fact record.
// Implemented only by *TaskLogMeasures and *AllocationMeasures.
type FactMeasures interface {
	Kind() FactKind
	factMeasures()
}

// TaskLogMeasures are the logged-time columns of fact_task_log.
type TaskLogMeasures struct {
	Date       time.Time       `json:"date"`
	Hours      decimal.Decimal `json:"hours"`
	Note       string          `json:"note,omitempty"`
	IsBillable bool            `json:"is_billable"`
}

// Kind implements FactMeasures.
func (*TaskLogMeasures) Kind() FactKind { return FactTaskLog }

func (*TaskLogMeasures) factMeasures() {}

// AllocationMeasures are the planned-time columns of fact_project_allocation.
// A zero EndDate means the allocation is open-ended.
type AllocationMeasures struct {
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date,omitempty"`
	EstimatedHours decimal.Decimal `json:"estimated_hours"`
}

// Kind implements FactMeasures.
func (*AllocationMeasures) Kind() FactKind { return FactProjectAllocation }

func (*AllocationMeasures) factMeasures() {}

// FactRecord is a raw fact that still references dimensions by natural key.
type FactRecord struct {
	Line     int           `json:"-"` // source line, 0 if unknown
	Keys     DimensionKeys `json:"keys"`
	Role     string        `json:"role,omitempty"` // employee attribute, first write wins
	Measures FactMeasures  `json:"measures"`
}

// ResolvedFactRecord is a fact row ready for the fact sink.
type ResolvedFactRecord struct {
	Line     int           `json:"-"`
	Keys     SurrogateKeys `json:"keys"`
	Measures FactMeasures  `json:"measures"`
}
