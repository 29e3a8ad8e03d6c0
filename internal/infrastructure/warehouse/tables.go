// Package warehouse holds the table layout shared by the warehouse backends.
package warehouse

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ersonp/dimload/internal/domain/entities"
)

// DateLayout is how fact dates are stored where the backend has no date type.
const DateLayout = "2006-01-02"

// DimensionTable describes the table backing one dimension.
type DimensionTable struct {
	Name      string // table name, e.g. dim_client
	IDColumn  string // surrogate key column
	KeyColumn string // natural key column, unique
	HasRole   bool   // carries the employee role attribute
}

var dimensionTables = map[entities.Dimension]DimensionTable{
	entities.DimensionClient:   {Name: "dim_client", IDColumn: "client_id", KeyColumn: "client_name"},
	entities.DimensionProject:  {Name: "dim_project", IDColumn: "project_id", KeyColumn: "project_name"},
	entities.DimensionEmployee: {Name: "dim_employee", IDColumn: "employee_id", KeyColumn: "name", HasRole: true},
	entities.DimensionTask:     {Name: "dim_task", IDColumn: "task_id", KeyColumn: "task_name"},
}

// TableFor returns the table backing dim.
func TableFor(dim entities.Dimension) (DimensionTable, error) {
	t, ok := dimensionTables[dim]
	if !ok {
		return DimensionTable{}, fmt.Errorf("unknown dimension %q", dim)
	}
	return t, nil
}

// Role returns the role attribute to store for a new dimension value.
func (t DimensionTable) Role(attrs entities.Attributes) (string, bool) {
	if !t.HasRole {
		return "", false
	}
	role, ok := attrs[entities.AttrRole]
	return role, ok && role != ""
}

// TaskLogColumns are the insert columns of fact_task_log.
var TaskLogColumns = []string{"client_id", "project_id", "employee_id", "task_id", "date", "hours", "note", "is_billable"}

// AllocationColumns are the insert columns of fact_project_allocation.
var AllocationColumns = []string{"client_id", "project_id", "employee_id", "task_id", "start_date", "end_date", "estimated_hours"}

// ColumnsFor returns the insert columns of a fact table.
func ColumnsFor(kind entities.FactKind) ([]string, error) {
	switch kind {
	case entities.FactTaskLog:
		return TaskLogColumns, nil
	case entities.FactProjectAllocation:
		return AllocationColumns, nil
	}
	return nil, fmt.Errorf("unknown fact kind %q", kind)
}

// ValueEncoder converts measure values into a backend's parameter types.
type ValueEncoder struct {
	Date    func(time.Time) any
	Decimal func(decimal.Decimal) (any, error)
}

// FactValues flattens a resolved row into values for ColumnsFor(kind).
// A zero end date becomes NULL, as does an empty note.
func FactValues(kind entities.FactKind, row entities.ResolvedFactRecord, enc ValueEncoder) ([]any, error) {
	keys := []any{row.Keys.ClientID, row.Keys.ProjectID, row.Keys.EmployeeID, row.Keys.TaskID}

	switch m := row.Measures.(type) {
	case *entities.TaskLogMeasures:
		if kind != entities.FactTaskLog || m == nil {
			break
		}
		hours, err := enc.Decimal(m.Hours)
		if err != nil {
			return nil, fmt.Errorf("line %d: encoding hours: %w", row.Line, err)
		}
		var note any
		if m.Note != "" {
			note = m.Note
		}
		return append(keys, enc.Date(m.Date), hours, note, m.IsBillable), nil
	case *entities.AllocationMeasures:
		if kind != entities.FactProjectAllocation || m == nil {
			break
		}
		hours, err := enc.Decimal(m.EstimatedHours)
		if err != nil {
			return nil, fmt.Errorf("line %d: encoding estimated hours: %w", row.Line, err)
		}
		var end any
		if !m.EndDate.IsZero() {
			end = enc.Date(m.EndDate)
		}
		return append(keys, enc.Date(m.StartDate), end, hours), nil
	}
	return nil, fmt.Errorf("line %d: measures do not match %s", row.Line, kind.Table())
}
