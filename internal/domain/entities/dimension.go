package entities

import "strings"

// Dimension names a reference entity set that facts point at.
type Dimension string

// Warehouse dimensions.
const (
	DimensionClient   Dimension = "client"
	DimensionProject  Dimension = "project"
	DimensionEmployee Dimension = "employee"
	DimensionTask     Dimension = "task"
)

// AllDimensions lists every dimension in the order facts reference them.
var AllDimensions = []Dimension{
	DimensionClient,
	DimensionProject,
	DimensionEmployee,
	DimensionTask,
}

// AttrRole is the employee attribute carried by allocation records.
const AttrRole = "role"

// IsValid reports whether d is one of the warehouse dimensions.
func (d Dimension) IsValid() bool {
	switch d {
	case DimensionClient, DimensionProject, DimensionEmployee, DimensionTask:
		return true
	}
	return false
}

// Attributes are side columns stored with a dimension value when it is first created.
type Attributes map[string]string

// DimensionValue maps a natural key to its surrogate key within one dimension.
type DimensionValue struct {
	Dimension    Dimension  `json:"dimension"`
	NaturalKey   string     `json:"natural_key"`
	SurrogateKey int64      `json:"surrogate_key"`
	Attributes   Attributes `json:"attributes,omitempty"`
}

// NormalizeNaturalKey trims surrounding whitespace. Case is significant.
func NormalizeNaturalKey(key string) string {
	return strings.TrimSpace(key)
}
