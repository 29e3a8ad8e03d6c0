package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/mocks"
)

var testDate = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

func taskLog(client, project, employee, task string, hours string) entities.FactRecord {
	return entities.FactRecord{
		Keys: entities.DimensionKeys{Client: client, Project: project, Employee: employee, Task: task},
		Measures: &entities.TaskLogMeasures{
			Date:       testDate,
			Hours:      decimal.RequireFromString(hours),
			IsBillable: true,
		},
	}
}

func allocation(client, project, employee, task, role string, hours string) entities.FactRecord {
	return entities.FactRecord{
		Keys: entities.DimensionKeys{Client: client, Project: project, Employee: employee, Task: task},
		Role: role,
		Measures: &entities.AllocationMeasures{
			StartDate:      testDate,
			EndDate:        testDate.AddDate(0, 1, 0),
			EstimatedHours: decimal.RequireFromString(hours),
		},
	}
}

// failingResolver fails for one natural key and hands out sequential keys otherwise.
type failingResolver struct {
	failOn string
	err    error
	calls  int
}

func (f *failingResolver) ResolveOrCreate(_ context.Context, _ entities.Dimension, naturalKey string, _ entities.Attributes) (int64, error) {
	f.calls++
	if naturalKey == f.failOn {
		return 0, f.err
	}
	return int64(f.calls), nil
}

func TestFactReconciler_Reconcile_Example(t *testing.T) {
	wh := mocks.NewWarehouse()
	resolver := NewDimensionResolver(wh, nil)
	reconciler := NewFactReconciler(resolver, nil)

	records := []entities.FactRecord{
		taskLog("Acme", "P1", "Jo", "Design", "5"),
		taskLog("Acme", "P1", "Jo", "Design", "-3"),
	}

	result, err := reconciler.Reconcile(context.Background(), records)

	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, result.Rows[0].Keys, result.Rows[1].Keys)
	assert.Zero(t, result.Dropped)
	assert.Equal(t, 1, result.Clamped)
	assert.Equal(t, 4, resolver.Created())

	first := result.Rows[0].Measures.(*entities.TaskLogMeasures)
	second := result.Rows[1].Measures.(*entities.TaskLogMeasures)
	assert.True(t, first.Hours.Equal(decimal.NewFromInt(5)))
	assert.True(t, second.Hours.Equal(decimal.Zero))

	require.Len(t, result.Issues, 1)
	assert.Equal(t, IssueMeasureClamp, result.Issues[0].Kind)
	assert.Equal(t, "hours", result.Issues[0].Field)
	assert.Equal(t, 2, result.Issues[0].Line)

	// The input record keeps its original value.
	original := records[1].Measures.(*entities.TaskLogMeasures)
	assert.True(t, original.Hours.Equal(decimal.NewFromInt(-3)))
}

func TestFactReconciler_Reconcile_DropsEmptyKeyWithoutLookup(t *testing.T) {
	wh := mocks.NewWarehouse()
	reconciler := NewFactReconciler(NewDimensionResolver(wh, nil), nil)

	result, err := reconciler.Reconcile(context.Background(), []entities.FactRecord{
		taskLog("", "P1", "Jo", "Design", "5"),
	})

	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, 1, result.Dropped)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, IssueValidationDrop, result.Issues[0].Kind)
	assert.Equal(t, "client", result.Issues[0].Field)
	assert.Zero(t, wh.ListCallCount)
	assert.Zero(t, wh.GetCallCount)
	assert.Zero(t, wh.InsertCallCount)
}

func TestFactReconciler_Reconcile_DropLawPreservesOrder(t *testing.T) {
	reconciler := NewFactReconciler(NewDimensionResolver(mocks.NewWarehouse(), nil), nil)

	records := []entities.FactRecord{
		taskLog("Acme", "P1", "Jo", "Design", "1"),
		taskLog("Acme", "  ", "Jo", "Design", "2"),
		taskLog("Globex", "P2", "Sam", "Build", "3"),
		taskLog("Globex", "P2", "", "Build", "4"),
		taskLog("Initech", "P3", "Ann", "Test", "5"),
		taskLog("Initech", "P3", "Ann", "\t", "6"),
	}

	result, err := reconciler.Reconcile(context.Background(), records)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Dropped)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{result.Rows[0].Line, result.Rows[1].Line, result.Rows[2].Line})

	fields := make([]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		fields = append(fields, issue.Field)
	}
	assert.Equal(t, []string{"project", "employee", "task"}, fields)
}

func TestFactReconciler_Reconcile_UsesSourceLine(t *testing.T) {
	reconciler := NewFactReconciler(NewDimensionResolver(mocks.NewWarehouse(), nil), nil)
	rec := taskLog("Acme", "P1", "Jo", "Design", "1")
	rec.Line = 42

	result, err := reconciler.Reconcile(context.Background(), []entities.FactRecord{rec})

	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 42, result.Rows[0].Line)
}

func TestFactReconciler_Reconcile_MissingMeasures(t *testing.T) {
	reconciler := NewFactReconciler(NewDimensionResolver(mocks.NewWarehouse(), nil), nil)

	var nilTaskLog *entities.TaskLogMeasures
	records := []entities.FactRecord{
		{Keys: entities.DimensionKeys{Client: "Acme", Project: "P1", Employee: "Jo", Task: "Design"}},
		{Keys: entities.DimensionKeys{Client: "Acme", Project: "P1", Employee: "Jo", Task: "Design"}, Measures: nilTaskLog},
	}

	result, err := reconciler.Reconcile(context.Background(), records)

	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, 2, result.Dropped)
	assert.Equal(t, "measures", result.Issues[0].Field)
}

func TestFactReconciler_Reconcile_Allocation(t *testing.T) {
	wh := mocks.NewWarehouse()
	reconciler := NewFactReconciler(NewDimensionResolver(wh, nil), nil)

	rec := allocation("Acme", "P1", "Jo", "Design", "Designer", "-2.5")
	result, err := reconciler.Reconcile(context.Background(), []entities.FactRecord{rec})

	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	out, ok := result.Rows[0].Measures.(*entities.AllocationMeasures)
	require.True(t, ok)
	assert.True(t, out.EstimatedHours.Equal(decimal.Zero))
	assert.Equal(t, testDate, out.StartDate)
	assert.Equal(t, testDate.AddDate(0, 1, 0), out.EndDate)
	assert.Equal(t, 1, result.Clamped)
	assert.Equal(t, "estimated_hours", result.Issues[0].Field)
	assert.Equal(t, "-2.5", result.Issues[0].Value)

	employee, ok := wh.Value(entities.DimensionEmployee, "Jo")
	require.True(t, ok)
	assert.Equal(t, "Designer", employee.Attributes[entities.AttrRole])
}

func TestFactReconciler_Reconcile_ClampLaw(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "-3.5", expected: "0"},
		{input: "-0.01", expected: "0"},
		{input: "0", expected: "0"},
		{input: "2.25", expected: "2.25"},
		{input: "999.99", expected: "999.99"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			reconciler := NewFactReconciler(NewDimensionResolver(mocks.NewWarehouse(), nil), nil)

			result, err := reconciler.Reconcile(context.Background(), []entities.FactRecord{
				taskLog("Acme", "P1", "Jo", "Design", tt.input),
			})

			require.NoError(t, err)
			require.Len(t, result.Rows, 1)
			got := result.Rows[0].Measures.(*entities.TaskLogMeasures).Hours
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)), "got %s", got)

			input := decimal.RequireFromString(tt.input)
			assert.True(t, got.Equal(decimal.Max(input, decimal.Zero)))
		})
	}
}

func TestFactReconciler_Reconcile_ResolverErrorAbortsBatch(t *testing.T) {
	resolver := &failingResolver{failOn: "Globex", err: errors.New("connection refused")}
	reconciler := NewFactReconciler(resolver, nil)

	result, err := reconciler.Reconcile(context.Background(), []entities.FactRecord{
		taskLog("Acme", "P1", "Jo", "Design", "1"),
		taskLog("Globex", "P1", "Jo", "Design", "1"),
		taskLog("Initech", "P1", "Jo", "Design", "1"),
	})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 5, resolver.calls, "resolution should stop at the failing key")
}

func TestFactReconciler_Reconcile_MissingDate(t *testing.T) {
	wh := mocks.NewWarehouse()
	reconciler := NewFactReconciler(NewDimensionResolver(wh, nil), nil)

	undated := taskLog("Acme", "P1", "Jo", "Design", "1")
	undated.Measures.(*entities.TaskLogMeasures).Date = time.Time{}
	unstarted := allocation("Acme", "P1", "Jo", "Design", "Designer", "1")
	unstarted.Measures.(*entities.AllocationMeasures).StartDate = time.Time{}
	openEnded := allocation("Acme", "P1", "Jo", "Design", "Designer", "1")
	openEnded.Measures.(*entities.AllocationMeasures).EndDate = time.Time{}

	result, err := reconciler.Reconcile(context.Background(), []entities.FactRecord{undated, unstarted, openEnded})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Dropped)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 3, result.Rows[0].Line)
	assert.Equal(t, "date", result.Issues[0].Field)
	assert.Equal(t, "start_date", result.Issues[1].Field)
}
