package entities

import "time"

// LoadRunStatus is the outcome of an orchestrated batch.
type LoadRunStatus string

// Load run statuses.
const (
	LoadRunSuccess LoadRunStatus = "success"
	LoadRunFailed  LoadRunStatus = "failed"
)

// LoadRun is one entry of the load-run ledger.
type LoadRun struct {
	ID         string        `json:"id"`
	Kind       FactKind      `json:"kind"`
	Source     string        `json:"source,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     LoadRunStatus `json:"status"`
	Processed  int           `json:"processed"`
	Dropped    int           `json:"dropped"`
	Clamped    int           `json:"clamped"`
	Created    int           `json:"created"`
	Appended   int           `json:"appended"`
	Error      string        `json:"error,omitempty"`
}
