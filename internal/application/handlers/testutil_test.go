package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const taskLogCSV = `Client,Project,Employee,Task,Date,Hours,Note,Billable
Acme,P1,Jo,Design,2024-10-01,5,kickoff,true
Acme,P1,Jo,Design,2024-10-02,-3,,false
,P2,Sam,Build,2024-10-02,2,,true
`

const allocationJSON = `[
  {"client": "Acme", "project": "P1", "employee": "Jo", "task": "Design", "role": "Designer",
   "start_date": "2024-10-01", "end_date": "2024-12-31", "estimated_hours": "120"},
  {"client": "Acme", "project": "P2", "employee": "Jo", "task": "Build", "role": "Lead",
   "start_date": "2024-11-01", "estimated_hours": "40"}
]`

// writeFile creates a file under dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// clearConfigEnv keeps the process environment from leaking into config.Load.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DIMLOAD_DRIVER",
		"DIMLOAD_SQLITE_PATH",
		"DIMLOAD_POSTGRES_DSN",
		"DIMLOAD_POSTGRES_SCHEMA",
		"DIMLOAD_LOG_LEVEL",
		"DIMLOAD_RETRY_MAX_ATTEMPTS",
		"DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}
