// Package tracker follows any number of running analyses in the background.
// A single loop polls every non-terminal job on a fixed period while at least
// one job is tracked, applies each tick's results atomically, announces
// start/finish through a notify.Emitter exactly once per job and kind, and
// drops finished jobs after a grace period.
package tracker

import (
	"time"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
)

// InitialMessage is the message a job carries until the backend supplies one.
const InitialMessage = "Starting analysis..."

// Job is the tracker's view of one analysis.
type Job struct {
	ID          string          `json:"job_id"`
	DisplayName string          `json:"display_name"`
	GroupLabel  string          `json:"group_label"`
	Status      analysis.Status `json:"status"`
	Progress    float64         `json:"progress"`
	Message     string          `json:"message"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has completed or failed.
func (j Job) Terminal() bool {
	return j.Status.Terminal()
}

func (j Job) clone() Job {
	if j.FinishedAt != nil {
		finished := *j.FinishedAt
		j.FinishedAt = &finished
	}
	return j
}
