package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names the lifecycle moment a Notification announces.
type Kind string

// Supported notification kinds.
const (
	KindStarted   Kind = "started"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Display durations for toast style renderers.
const (
	StartedDisplay  = 3 * time.Second
	TerminalDisplay = 5 * time.Second
)

// Terminal reports whether k announces a finished job.
func (k Kind) Terminal() bool {
	return k == KindCompleted || k == KindFailed
}

// Notification is one user-facing message about a tracked analysis.
type Notification struct {
	ID          uuid.UUID     `json:"id"`
	JobID       string        `json:"job_id"`
	Kind        Kind          `json:"kind"`
	DisplayName string        `json:"display_name,omitempty"`
	GroupLabel  string        `json:"group_label,omitempty"`
	Title       string        `json:"title"`
	Detail      string        `json:"detail,omitempty"`
	TS          time.Time     `json:"ts"`
	Display     time.Duration `json:"display_ns"`
}

// New builds a Notification with its title and display duration filled in.
// detail carries the backend message, if any.
func New(kind Kind, jobID, displayName, groupLabel, detail string, ts time.Time) Notification {
	n := Notification{
		ID:          uuid.New(),
		JobID:       jobID,
		Kind:        kind,
		DisplayName: displayName,
		GroupLabel:  groupLabel,
		Detail:      detail,
		TS:          ts.UTC(),
		Display:     TerminalDisplay,
	}
	label := n.Label()
	switch kind {
	case KindStarted:
		n.Title = fmt.Sprintf("Analysis %q started in background", label)
		n.Display = StartedDisplay
	case KindCompleted:
		n.Title = fmt.Sprintf("Analysis %q completed!", label)
	case KindFailed:
		n.Title = fmt.Sprintf("Analysis %q failed", label)
	}
	return n
}

// Label is the human name of the analysis: the group label, then the display
// name, then the job id.
func (n Notification) Label() string {
	switch {
	case n.GroupLabel != "":
		return n.GroupLabel
	case n.DisplayName != "":
		return n.DisplayName
	default:
		return n.JobID
	}
}

// Key returns the deduplication key for n.
func (n Notification) Key() Key {
	return Key{JobID: n.JobID, Kind: n.Kind}
}

// Validate performs coarse validation on Notification payloads.
func (n Notification) Validate() error {
	if n.JobID == "" {
		return errors.New("job id is required")
	}
	if n.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch n.Kind {
	case KindStarted, KindCompleted, KindFailed:
	default:
		return fmt.Errorf("unknown kind %q", n.Kind)
	}
	if n.Title == "" {
		return errors.New("title is required")
	}
	return nil
}
