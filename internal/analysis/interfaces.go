package analysis

import (
	"context"
	"time"
)

// StatusPoller fetches the current status of one job.
type StatusPoller interface {
	GetStatus(ctx context.Context, analysisID string) (Snapshot, error)
}

// Starter begins execution of a prepared analysis.
type Starter interface {
	StartAnalysis(ctx context.Context, analysisID string) error
}

// Backend is the subset of the API the foreground runner needs.
type Backend interface {
	Starter
	StatusPoller
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
