package analysis

import (
	"errors"
	"fmt"
)

// ErrUnknownStatus is returned when the backend reports a status outside the known set.
var ErrUnknownStatus = errors.New("unknown backend status")

// MapStatus collapses a backend status into the client-facing status.
func MapStatus(s BackendStatus) (Status, error) {
	switch s {
	case BackendPending, BackendQueryGeneration, BackendQueryApproval:
		return StatusPending, nil
	case BackendExecuting, BackendAnalyzing:
		return StatusRunning, nil
	case BackendCompleted:
		return StatusCompleted, nil
	case BackendFailed:
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
}
