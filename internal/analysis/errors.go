package analysis

import (
	"errors"
	"fmt"
)

// Fallback messages used when the backend does not supply one.
const (
	DefaultStartMessage  = "Failed to start analysis"
	DefaultStatusMessage = "Failed to check status"
	DefaultFailedMessage = "Analysis failed"
)

var (
	// ErrMalformedResponse marks a response body that could not be decoded or lacks required fields.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrWaitExceeded is returned when a foreground run exceeds its configured maximum wait.
	ErrWaitExceeded = errors.New("analysis wait exceeded")
)

// APIError is a non-2xx response from the backend. Message is empty when the body
// did not carry a parseable message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// StartError reports that the start request for an analysis failed.
type StartError struct {
	AnalysisID string
	Message    string
	Err        error
}

// NewStartError builds a StartError whose message is taken from the backend when available.
func NewStartError(analysisID string, err error) *StartError {
	return &StartError{AnalysisID: analysisID, Message: userMessage(err, DefaultStartMessage), Err: err}
}

func (e *StartError) Error() string { return e.Message }

func (e *StartError) Unwrap() error { return e.Err }

// StatusError reports that a status check failed at the transport, HTTP or decode layer.
type StatusError struct {
	AnalysisID string
	Message    string
	Err        error
}

// NewStatusError builds a StatusError whose message is taken from the backend when available.
func NewStatusError(analysisID string, err error) *StatusError {
	return &StatusError{AnalysisID: analysisID, Message: userMessage(err, DefaultStatusMessage), Err: err}
}

func (e *StatusError) Error() string { return e.Message }

func (e *StatusError) Unwrap() error { return e.Err }

// FailedError reports that the backend marked the analysis as failed.
type FailedError struct {
	AnalysisID string
	Message    string
}

// NewFailedError builds a FailedError, falling back to a generic message.
func NewFailedError(analysisID, message string) *FailedError {
	if message == "" {
		message = DefaultFailedMessage
	}
	return &FailedError{AnalysisID: analysisID, Message: message}
}

func (e *FailedError) Error() string { return e.Message }

// userMessage extracts the backend supplied message from err, or returns fallback.
func userMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
