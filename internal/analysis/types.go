// Package analysis defines the analysis lifecycle types shared by the backend client,
// the foreground runner and the background tracker.
package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// BackendStatus is the job status string reported by the analysis backend.
type BackendStatus string

// Backend status values accepted from GET /analysis-status/{id}.
const (
	BackendPending         BackendStatus = "pending"
	BackendQueryGeneration BackendStatus = "query_generation"
	BackendQueryApproval   BackendStatus = "query_approval"
	BackendExecuting       BackendStatus = "executing"
	BackendAnalyzing       BackendStatus = "analyzing"
	BackendCompleted       BackendStatus = "completed"
	BackendFailed          BackendStatus = "failed"
)

// Status is the simplified client-facing state of a job.
type Status string

// Client status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions can occur from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is one normalized status poll.
type Snapshot struct {
	Status   BackendStatus   `json:"status"`
	Progress *float64        `json:"progress,omitempty"`
	Message  *string         `json:"message,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// HasResult reports whether the snapshot carries a non-null result payload.
func (s Snapshot) HasResult() bool {
	trimmed := bytes.TrimSpace(s.Result)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// DecodeResult decodes the opaque result payload into a Result. Any JSON
// object is accepted: fields that do not fit the typed view are left zero and
// the first one is named in Result.Unmatched.
func (s Snapshot) DecodeResult() (*Result, error) {
	if !s.HasResult() {
		return nil, fmt.Errorf("%w: result payload missing", ErrMalformedResponse)
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(s.Result, &object); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", ErrMalformedResponse, err)
	}
	var result Result
	if err := json.Unmarshal(s.Result, &result); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: decode result: %v", ErrMalformedResponse, err)
		}
		result.Unmatched = typeErr.Field
	}
	result.Raw = append(json.RawMessage(nil), s.Result...)
	return &result, nil
}

// QueryCategory separates queries that name the brand from those that do not.
type QueryCategory string

// Query categories produced by the backend.
const (
	CategoryBranded   QueryCategory = "BRANDED"
	CategoryUnbranded QueryCategory = "UNBRANDED"
)

// GeneratedQuery is one search query proposed for an analysis.
type GeneratedQuery struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Type     string        `json:"type"`
	Category QueryCategory `json:"category"`
}

// QuerySet is the response to a query generation request.
type QuerySet struct {
	AnalysisID string           `json:"analysisId"`
	Queries    []GeneratedQuery `json:"queries"`
}
