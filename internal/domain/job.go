package domain

import (
	"fmt"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus validates a stored status string. Unknown values are
// rejected at the boundary rather than carried as opaque strings.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return JobStatus(s), nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// InputType is the classification assigned to an uploaded image. Unknown is
// only ever produced outside classification (e.g. data created before a
// classifier ran); the classifier itself always returns a definite type.
type InputType string

const (
	InputTypeObject    InputType = "object"
	InputTypeLandscape InputType = "landscape"
	InputTypeUnknown   InputType = "unknown"
)

// ParseInputType validates an input type string.
func ParseInputType(s string) (InputType, error) {
	switch InputType(s) {
	case InputTypeObject, InputTypeLandscape, InputTypeUnknown:
		return InputType(s), nil
	}
	return "", fmt.Errorf("unknown input type %q", s)
}

// Job is one end-to-end request to process a single uploaded image.
//
// Lifecycle invariants, enforced by the ledger's update path: progress never
// decreases, status moves pending -> processing -> {completed|failed} with no
// transition out of a terminal state, Error is set iff failed and Outputs is
// non-empty iff completed.
type Job struct {
	ID               string
	Status           JobStatus
	InputType        InputType // empty until classification has run
	Progress         int       // 0..100
	Error            string
	OriginalFilename string
	Outputs          map[AssetType]string // asset type -> asset id, completed jobs only
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JobUpdate is the single mutation contract for a job record. Nil fields are
// left untouched. All ledger implementations apply an update atomically and
// refuse it entirely when the job is already terminal.
type JobUpdate struct {
	Status    *JobStatus
	InputType *InputType
	Progress  *int
	Error     *string
	Outputs   map[AssetType]string
}

// StatusOf is a convenience for building pointer-typed updates.
func StatusOf(s JobStatus) *JobStatus { return &s }

// InputTypeOf is a convenience for building pointer-typed updates.
func InputTypeOf(t InputType) *InputType { return &t }

// ProgressOf is a convenience for building pointer-typed updates.
func ProgressOf(p int) *int { return &p }

// ErrorOf is a convenience for building pointer-typed updates.
func ErrorOf(msg string) *string { return &msg }
