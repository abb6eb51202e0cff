package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Finished reports whether the job has reached a terminal status
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobType represents the type of job
type JobType string

const (
	JobTypeBatch   JobType = "batch"
	JobTypeCleanup JobType = "cleanup"
)

// Job represents a background job or operation
type Job struct {
	ID          ulid.ULID     `json:"id"`
	Type        JobType       `json:"type"`
	Status      JobStatus     `json:"status"`
	Progress    int           `json:"progress"`         // 0-100
	CurrentStep string        `json:"currentStep"`      // Human-readable current step
	TotalSteps  int           `json:"totalSteps"`       // Total number of steps
	Message     string        `json:"message"`          // Status message
	Error       string        `json:"error,omitempty"`  // Error message if failed
	Result      string        `json:"result,omitempty"` // JSON result data
	Summary     *BatchSummary `json:"summary,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// BatchFailure is one input or page that produced no output
type BatchFailure struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Error  string `json:"error"`
}

// BatchSummary is stored as the result of a batch job
type BatchSummary struct {
	Inputs      int            `json:"inputs"`
	Outputs     int            `json:"outputs"`
	Failures    int            `json:"failures"`
	StartNumber int            `json:"startNumber"`
	LastNumber  int            `json:"lastNumber,omitempty"` // zero when nothing was produced
	Format      string         `json:"format"`
	Prefix      string         `json:"prefix,omitempty"`
	Rotation    int            `json:"rotation"`
	Renderer    string         `json:"renderer,omitempty"`
	ArchiveSize int            `json:"archiveSize"`
	FailureList []BatchFailure `json:"failureList,omitempty"`
}

// Encode renders the summary for Job.Result
func (s BatchSummary) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode batch summary: %w", err)
	}
	return string(data), nil
}

// ParseBatchSummary decodes a Job.Result written by Encode
func ParseBatchSummary(result string) (*BatchSummary, error) {
	var summary BatchSummary
	if err := json.Unmarshal([]byte(result), &summary); err != nil {
		return nil, fmt.Errorf("failed to decode batch summary: %w", err)
	}
	return &summary, nil
}

// BatchOutput is one file of a batch archive
type BatchOutput struct {
	Sequence   int    `json:"sequence"`
	Filename   string `json:"filename"`
	Source     string `json:"source"`
	Provenance string `json:"provenance"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bytes      int    `json:"bytes"`
}
