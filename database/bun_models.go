package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunJob represents the jobs table for Bun ORM
type BunJob struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          string     `bun:"id,pk"` // ULID as string
	Type        string     `bun:"type,notnull"`
	Status      string     `bun:"status,default:'pending'"`
	Progress    int        `bun:"progress,default:0"`
	CurrentStep string     `bun:"current_step,default:''"`
	TotalSteps  int        `bun:"total_steps,default:0"`
	Message     string     `bun:"message,default:''"`
	Error       string     `bun:"error,nullzero"`
	Result      string     `bun:"result,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

// ToJob converts BunJob to Job
func (bj *BunJob) ToJob() (*Job, error) {
	parsedULID, err := ulid.Parse(bj.ID)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:          parsedULID,
		Type:        JobType(bj.Type),
		Status:      JobStatus(bj.Status),
		Progress:    bj.Progress,
		CurrentStep: bj.CurrentStep,
		TotalSteps:  bj.TotalSteps,
		Message:     bj.Message,
		Error:       bj.Error,
		Result:      bj.Result,
		CreatedAt:   bj.CreatedAt,
		UpdatedAt:   bj.UpdatedAt,
		StartedAt:   bj.StartedAt,
		CompletedAt: bj.CompletedAt,
	}
	if job.Type == JobTypeBatch && job.Result != "" {
		summary, err := ParseBatchSummary(job.Result)
		if err != nil {
			logger().Warn("Ignoring unreadable batch summary", "job", bj.ID, "error", err)
		} else {
			job.Summary = summary
		}
	}
	return job, nil
}

// FromJob converts Job to BunJob
func FromJob(job *Job) *BunJob {
	return &BunJob{
		ID:          job.ID.String(),
		Type:        string(job.Type),
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		TotalSteps:  job.TotalSteps,
		Message:     job.Message,
		Error:       job.Error,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

// BunBatchOutput represents the batch_outputs table
type BunBatchOutput struct {
	bun.BaseModel `bun:"table:batch_outputs,alias:bo"`

	BatchID    string `bun:"batch_id,pk"`
	Sequence   int    `bun:"sequence,pk"`
	Filename   string `bun:"filename,notnull"`
	Source     string `bun:"source,notnull"`
	Provenance string `bun:"provenance,notnull"`
	Width      int    `bun:"width"`
	Height     int    `bun:"height"`
	Bytes      int    `bun:"bytes"`
}

func (bo *BunBatchOutput) toBatchOutput() BatchOutput {
	return BatchOutput{
		Sequence:   bo.Sequence,
		Filename:   bo.Filename,
		Source:     bo.Source,
		Provenance: bo.Provenance,
		Width:      bo.Width,
		Height:     bo.Height,
		Bytes:      bo.Bytes,
	}
}
