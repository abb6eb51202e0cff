package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/drummonds/pagepack/database"
	"github.com/drummonds/pagepack/engine/batch"
	"github.com/oklog/ulid/v2"
)

// runBatchWithTracking runs one batch and mirrors its progress onto the job row
func (serverHandler *ServerHandler) runBatchWithTracking(ctx context.Context, jobID ulid.ULID, files []batch.SourceFile, settings batch.Settings) (result *batch.Result, err error) {
	db := serverHandler.DB

	// Add panic recovery and update job status on panic
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in batch job", "panic", r, "jobID", jobID)
			db.UpdateJobError(jobID, fmt.Sprintf("Panic: %v", r))
			result, err = nil, fmt.Errorf("batch panicked: %v", r)
		}
	}()

	total := len(files)
	if err := db.UpdateJobStatus(jobID, database.JobStatusRunning, fmt.Sprintf("Processing %d files", total)); err != nil {
		Logger.Error("Failed to update job status", "error", err)
	}
	Logger.Info("Batch job started", "jobID", jobID, "files", total, "start", settings.StartNumber,
		"rotation", settings.Rotation, "format", settings.Format)

	progress := func(done, total int, current string) {
		// 100 is reserved for CompleteJob
		percent := done * 99 / total
		if err := db.UpdateJobProgress(jobID, percent, fmt.Sprintf("%s (%d/%d)", current, done, total)); err != nil {
			Logger.Warn("Failed to update job progress", "jobID", jobID, "error", err)
		}
	}

	result, err = serverHandler.Pipeline.Process(ctx, files, settings, progress)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			db.UpdateJobStatus(jobID, database.JobStatusCancelled, "Upload connection closed before the batch finished")
		} else {
			db.UpdateJobError(jobID, err.Error())
		}
		return nil, err
	}

	summary := summarizeBatch(result, settings, serverHandler.rendererName())
	encoded, err := summary.Encode()
	if err != nil {
		db.UpdateJobError(jobID, err.Error())
		return nil, err
	}

	if err := db.SaveBatchOutputs(jobID, manifest(result)); err != nil {
		// the archive is already built; losing the manifest only affects history
		Logger.Error("Failed to save batch manifest", "jobID", jobID, "error", err)
	}

	if err := db.CompleteJob(jobID, encoded); err != nil {
		Logger.Error("Failed to mark job as complete", "error", err)
	}
	message := fmt.Sprintf("%d outputs, %d failures", len(result.Outputs), len(result.Failures))
	if result.Empty() {
		message = "No files were processed successfully"
	}
	if err := db.UpdateJobStatus(jobID, database.JobStatusCompleted, message); err != nil {
		Logger.Error("Failed to update job message", "error", err)
	}

	Logger.Info("Batch job finished", "jobID", jobID, "inputs", result.Inputs,
		"outputs", len(result.Outputs), "failures", len(result.Failures),
		"first", result.FirstNumber(), "last", result.LastNumber())
	return result, nil
}

// summarizeBatch builds the job result stored in the history
func summarizeBatch(result *batch.Result, settings batch.Settings, renderer string) database.BatchSummary {
	summary := database.BatchSummary{
		Inputs:      result.Inputs,
		Outputs:     len(result.Outputs),
		Failures:    len(result.Failures),
		StartNumber: settings.StartNumber,
		LastNumber:  result.LastNumber(),
		Format:      settings.Format.String(),
		Prefix:      settings.Prefix,
		Rotation:    int(settings.Rotation),
		Renderer:    renderer,
		ArchiveSize: len(result.Archive),
	}
	for _, f := range result.Failures {
		summary.FailureList = append(summary.FailureList, database.BatchFailure{
			Name:   f.Name,
			Source: f.Source,
			Error:  f.Error,
		})
	}
	return summary
}

func manifest(result *batch.Result) []database.BatchOutput {
	outputs := make([]database.BatchOutput, 0, len(result.Outputs))
	for _, o := range result.Outputs {
		outputs = append(outputs, database.BatchOutput{
			Sequence:   o.Sequence,
			Filename:   o.Filename,
			Source:     o.Source,
			Provenance: o.Provenance,
			Width:      o.Width,
			Height:     o.Height,
			Bytes:      len(o.Payload),
		})
	}
	return outputs
}

// pruneHistory removes finished jobs older than the retention period
func (serverHandler *ServerHandler) pruneHistory() (int, error) {
	retention := serverHandler.ServerConfig.HistoryRetention()
	if retention <= 0 {
		Logger.Debug("History retention disabled, nothing pruned")
		return 0, nil
	}
	deleted, err := serverHandler.DB.DeleteOldJobs(retention)
	if err != nil {
		Logger.Error("Failed to prune job history", "error", err)
		return 0, err
	}
	if deleted > 0 {
		Logger.Info("Pruned job history", "deleted", deleted, "olderThan", retention)
	}
	return deleted, nil
}

// pruneJobFuncWithTracking runs pruneHistory under a cleanup job
func (serverHandler *ServerHandler) pruneJobFuncWithTracking(jobID ulid.ULID) {
	db := serverHandler.DB
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in prune job", "panic", r, "jobID", jobID)
			db.UpdateJobError(jobID, fmt.Sprintf("Panic: %v", r))
		}
	}()

	db.UpdateJobStatus(jobID, database.JobStatusRunning, "Deleting old batches")
	deleted, err := serverHandler.pruneHistory()
	if err != nil {
		db.UpdateJobError(jobID, fmt.Sprintf("Prune failed: %v", err))
		return
	}
	if err := db.CompleteJob(jobID, fmt.Sprintf(`{"deleted": %d}`, deleted)); err != nil {
		Logger.Error("Failed to mark prune job as complete", "error", err)
	}
}
