package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/drummonds/pagepack/database"
	"github.com/drummonds/pagepack/engine/pdfrenderer"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := databaseChecks(serverHandler.DB); err != nil {
		return err
	}
	rendererChecks(serverHandler.Renderer)
	interruptedJobChecks(serverHandler.DB)
	return nil
}

func databaseChecks(db database.Repository) error {
	if err := db.Ping(); err != nil {
		Logger.Error("Database is not reachable", "type", db.Type(), "error", err)
		return fmt.Errorf("database check failed: %w", err)
	}
	Logger.Info("Database reachable", "type", db.Type())
	return nil
}

// rendererChecks only warns: image batches still work without a PDF renderer
func rendererChecks(renderer pdfrenderer.Renderer) {
	if renderer == nil {
		Logger.Warn("No PDF renderer configured, PDF inputs will be reported as failures")
		return
	}
	pinger, ok := renderer.(pdfrenderer.Pinger)
	if !ok {
		Logger.Info("PDF renderer ready", "renderer", renderer.Name())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		Logger.Warn("PDF renderer not reachable yet, PDF pages will fail until it is", "renderer", renderer.Name(), "error", err)
		return
	}
	Logger.Info("PDF renderer ready", "renderer", renderer.Name())
}

// interruptedJobChecks cancels jobs a previous process left pending or running
func interruptedJobChecks(db database.Repository) {
	jobs, err := db.GetActiveJobs()
	if err != nil {
		Logger.Error("Unable to check for interrupted jobs", "error", err)
		return
	}
	for _, job := range jobs {
		Logger.Warn("Cancelling job interrupted by restart", "jobID", job.ID, "type", job.Type)
		if err := db.UpdateJobStatus(job.ID, database.JobStatusCancelled, "Interrupted by server restart"); err != nil {
			Logger.Error("Failed to cancel interrupted job", "jobID", job.ID, "error", err)
		}
	}
}
