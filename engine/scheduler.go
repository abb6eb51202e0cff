package engine

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// InitializeSchedules starts the history pruner. The returned cron is already running.
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	c := cron.New()

	interval := serverHandler.ServerConfig.HistoryPruneInterval
	if interval <= 0 {
		Logger.Info("History pruning disabled", "interval_minutes", interval)
		return c
	}

	// Run once at startup in a goroutine
	go serverHandler.pruneHistory()

	var pruneJob cron.Job = cron.FuncJob(func() { serverHandler.pruneHistory() })
	pruneJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(pruneJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", interval), pruneJob); err != nil {
		Logger.Error("Unable to schedule history pruning", "error", err)
		return c
	}
	Logger.Info("Adding history prune scheduler", "interval_minutes", interval,
		"retention_hours", serverHandler.ServerConfig.HistoryRetentionHours)
	c.Start()
	return c
}
