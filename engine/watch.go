package engine

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// WatchFolder starts a cron schedule that re-runs ConvertFolder every
// intervalMinutes, converting whatever new documents have appeared.
// Archives land in outDir, or next to their sources when it is empty.
// The first pass runs immediately at startup. Stop the returned cron to stop
// watching; pair it with SkipExisting or each pass rebuilds everything.
func WatchFolder(ctx context.Context, dir, outDir string, intervalMinutes int, opts Options) (*cron.Cron, error) {
	if intervalMinutes < 1 {
		intervalMinutes = 1
	}

	// Run a pass immediately at startup in a goroutine
	Logger.Info("Running folder pass at startup", "dir", dir)
	go func() {
		if _, err := ConvertFolder(ctx, dir, outDir, opts); err != nil {
			Logger.Error("Startup folder pass failed", "dir", dir, "error", err)
		}
	}()

	c := cron.New()
	var watchJob cron.Job
	watchJob = cron.FuncJob(func() {
		if _, err := ConvertFolder(ctx, dir, outDir, opts); err != nil {
			Logger.Error("Scheduled folder pass failed", "dir", dir, "error", err)
		}
	})
	watchJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(watchJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", intervalMinutes), watchJob); err != nil {
		return nil, err
	}
	Logger.Info("Watching folder", "dir", dir, "interval_minutes", intervalMinutes)
	c.Start()
	return c, nil
}
