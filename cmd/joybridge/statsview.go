//go:build statsview

package main

import (
	"log/slog"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

const statsViewPath = "/debug/statsview"

func statsViewAvailable() bool { return true }

// launchStatsView serves runtime charts (goroutines, heap, GC) on addr for the
// life of the process.
func launchStatsView(addr string, logger *slog.Logger) {
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(addr))
		mgr := statsview.New()
		mgr.Start()
	}()

	logger.Info("stats server available", "url", "http://"+addr+statsViewPath)
}
