//go:build !statsview

package main

import "log/slog"

func statsViewAvailable() bool { return false }

func launchStatsView(addr string, logger *slog.Logger) {
	logger.Warn("statsview is not compiled in, rebuild with -tags statsview", "addr", addr)
}
