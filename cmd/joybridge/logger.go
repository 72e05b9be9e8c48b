package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the available logging levels
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// parseLogLevel converts a string to a LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

// setupLogger creates and configures a slog logger writing to w.
func setupLogger(level LogLevel, w io.Writer) *slog.Logger {
	var slogLevel slog.Level

	switch level {
	case LogLevelError:
		slogLevel = slog.LevelError
	case LogLevelWarn:
		slogLevel = slog.LevelWarn
	case LogLevelInfo:
		slogLevel = slog.LevelInfo
	case LogLevelDebug:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	handler := slog.NewTextHandler(w, opts)
	return slog.New(handler)
}

// logOutput returns where logs should go: stdout, or a size-rotated file when
// logging.file is set. The returned closer must be closed on shutdown.
func logOutput(cfg LoggingConfig) io.WriteCloser {
	if cfg.File == "" {
		return nopWriteCloser{os.Stdout}
	}
	return &lumberjack.Logger{
		Filename:   ExpandPath(cfg.File),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// traceOutputs logs every published sample at debug level.
func traceOutputs(logger *slog.Logger) Outputs {
	return Outputs{
		Axes: ChannelFunc[AxisSample](func(s AxisSample) {
			logger.Debug("publish", "port", portAxes, "axis", s.Axis, "value", s.Value)
		}),
		Buttons: ChannelFunc[ButtonSample](func(s ButtonSample) {
			logger.Debug("publish", "port", portButtons, "button", s.Button, "pressed", s.Pressed)
		}),
		Position: ChannelFunc[PositionSample](func(s PositionSample) {
			logger.Debug("publish", "port", portPosition, "x", s.X, "y", s.Y)
		}),
		Velocity: ChannelFunc[VelocityCommand](func(s VelocityCommand) {
			logger.Debug("publish", "port", portVelocity, "linear_x", s.LinearX, "linear_y", s.LinearY, "angular", s.Angular)
		}),
	}
}
