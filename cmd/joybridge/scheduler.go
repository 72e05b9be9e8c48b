package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Host scheduler
// ============================================================================
//
// runScheduler owns the engine lifecycle:
//   - Finalize is deferred before Initialize so the device is closed on every path
//   - ExecuteCycle runs on a fixed cadence, one call per tick, never overlapping
//   - State queries are answered between cycles from the same goroutine
//
// Shutdown semantics:
//   - Returns nil when ctx is canceled
//   - Returns an error when Initialize fails or the consecutive error budget is spent
//
// ============================================================================

// CycleEngine is the lifecycle surface the scheduler drives.
type CycleEngine interface {
	Initialize() error
	ExecuteCycle() error
	Finalize()
	Snapshot() StateSnapshot
}

func runScheduler(
	ctx context.Context,
	engine CycleEngine,
	cfg SchedulerConfig,
	queries <-chan StateQuery,
	logger *slog.Logger,
) error {
	defer engine.Finalize()

	if err := engine.Initialize(); err != nil {
		return err
	}

	rateHz := cfg.RateHz
	if rateHz <= 0 {
		rateHz = defaultRateHz
	}
	ticker := time.NewTicker(time.Second / time.Duration(rateHz))
	defer ticker.Stop()

	logger.Info("scheduler running", "rate_hz", rateHz, "max_consecutive_errors", cfg.MaxConsecutiveErrors)

	consecutive := 0

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopping (context canceled)")
			return nil

		case q := <-queries:
			if q.Reply == nil {
				continue
			}
			select {
			case q.Reply <- engine.Snapshot():
			default:
				logger.Warn("state query reply dropped (reply channel full)")
			}

		case <-ticker.C:
			err := engine.ExecuteCycle()
			if err == nil {
				if consecutive > 0 {
					logger.Info("cycle recovered", "failed_cycles", consecutive)
				}
				consecutive = 0
				continue
			}

			consecutive++
			if cfg.MaxConsecutiveErrors > 0 && consecutive >= cfg.MaxConsecutiveErrors {
				return fmt.Errorf("giving up after %d consecutive cycle errors: %w", consecutive, err)
			}
			if logCycleError(consecutive) {
				logger.Warn("cycle failed", "error", err, "consecutive", consecutive)
			}
		}
	}
}

// logCycleError reports whether the n-th consecutive failure should be logged.
func logCycleError(n int) bool {
	return n == 1 || n%cycleErrorLogEvery == 0
}

// queryState sends a request into the scheduler loop and waits for the snapshot.
func queryState(ctx context.Context, queries chan<- StateQuery, r Request, timeout time.Duration) (StateSnapshot, error) {
	reply := make(chan StateSnapshot, 1)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-waitCtx.Done():
		return StateSnapshot{}, fmt.Errorf("send state query: %w", waitCtx.Err())
	case queries <- StateQuery{Request: r, Reply: reply}:
	}

	select {
	case <-waitCtx.Done():
		return StateSnapshot{}, fmt.Errorf("wait for state: %w", waitCtx.Err())
	case snap := <-reply:
		return snap, nil
	}
}
