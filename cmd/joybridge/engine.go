package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Engine - cycle controller
// ============================================================================
//
// Lifecycle: Uninitialized -> Ready -> Finalized.
//
// Each ExecuteCycle performs one non-blocking poll and, when an event is
// available, classifies it, routes it and publishes the results before
// returning. The engine never blocks, sleeps or starts goroutines; the host
// scheduler serializes every call.
//
// ============================================================================

// SessionConfig is the engine configuration fixed at initialization.
type SessionConfig struct {
	DevicePath string
	XAxis      int
	YAxis      int
	ScaleV     float64 // Y position -> linear velocity
	ScaleA     float64 // X position -> angular velocity
}

// Validate checks the invariants the router relies on.
func (c SessionConfig) Validate() error {
	if c.DevicePath == "" {
		return errors.New("device path is empty")
	}
	if c.XAxis < 0 {
		return fmt.Errorf("x axis index must be >= 0, got %d", c.XAxis)
	}
	if c.YAxis < 0 {
		return fmt.Errorf("y axis index must be >= 0, got %d", c.YAxis)
	}
	if !isFinite(c.ScaleV) {
		return fmt.Errorf("linear scale must be finite, got %v", c.ScaleV)
	}
	if !isFinite(c.ScaleA) {
		return fmt.Errorf("angular scale must be finite, got %v", c.ScaleA)
	}
	return nil
}

// EngineState is the cycle controller state.
type EngineState int

const (
	StateUninitialized EngineState = iota
	StateReady
	StateFinalized
)

func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// EngineStats counts what the engine has seen since Initialize.
type EngineStats struct {
	Cycles     uint64 `json:"cycles"`
	Events     uint64 `json:"events"`
	Discarded  uint64 `json:"discarded"`
	ReadErrors uint64 `json:"read_errors"`
	Publishes  uint64 `json:"publishes"`
}

// StateSnapshot is a coherent copy of engine state for IPC and WebSocket clients.
type StateSnapshot struct {
	State      string          `json:"state"`
	DevicePath string          `json:"device_path"`
	Device     DeviceInfo      `json:"device"`
	Position   PositionSample  `json:"position"`
	Velocity   VelocityCommand `json:"velocity"`
	Stats      EngineStats     `json:"stats"`
	At         time.Time       `json:"at"`
}

// Engine translates joystick events into published samples.
type Engine struct {
	cfg    SessionConfig
	open   DeviceOpener
	out    Outputs
	logger *slog.Logger

	// now is the wall clock; replaced in tests.
	now func() time.Time

	state  EngineState
	dev    Device
	router *AxisRouter
	stats  EngineStats
}

// NewEngine constructs an engine. Call Initialize before the first cycle.
func NewEngine(cfg SessionConfig, open DeviceOpener, out Outputs, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	out = out.withDefaults()
	return &Engine{
		cfg:    cfg,
		open:   open,
		out:    out,
		logger: logger,
		now:    time.Now,
		router: newAxisRouter(cfg, out),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() EngineState { return e.state }

// Initialize validates the session, opens the device and moves to Ready.
// Any failure is returned as *InitError and leaves the engine out of Ready.
func (e *Engine) Initialize() error {
	switch e.state {
	case StateReady:
		return nil
	case StateFinalized:
		return &InitError{Err: ErrFinalized}
	}

	if err := e.cfg.Validate(); err != nil {
		return &InitError{Err: fmt.Errorf("session config: %w", err)}
	}
	if e.open == nil {
		return &InitError{Err: errors.New("no device opener")}
	}

	dev, err := e.open(e.cfg.DevicePath)
	if err != nil {
		e.logger.Error("failed to open joystick device", "device", e.cfg.DevicePath, "error", err, "tip", "run as root or add user to 'input' group")
		return &InitError{Err: err}
	}
	e.dev = dev

	info := dev.Info()
	e.logger.Info("opened joystick",
		"device", e.cfg.DevicePath,
		"name", info.Name,
		"axes", info.Axes,
		"buttons", info.Buttons,
		"driver_version", info.VersionString())

	e.router.reset()
	e.stats = EngineStats{}
	e.state = StateReady
	return nil
}

// ExecuteCycle polls the device once and processes at most one event.
//
// "No data" is a successful no-op. A read failure is returned as
// *DeviceReadError; the device stays open and state is untouched so the host
// scheduler can decide whether to keep cycling.
func (e *Engine) ExecuteCycle() error {
	switch e.state {
	case StateUninitialized:
		return ErrNotReady
	case StateFinalized:
		return ErrFinalized
	}

	e.stats.Cycles++

	ev, ok, err := e.dev.Poll()
	if err != nil {
		e.stats.ReadErrors++
		return err
	}
	if !ok {
		return nil
	}
	e.stats.Events++

	// One timestamp shared by every sample derived from this event.
	ts := timestampFrom(e.now())

	switch s := classifyEvent(ev, ts).(type) {
	case AxisSample:
		e.stats.Publishes += uint64(e.router.Route(s))
	case ButtonSample:
		e.out.Buttons.Publish(s)
		e.stats.Publishes++
	default:
		e.stats.Discarded++
		e.logger.Debug("discarded joystick event", "event", ev.String())
	}
	return nil
}

// Finalize closes the device. It is safe to call more than once and from any state.
func (e *Engine) Finalize() {
	if e.dev != nil {
		if err := e.dev.Close(); err != nil {
			e.logger.Warn("failed to close joystick device", "device", e.cfg.DevicePath, "error", err)
		}
		e.dev = nil
		e.logger.Info("closed joystick", "device", e.cfg.DevicePath)
	}
	e.state = StateFinalized
}

// Snapshot copies the current state. Only the scheduler goroutine may call it.
func (e *Engine) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		State:      e.state.String(),
		DevicePath: e.cfg.DevicePath,
		Position:   e.router.Position(),
		Velocity:   e.router.Velocity(),
		Stats:      e.stats,
		At:         e.now().UTC(),
	}
	if e.dev != nil {
		snap.Device = e.dev.Info()
	}
	return snap
}
