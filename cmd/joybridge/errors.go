package main

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by ExecuteCycle before a successful Initialize.
	ErrNotReady = errors.New("engine not ready")

	// ErrFinalized is returned by lifecycle calls made after Finalize.
	ErrFinalized = errors.New("engine finalized")
)

// DeviceOpenError reports a failure to open or configure the device node.
// Op is the step that failed ("open" or "set non-blocking").
type DeviceOpenError struct {
	Path string
	Op   string
	Err  error
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DeviceOpenError) Unwrap() error { return e.Err }

// DeviceReadError reports a read failure other than "no data available".
type DeviceReadError struct {
	Path string
	Err  error
}

func (e *DeviceReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *DeviceReadError) Unwrap() error { return e.Err }

// InitError is the fatal initialization failure reported to the host scheduler.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }
