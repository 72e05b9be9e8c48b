package main

import (
	"bytes"
	"fmt"
)

// Device is the engine's view of an opened joystick.
//
// Poll never blocks: ok=false with a nil error means no event was available.
// Close must be safe to call more than once.
type Device interface {
	Poll() (ev RawEvent, ok bool, err error)
	Info() DeviceInfo
	Close() error
}

// DeviceOpener opens and configures the device at path.
// Implementations return *DeviceOpenError on failure and must not leak a descriptor.
type DeviceOpener func(path string) (Device, error)

// DeviceInfo is diagnostic data queried from the driver at open time.
type DeviceInfo struct {
	Name    string `json:"name"`
	Axes    int    `json:"axes"`
	Buttons int    `json:"buttons"`
	Version uint32 `json:"version"`
}

// VersionString formats the driver version as major.minor.patch.
func (i DeviceInfo) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", i.Version>>16, (i.Version>>8)&0xff, i.Version&0xff)
}

// escapeString returns the NUL-terminated prefix of a driver string buffer.
func escapeString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}
