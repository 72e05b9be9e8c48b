//go:build !linux

package main

import "errors"

// openJoystick implements DeviceOpener on platforms without the Linux joystick API.
func openJoystick(path string) (Device, error) {
	return nil, &DeviceOpenError{Path: path, Op: "open", Err: errors.New("joystick devices are only supported on linux")}
}
