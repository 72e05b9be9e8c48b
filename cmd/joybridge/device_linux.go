//go:build linux

package main

import (
	"errors"
	"io"
	"unsafe"

	"golang.org/x/sys/unix"
)

// joystick is a /dev/input/js* node opened read-only and non-blocking.
type joystick struct {
	fd      int
	path    string
	info    DeviceInfo
	buf     [jsEventSize]byte
	decoder *eventDecoder
}

// openJoystick implements DeviceOpener for the Linux joystick API.
func openJoystick(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &DeviceOpenError{Path: path, Op: "open", Err: err}
	}

	js := &joystick{
		fd:      fd,
		path:    path,
		decoder: newEventDecoder(),
	}
	// Driver queries are diagnostic only; a failing ioctl leaves the zero value.
	js.info = queryDeviceInfo(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, &DeviceOpenError{Path: path, Op: "set non-blocking", Err: err}
	}

	return js, nil
}

func (j *joystick) Info() DeviceInfo { return j.info }

// Poll performs exactly one non-blocking read of a js_event record.
func (j *joystick) Poll() (RawEvent, bool, error) {
	if j.fd < 0 {
		return RawEvent{}, false, &DeviceReadError{Path: j.path, Err: unix.EBADF}
	}

	n, err := unix.Read(j.fd, j.buf[:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			// No data ready
			return RawEvent{}, false, nil
		}
		return RawEvent{}, false, &DeviceReadError{Path: j.path, Err: err}
	}
	switch {
	case n == 0:
		return RawEvent{}, false, &DeviceReadError{Path: j.path, Err: io.EOF}
	case n < jsEventSize:
		return RawEvent{}, false, &DeviceReadError{Path: j.path, Err: io.ErrUnexpectedEOF}
	}

	ev, err := j.decoder.decode(j.buf[:n])
	if err != nil {
		return RawEvent{}, false, &DeviceReadError{Path: j.path, Err: err}
	}
	return ev, true, nil
}

func (j *joystick) Close() error {
	if j.fd < 0 {
		return nil
	}
	fd := j.fd
	j.fd = -1
	return unix.Close(fd)
}

func queryDeviceInfo(fd int) DeviceInfo {
	var (
		info    DeviceInfo
		axes    uint8
		buttons uint8
		version uint32
		name    [deviceNameLen]byte
	)
	if ioctl(fd, JSIOCGAXES, unsafe.Pointer(&axes)) == nil {
		info.Axes = int(axes)
	}
	if ioctl(fd, JSIOCGBUTTONS, unsafe.Pointer(&buttons)) == nil {
		info.Buttons = int(buttons)
	}
	if ioctl(fd, JSIOCGVERSION, unsafe.Pointer(&version)) == nil {
		info.Version = version
	}
	if ioctl(fd, jsiocgName(deviceNameLen), unsafe.Pointer(&name[0])) == nil {
		info.Name = escapeString(name[:])
	} else {
		info.Name = "Unknown"
	}
	return info
}

// jsiocgName builds JSIOCGNAME(len).
func jsiocgName(length int) uintptr {
	return uintptr(jsiocgNameBase) | uintptr(length)<<16
}

func ioctl(fd int, req uintptr, dest unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(dest))
	if errno != 0 {
		return errno
	}
	return nil
}
