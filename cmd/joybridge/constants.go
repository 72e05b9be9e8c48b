package main

// Linux joystick event types (from <linux/joystick.h>)
const (
	JS_EVENT_BUTTON = 0x01
	JS_EVENT_AXIS   = 0x02
	JS_EVENT_INIT   = 0x80
)

// Linux joystick ioctl requests (from <linux/joystick.h>)
const (
	JSIOCGVERSION  = 0x80046a01 // _IOR('j', 0x01, __u32)
	JSIOCGAXES     = 0x80016a11 // _IOR('j', 0x11, __u8)
	JSIOCGBUTTONS  = 0x80016a12 // _IOR('j', 0x12, __u8)
	jsiocgNameBase = 0x80006a13 // _IOC(_IOC_READ, 'j', 0x13, len) without the length
)

// jsEventSize is sizeof(struct js_event).
const jsEventSize = 8

// axisMaxMagnitude is the largest magnitude a Linux joystick axis reports.
const axisMaxMagnitude = 32767.0

// deviceNameLen is the buffer size handed to JSIOCGNAME.
const deviceNameLen = 128

// Output port names. These are the `type` discriminators on the wire.
const (
	portAxes     = "axes"
	portButtons  = "buttons"
	portPosition = "xy"
	portVelocity = "va"
)

// Session defaults
const (
	defaultDevicePath = "/dev/input/js0"
	defaultXAxis      = 0
	defaultYAxis      = 1
	defaultScaleV     = -1.0
	defaultScaleA     = 1.0
)

// Host scheduler and surface defaults
const (
	defaultRateHz       = 100 // Cycle frequency (Hz)
	maxRateHz           = 1000
	defaultWSListen     = ":8765"
	defaultWSPath       = "/samples"
	defaultWSSendBuf    = 32
	defaultWSBcastBuf   = 256
	defaultIPCSocket    = "/tmp/joybridge.sock"
	defaultIPCTimeoutMS = 1000 // How long an IPC request waits for the scheduler loop (ms)
)

// cycleErrorLogEvery throttles the "cycle failed" warning while a read error persists:
// the first failure of a run is logged, then every Nth.
const cycleErrorLogEvery = 100

// Log file rotation defaults
const (
	defaultLogMaxSizeMB  = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAgeDays = 28
)
