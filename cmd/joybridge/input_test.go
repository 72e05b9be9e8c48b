package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDecoder(t *testing.T) {
	d := newEventDecoder()

	// time=0x04030201, value=-2 (0xfffe), type=axis|init, number=5
	ev, err := d.decode([]byte{0x01, 0x02, 0x03, 0x04, 0xfe, 0xff, 0x82, 0x05})
	require.NoError(t, err)
	assert.Equal(t, RawEvent{Time: 0x04030201, Value: -2, Type: 0x82, Number: 5}, ev)
	assert.True(t, ev.IsInit())

	// The decoder is reused across records.
	ev, err = d.decode([]byte{0x10, 0, 0, 0, 0x01, 0x00, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, RawEvent{Time: 0x10, Value: 1, Type: JS_EVENT_BUTTON, Number: 2}, ev)
	assert.False(t, ev.IsInit())
}

func TestEventDecoder_WrongSize(t *testing.T) {
	d := newEventDecoder()

	_, err := d.decode([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = d.decode(make([]byte, 9))
	assert.Error(t, err)
}

func TestDeviceInfo_VersionString(t *testing.T) {
	assert.Equal(t, "2.1.0", DeviceInfo{Version: 0x020100}.VersionString())
	assert.Equal(t, "0.0.0", DeviceInfo{}.VersionString())
}

func TestEscapeString(t *testing.T) {
	buf := make([]byte, 16)
	copy(buf, "Xbox Pad")
	assert.Equal(t, "Xbox Pad", escapeString(buf))
	assert.Equal(t, "abc", escapeString([]byte("abc")))
	assert.Equal(t, "", escapeString([]byte{0, 'x'}))
}
