package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RawEvent represents a Linux joystick event record
// struct js_event { __u32 time; __s16 value; __u8 type; __u8 number; };
type RawEvent struct {
	Time   uint32 // driver timestamp in ms, not used for publication
	Value  int16
	Type   uint8
	Number uint8
}

// IsInit reports whether the driver flagged this as a synthetic "current state" replay.
func (e RawEvent) IsInit() bool {
	return e.Type&JS_EVENT_INIT != 0
}

func (e RawEvent) String() string {
	kind := "other"
	switch e.Type &^ JS_EVENT_INIT {
	case JS_EVENT_AXIS:
		kind = "axis"
	case JS_EVENT_BUTTON:
		kind = "button"
	}
	if e.IsInit() {
		kind += "+init"
	}
	return fmt.Sprintf("%s(%d)=%d", kind, e.Number, e.Value)
}

// eventDecoder turns raw js_event bytes into RawEvents.
// The buffer and reader are reused across calls, so a decoder is not safe for concurrent use.
type eventDecoder struct {
	buf    [jsEventSize]byte
	reader *bytes.Reader
}

func newEventDecoder() *eventDecoder {
	d := &eventDecoder{}
	d.reader = bytes.NewReader(d.buf[:])
	return d
}

// decode parses one complete record. p must hold exactly jsEventSize bytes.
func (d *eventDecoder) decode(p []byte) (RawEvent, error) {
	if len(p) != jsEventSize {
		return RawEvent{}, fmt.Errorf("short js_event record: %d of %d bytes", len(p), jsEventSize)
	}
	copy(d.buf[:], p)
	d.reader.Reset(d.buf[:]) // Reset reader to reuse it

	var ev RawEvent
	if err := binary.Read(d.reader, binary.LittleEndian, &ev); err != nil {
		return RawEvent{}, fmt.Errorf("decode js_event: %w", err)
	}
	return ev, nil
}
