package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAxis(t *testing.T) {
	tests := []struct {
		name string
		in   int16
		want float64
	}{
		{"zero", 0, 0},
		{"max", 32767, 1.0},
		{"min reported", -32767, -1.0},
		{"min clamped", -32768, -1.0},
		{"half", 16384, 16384.0 / 32767.0},
		{"negative", -100, -100.0 / 32767.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeAxis(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got, 1.0)
			assert.GreaterOrEqual(t, got, -1.0)
		})
	}
}

func TestClassifyEvent(t *testing.T) {
	ts := Timestamp{Sec: 1700000000, Nsec: 42}

	tests := []struct {
		name string
		ev   RawEvent
		want Sample
	}{
		{
			name: "axis",
			ev:   RawEvent{Type: JS_EVENT_AXIS, Number: 3, Value: 32767},
			want: AxisSample{Axis: 3, Value: 1.0, Tm: ts},
		},
		{
			name: "button pressed",
			ev:   RawEvent{Type: JS_EVENT_BUTTON, Number: 7, Value: 1},
			want: ButtonSample{Button: 7, Pressed: true, Tm: ts},
		},
		{
			name: "button released",
			ev:   RawEvent{Type: JS_EVENT_BUTTON, Number: 7, Value: 0},
			want: ButtonSample{Button: 7, Pressed: false, Tm: ts},
		},
		{
			name: "nonzero button value counts as pressed",
			ev:   RawEvent{Type: JS_EVENT_BUTTON, Number: 0, Value: -5},
			want: ButtonSample{Button: 0, Pressed: true, Tm: ts},
		},
		{
			name: "axis init replay",
			ev:   RawEvent{Type: JS_EVENT_AXIS | JS_EVENT_INIT, Number: 0, Value: 100},
			want: nil,
		},
		{
			name: "bare init flag",
			ev:   RawEvent{Type: JS_EVENT_INIT},
			want: nil,
		},
		{
			name: "unknown type",
			ev:   RawEvent{Type: 0x04, Number: 1, Value: 1},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyEvent(tt.ev, ts))
		})
	}
}

func TestRawEvent_String(t *testing.T) {
	assert.Equal(t, "axis(0)=123", RawEvent{Type: JS_EVENT_AXIS, Number: 0, Value: 123}.String())
	assert.Equal(t, "button+init(4)=1", RawEvent{Type: JS_EVENT_BUTTON | JS_EVENT_INIT, Number: 4, Value: 1}.String())
	assert.Equal(t, "other(2)=0", RawEvent{Type: 0x10, Number: 2}.String())
}
