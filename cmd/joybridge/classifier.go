package main

// classifyEvent filters a raw event and turns it into a sample.
//
// It returns nil for init-replay events and for event types other than axis
// and button. Every sample carries ts, which the caller captures once per cycle.
func classifyEvent(ev RawEvent, ts Timestamp) Sample {
	if ev.IsInit() {
		// Ignore init events
		return nil
	}

	switch ev.Type {
	case JS_EVENT_AXIS:
		return AxisSample{
			Axis:  int(ev.Number),
			Value: normalizeAxis(ev.Value),
			Tm:    ts,
		}
	case JS_EVENT_BUTTON:
		return ButtonSample{
			Button:  int(ev.Number),
			Pressed: ev.Value != 0,
			Tm:      ts,
		}
	default:
		return nil
	}
}

// normalizeAxis maps a raw axis value onto [-1.0, 1.0].
// The driver range is +/-32767; -32768 is clamped.
func normalizeAxis(v int16) float64 {
	n := float64(v) / axisMaxMagnitude
	switch {
	case n > 1.0:
		return 1.0
	case n < -1.0:
		return -1.0
	default:
		return n
	}
}
