package main

import "time"

// ============================================================================
// Samples - published payload types
// ============================================================================
// Raw axis/button samples are built fresh for every event. Position and
// velocity are accumulators owned by the AxisRouter and republished whole
// after every update.
// ============================================================================

// Timestamp is a wall-clock capture time split the way downstream consumers expect it.
type Timestamp struct {
	Sec  int64 `json:"sec"`
	Nsec int64 `json:"nsec"`
}

func timestampFrom(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Time converts back to a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Sec, ts.Nsec).UTC()
}

// Sample is a marker interface for classifier output.
type Sample interface {
	sampleMarker()
}

// AxisSample is one normalized axis reading, value in [-1.0, 1.0].
type AxisSample struct {
	Axis  int       `json:"axis"`
	Value float64   `json:"value"`
	Tm    Timestamp `json:"tm"`
}

func (AxisSample) sampleMarker() {}

// ButtonSample is one button transition.
type ButtonSample struct {
	Button  int       `json:"button"`
	Pressed bool      `json:"pressed"`
	Tm      Timestamp `json:"tm"`
}

func (ButtonSample) sampleMarker() {}

// PositionSample is the X/Y stick position built from the two mapped axes.
type PositionSample struct {
	X  float64   `json:"x"`
	Y  float64   `json:"y"`
	Tm Timestamp `json:"tm"`
}

// VelocityCommand is the velocity derived from the stick position.
//
// The X axis drives Angular and the Y axis drives LinearY. LinearX is never
// written and stays 0.
type VelocityCommand struct {
	LinearX float64   `json:"linear_x"`
	LinearY float64   `json:"linear_y"`
	Angular float64   `json:"angular"`
	Tm      Timestamp `json:"tm"`
}

// ============================================================================
// Output channels
// ============================================================================

// Channel delivers one payload type to downstream consumers.
type Channel[T any] interface {
	Publish(T)
}

// ChannelFunc adapts a function to a Channel.
type ChannelFunc[T any] func(T)

func (f ChannelFunc[T]) Publish(v T) { f(v) }

// Outputs bundles the four output ports.
type Outputs struct {
	Axes     Channel[AxisSample]
	Buttons  Channel[ButtonSample]
	Position Channel[PositionSample]
	Velocity Channel[VelocityCommand]
}

// discardChannel drops everything; used for ports left unbound.
type discardChannel[T any] struct{}

func (discardChannel[T]) Publish(T) {}

// withDefaults binds any nil port to a discard channel.
func (o Outputs) withDefaults() Outputs {
	if o.Axes == nil {
		o.Axes = discardChannel[AxisSample]{}
	}
	if o.Buttons == nil {
		o.Buttons = discardChannel[ButtonSample]{}
	}
	if o.Position == nil {
		o.Position = discardChannel[PositionSample]{}
	}
	if o.Velocity == nil {
		o.Velocity = discardChannel[VelocityCommand]{}
	}
	return o
}

// teeChannel publishes every value to each of its channels in order.
type teeChannel[T any] []Channel[T]

func (t teeChannel[T]) Publish(v T) {
	for _, ch := range t {
		ch.Publish(v)
	}
}

// tee combines two output sets port by port.
func tee(a, b Outputs) Outputs {
	a, b = a.withDefaults(), b.withDefaults()
	return Outputs{
		Axes:     teeChannel[AxisSample]{a.Axes, b.Axes},
		Buttons:  teeChannel[ButtonSample]{a.Buttons, b.Buttons},
		Position: teeChannel[PositionSample]{a.Position, b.Position},
		Velocity: teeChannel[VelocityCommand]{a.Velocity, b.Velocity},
	}
}
