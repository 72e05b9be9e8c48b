package main

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollResult is one scripted answer from fakeDevice.Poll.
type pollResult struct {
	ev  RawEvent
	ok  bool
	err error
}

// fakeDevice replays a script of poll results, then reports "no data" forever.
type fakeDevice struct {
	script []pollResult
	polls  int
	closes int
	info   DeviceInfo
}

func (d *fakeDevice) Poll() (RawEvent, bool, error) {
	d.polls++
	if len(d.script) == 0 {
		return RawEvent{}, false, nil
	}
	r := d.script[0]
	d.script = d.script[1:]
	return r.ev, r.ok, r.err
}

func (d *fakeDevice) Info() DeviceInfo { return d.info }

func (d *fakeDevice) Close() error {
	d.closes++
	return nil
}

func (d *fakeDevice) push(ev RawEvent) {
	d.script = append(d.script, pollResult{ev: ev, ok: true})
}

func openerFor(dev *fakeDevice) DeviceOpener {
	return func(string) (Device, error) { return dev, nil }
}

// recorder captures everything published on the four ports, plus the port order.
type recorder struct {
	order     []string
	axes      []AxisSample
	buttons   []ButtonSample
	positions []PositionSample
	velocity  []VelocityCommand
}

func (r *recorder) outputs() Outputs {
	return Outputs{
		Axes: ChannelFunc[AxisSample](func(s AxisSample) {
			r.order = append(r.order, portAxes)
			r.axes = append(r.axes, s)
		}),
		Buttons: ChannelFunc[ButtonSample](func(s ButtonSample) {
			r.order = append(r.order, portButtons)
			r.buttons = append(r.buttons, s)
		}),
		Position: ChannelFunc[PositionSample](func(s PositionSample) {
			r.order = append(r.order, portPosition)
			r.positions = append(r.positions, s)
		}),
		Velocity: ChannelFunc[VelocityCommand](func(s VelocityCommand) {
			r.order = append(r.order, portVelocity)
			r.velocity = append(r.velocity, s)
		}),
	}
}

func (r *recorder) total() int { return len(r.order) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC)

func testSession() SessionConfig {
	return SessionConfig{
		DevicePath: "/dev/input/js0",
		XAxis:      0,
		YAxis:      1,
		ScaleV:     -1.0,
		ScaleA:     1.0,
	}
}

// newReadyEngine returns an initialized engine over dev with a fixed clock.
func newReadyEngine(t *testing.T, cfg SessionConfig, dev *fakeDevice) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e := NewEngine(cfg, openerFor(dev), rec.outputs(), discardLogger())
	e.now = func() time.Time { return testNow }
	require.NoError(t, e.Initialize())
	require.Equal(t, StateReady, e.State())
	return e, rec
}

func axisEvent(number uint8, value int16) RawEvent {
	return RawEvent{Type: JS_EVENT_AXIS, Number: number, Value: value}
}

func buttonEvent(number uint8, value int16) RawEvent {
	return RawEvent{Type: JS_EVENT_BUTTON, Number: number, Value: value}
}

func TestEngine_ExecuteCycleBeforeInitialize(t *testing.T) {
	dev := &fakeDevice{}
	e := NewEngine(testSession(), openerFor(dev), Outputs{}, discardLogger())

	err := e.ExecuteCycle()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Zero(t, dev.polls)
}

func TestEngine_InitializeOpenFailure(t *testing.T) {
	openErr := &DeviceOpenError{Path: "/dev/input/js9", Op: "open", Err: errors.New("no such file or directory")}
	cfg := testSession()
	cfg.DevicePath = "/dev/input/js9"
	e := NewEngine(cfg, func(string) (Device, error) { return nil, openErr }, Outputs{}, discardLogger())

	err := e.Initialize()
	require.Error(t, err)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	var devErr *DeviceOpenError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "/dev/input/js9", devErr.Path)

	assert.Equal(t, StateUninitialized, e.State())
	assert.ErrorIs(t, e.ExecuteCycle(), ErrNotReady)
}

func TestEngine_InitializeRejectsInvalidSession(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SessionConfig)
	}{
		{"empty path", func(c *SessionConfig) { c.DevicePath = "" }},
		{"negative x axis", func(c *SessionConfig) { c.XAxis = -1 }},
		{"negative y axis", func(c *SessionConfig) { c.YAxis = -1 }},
		{"nan linear scale", func(c *SessionConfig) { c.ScaleV = math.NaN() }},
		{"infinite linear scale", func(c *SessionConfig) { c.ScaleV = math.Inf(1) }},
		{"infinite angular scale", func(c *SessionConfig) { c.ScaleA = math.Inf(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened := false
			cfg := testSession()
			tt.mutate(&cfg)
			e := NewEngine(cfg, func(string) (Device, error) {
				opened = true
				return &fakeDevice{}, nil
			}, Outputs{}, discardLogger())

			var initErr *InitError
			require.ErrorAs(t, e.Initialize(), &initErr)
			assert.False(t, opened, "device must not be opened for an invalid session")
			assert.Equal(t, StateUninitialized, e.State())
		})
	}
}

func TestEngine_InitializeTwiceIsNoop(t *testing.T) {
	opens := 0
	dev := &fakeDevice{}
	e := NewEngine(testSession(), func(string) (Device, error) {
		opens++
		return dev, nil
	}, Outputs{}, discardLogger())

	require.NoError(t, e.Initialize())
	require.NoError(t, e.Initialize())
	assert.Equal(t, 1, opens)
}

func TestEngine_NoDataIsSuccessfulNoop(t *testing.T) {
	dev := &fakeDevice{}
	e, rec := newReadyEngine(t, testSession(), dev)

	for i := 0; i < 5; i++ {
		require.NoError(t, e.ExecuteCycle())
	}
	assert.Equal(t, 5, dev.polls)
	assert.Zero(t, rec.total())

	snap := e.Snapshot()
	assert.Equal(t, uint64(5), snap.Stats.Cycles)
	assert.Zero(t, snap.Stats.Events)
}

func TestEngine_OneReadPerCycle(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(axisEvent(0, 100))
	dev.push(axisEvent(0, 200))
	e, rec := newReadyEngine(t, testSession(), dev)

	require.NoError(t, e.ExecuteCycle())
	assert.Equal(t, 1, dev.polls)
	require.Len(t, rec.axes, 1)
	assert.InDelta(t, 100.0/32767.0, rec.axes[0].Value, 1e-12)

	require.NoError(t, e.ExecuteCycle())
	assert.Equal(t, 2, dev.polls)
	require.Len(t, rec.axes, 2)
}

func TestEngine_XAxisPublishesThreeSamplesInOrder(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(axisEvent(0, 16384))
	cfg := testSession()
	cfg.ScaleA = 2.0
	e, rec := newReadyEngine(t, cfg, dev)

	require.NoError(t, e.ExecuteCycle())

	assert.Equal(t, []string{portAxes, portPosition, portVelocity}, rec.order)

	want := 16384.0 / 32767.0
	ts := timestampFrom(testNow)

	assert.Equal(t, AxisSample{Axis: 0, Value: want, Tm: ts}, rec.axes[0])
	assert.Equal(t, PositionSample{X: want, Y: 0, Tm: ts}, rec.positions[0])
	assert.InDelta(t, want*2.0, rec.velocity[0].Angular, 1e-12)
	assert.Zero(t, rec.velocity[0].LinearY)
	assert.Zero(t, rec.velocity[0].LinearX)
	assert.Equal(t, ts, rec.velocity[0].Tm)
}

func TestEngine_YAxisDrivesLinearVelocity(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(axisEvent(1, -32767))
	e, rec := newReadyEngine(t, testSession(), dev)

	require.NoError(t, e.ExecuteCycle())

	require.Len(t, rec.positions, 1)
	assert.Equal(t, -1.0, rec.positions[0].Y)
	assert.Equal(t, 1.0, rec.velocity[0].LinearY) // -1.0 * scale_v(-1.0)
	assert.Zero(t, rec.velocity[0].Angular)
	assert.Zero(t, rec.velocity[0].LinearX)
}

func TestEngine_PositionKeepsOtherAxis(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(axisEvent(1, 32767))
	dev.push(axisEvent(0, -32767))
	e, rec := newReadyEngine(t, testSession(), dev)

	require.NoError(t, e.ExecuteCycle())
	require.NoError(t, e.ExecuteCycle())

	require.Len(t, rec.positions, 2)
	assert.Equal(t, PositionSample{X: -1.0, Y: 1.0, Tm: timestampFrom(testNow)}, rec.positions[1])
	assert.Equal(t, -1.0, rec.velocity[1].LinearY)
	assert.Equal(t, -1.0, rec.velocity[1].Angular)
}

func TestEngine_UnmappedAxisPublishesOnce(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(axisEvent(5, 1000))
	e, rec := newReadyEngine(t, testSession(), dev)

	require.NoError(t, e.ExecuteCycle())

	assert.Equal(t, []string{portAxes}, rec.order)
	assert.Equal(t, 5, rec.axes[0].Axis)
	assert.Equal(t, uint64(1), e.Snapshot().Stats.Publishes)
}

func TestEngine_SameIndexForXAndYFavorsX(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(axisEvent(2, 32767))
	cfg := testSession()
	cfg.XAxis, cfg.YAxis = 2, 2
	e, rec := newReadyEngine(t, cfg, dev)

	require.NoError(t, e.ExecuteCycle())

	assert.Equal(t, 3, rec.total())
	assert.Equal(t, 1.0, rec.positions[0].X)
	assert.Zero(t, rec.positions[0].Y)
	assert.Zero(t, rec.velocity[0].LinearY)
}

func TestEngine_ButtonSamples(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(buttonEvent(3, 1))
	dev.push(buttonEvent(3, 0))
	e, rec := newReadyEngine(t, testSession(), dev)

	require.NoError(t, e.ExecuteCycle())
	require.NoError(t, e.ExecuteCycle())

	assert.Equal(t, []string{portButtons, portButtons}, rec.order)
	assert.Equal(t, ButtonSample{Button: 3, Pressed: true, Tm: timestampFrom(testNow)}, rec.buttons[0])
	assert.False(t, rec.buttons[1].Pressed)
}

func TestEngine_InitEventsAreDiscarded(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(RawEvent{Type: JS_EVENT_AXIS | JS_EVENT_INIT, Number: 0, Value: 12000})
	dev.push(RawEvent{Type: JS_EVENT_BUTTON | JS_EVENT_INIT, Number: 1, Value: 1})
	dev.push(RawEvent{Type: 0x04, Number: 0, Value: 1})
	e, rec := newReadyEngine(t, testSession(), dev)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.ExecuteCycle())
	}

	assert.Zero(t, rec.total())
	snap := e.Snapshot()
	assert.Equal(t, uint64(3), snap.Stats.Events)
	assert.Equal(t, uint64(3), snap.Stats.Discarded)
	assert.Equal(t, PositionSample{}, snap.Position)
}

func TestEngine_ReadErrorKeepsEngineReady(t *testing.T) {
	readErr := &DeviceReadError{Path: "/dev/input/js0", Err: io.ErrUnexpectedEOF}
	dev := &fakeDevice{}
	dev.push(axisEvent(0, 16384))
	dev.push(axisEvent(1, -32767))
	dev.script = append(dev.script, pollResult{err: readErr})
	dev.push(axisEvent(0, 0))
	e, rec := newReadyEngine(t, testSession(), dev)

	require.NoError(t, e.ExecuteCycle())
	require.NoError(t, e.ExecuteCycle())
	require.Equal(t, 6, rec.total())
	before := e.Snapshot()
	require.InDelta(t, 16384.0/32767.0, before.Position.X, 1e-12)
	require.Equal(t, -1.0, before.Position.Y)

	err := e.ExecuteCycle()
	var got *DeviceReadError
	require.ErrorAs(t, err, &got)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 6, rec.total(), "nothing published on a failed read")
	assert.Equal(t, StateReady, e.State())
	assert.Zero(t, dev.closes)

	after := e.Snapshot()
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.Velocity, after.Velocity)
	assert.Equal(t, uint64(1), after.Stats.ReadErrors)

	require.NoError(t, e.ExecuteCycle())
	assert.Equal(t, 9, rec.total())
	snap := e.Snapshot()
	assert.Zero(t, snap.Position.X)
	assert.Equal(t, -1.0, snap.Position.Y, "Y survives the failed cycle")
	assert.Equal(t, uint64(1), snap.Stats.ReadErrors)
}

func TestEngine_ClampsMinimumAxisValue(t *testing.T) {
	dev := &fakeDevice{}
	dev.push(axisEvent(0, -32768))
	e, rec := newReadyEngine(t, testSession(), dev)

	require.NoError(t, e.ExecuteCycle())
	assert.Equal(t, -1.0, rec.axes[0].Value)
	assert.Equal(t, -1.0, rec.positions[0].X)
}

func TestEngine_FinalizeClosesOnce(t *testing.T) {
	dev := &fakeDevice{}
	e, _ := newReadyEngine(t, testSession(), dev)

	e.Finalize()
	e.Finalize()

	assert.Equal(t, 1, dev.closes)
	assert.Equal(t, StateFinalized, e.State())
	assert.ErrorIs(t, e.ExecuteCycle(), ErrFinalized)

	err := e.Initialize()
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestEngine_FinalizeWithoutInitialize(t *testing.T) {
	e := NewEngine(testSession(), openerFor(&fakeDevice{}), Outputs{}, discardLogger())
	assert.NotPanics(t, e.Finalize)
	assert.Equal(t, StateFinalized, e.State())
}

func TestEngine_Snapshot(t *testing.T) {
	dev := &fakeDevice{info: DeviceInfo{Name: "Logitech Gamepad F310", Axes: 6, Buttons: 11, Version: 0x020100}}
	dev.push(axisEvent(0, 32767))
	dev.push(axisEvent(1, 32767))
	e, _ := newReadyEngine(t, testSession(), dev)

	require.NoError(t, e.ExecuteCycle())
	require.NoError(t, e.ExecuteCycle())

	snap := e.Snapshot()
	assert.Equal(t, "ready", snap.State)
	assert.Equal(t, "/dev/input/js0", snap.DevicePath)
	assert.Equal(t, "Logitech Gamepad F310", snap.Device.Name)
	assert.Equal(t, "2.1.0", snap.Device.VersionString())
	assert.Equal(t, PositionSample{X: 1, Y: 1, Tm: timestampFrom(testNow)}, snap.Position)
	assert.Equal(t, VelocityCommand{LinearY: -1, Angular: 1, Tm: timestampFrom(testNow)}, snap.Velocity)
	assert.Equal(t, EngineStats{Cycles: 2, Events: 2, Publishes: 6}, snap.Stats)
	assert.Equal(t, testNow, snap.At)

	e.Finalize()
	snap = e.Snapshot()
	assert.Equal(t, "finalized", snap.State)
	assert.Equal(t, DeviceInfo{}, snap.Device)
}

func TestEngineState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "finalized", StateFinalized.String())
	assert.Equal(t, "unknown(7)", EngineState(7).String())
}
