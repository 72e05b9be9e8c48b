package main

// AxisRouter fans an axis sample out to the raw, position and velocity ports.
//
// It exclusively owns the position and velocity accumulators. Only the
// scheduler goroutine may call its methods.
type AxisRouter struct {
	xAxis  int
	yAxis  int
	scaleV float64
	scaleA float64

	position PositionSample
	velocity VelocityCommand

	out Outputs
}

func newAxisRouter(cfg SessionConfig, out Outputs) *AxisRouter {
	return &AxisRouter{
		xAxis:  cfg.XAxis,
		yAxis:  cfg.YAxis,
		scaleV: cfg.ScaleV,
		scaleA: cfg.ScaleA,
		out:    out.withDefaults(),
	}
}

// Route publishes s on the raw axis port and, when s is on a mapped axis,
// updates and publishes position and velocity. It returns the publish count.
func (r *AxisRouter) Route(s AxisSample) int {
	r.out.Axes.Publish(s)

	switch s.Axis {
	case r.xAxis:
		r.setX(s.Value, s.Tm)
	case r.yAxis:
		r.setY(s.Value, s.Tm)
	default:
		return 1
	}

	r.out.Position.Publish(r.position)
	r.out.Velocity.Publish(r.velocity)
	return 3
}

func (r *AxisRouter) setX(v float64, ts Timestamp) {
	r.position.X = v
	r.position.Tm = ts
	r.velocity.Angular = v * r.scaleA
	r.velocity.Tm = ts
}

func (r *AxisRouter) setY(v float64, ts Timestamp) {
	r.position.Y = v
	r.position.Tm = ts
	r.velocity.LinearY = v * r.scaleV
	r.velocity.Tm = ts
}

// reset zeroes both accumulators.
func (r *AxisRouter) reset() {
	r.position = PositionSample{}
	r.velocity = VelocityCommand{}
}

func (r *AxisRouter) Position() PositionSample  { return r.position }
func (r *AxisRouter) Velocity() VelocityCommand { return r.velocity }
