// Package physics provides the vehicle model used by both the MPC
// prediction and the simulated plant.
//
// [Bicycle] implements [dynamo.System] with state {x, y, yaw, v} and input
// {acceleration, front steer}. It also implements [dynamo.Configurable]
// so the axle distances can be set by name:
//
//	b := physics.NewBicycle()
//	_ = b.SetParam("lf", 1.2)
package physics
