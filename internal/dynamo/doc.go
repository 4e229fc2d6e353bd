// Package dynamo provides the core types shared by the path-following
// controller.
//
// The package defines the vocabulary every other package speaks:
//
//   - [VehicleState]: pose and speed {x, y, yaw, v} in the local frame
//   - [Input]: one control step {acceleration, steering}
//   - [State] / [Control]: vector forms used by models and integrators
//   - [System]: interface for vehicle models (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//
// # Errors
//
// Sentinel errors ([ErrConfiguration], [ErrHorizonMismatch], ...) are
// wrapped by typed errors such as [ConfigurationError]; match them with
// errors.Is.
//
// # Angles
//
// Yaw is in radians. [WrapAngle] and [NearestEquivalent] keep reference
// headings continuous with the vehicle heading so that tracking costs never
// see a 2*pi jump.
package dynamo
