// Package control runs the fixed-rate path-following loop.
//
// Each tick the [Loop] snapshots the latest state estimate, asks the
// reference provider for a horizon, solves the MPC problem with the warm
// start carried from the previous tick and hands the outcome to the
// [Arbiter], which publishes a drive command (Optimal solves only), the
// braking command once the path is exhausted, and a [Diagnostic] record.
//
// The loop has two tracking states. TRACKING moves to STOPPED when the
// provider raises its stop flag and never moves back:
//
//	TRACKING --stop flag--> STOPPED (brake every tick)
//
// Ticks before the first state estimate are idle: nothing is queried,
// solved or published.
package control
