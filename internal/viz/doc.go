// Package viz shows a running controller live.
//
// Two views are offered, both fed from the arbiter as command and diagnostic
// sinks:
//
//   - [Model]: Bubble Tea dashboard with a Braille [Canvas] of the path, the
//     predicted trajectory and the vehicle, plus solver statistics
//   - [WebMonitor]: websocket broadcaster of every tick as JSON
//
// # Key Bindings
//
//	Space - Freeze/unfreeze the display (the loop keeps running)
//	F     - Toggle follow camera
//	?     - Show help overlay
//	Q     - Quit (stops the loop)
package viz
