// Package engine runs the lottery round lifecycle.
//
// The engine:
//   - Opens epochs sealed with an external entropy seed
//   - Accepts weighted bets and the participation bookkeeping around them
//   - Settles each epoch with a digest-driven tier and winner draw
//   - Applies prizes, streaks, and season standings after the draw
//   - Emits settlement results to broadcast and archive sinks
//
// The settlement draw derives everything from one SHA-256 digest over
// the epoch snapshot, so outcomes are reproducible by any observer.
package engine
