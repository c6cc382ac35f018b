// Package notify implements the settlement broadcast sinks.
//
// The sinks:
//   - Log every settlement result locally
//   - Publish signed envelopes to websocket relays, fire-and-forget
//
// Broadcasting never sits on the settlement path; results queue through
// a growable ring and dead relays are redialed on the next result.
package notify
