// Package realtime keeps one logical realtime channel open on behalf of the
// application.
//
// A Connection dials the socket with the current access token, dispatches
// inbound {type, payload} envelopes to subscribers, and reconnects on drop a
// bounded number of times. Subscriptions live in the Connection, not in the
// socket, so they survive reconnects and manual disconnects.
//
// State machine:
//
//	idle -> connecting -> open -> closed -> reconnecting -> connecting ...
//
// Disconnect returns to idle from any state. Once the attempt budget is
// spent the connection stays closed until Connect is called again.
package realtime
