// Package session is the authentication state machine the rest of the client
// observes.
//
// Statuses are anonymous, authenticating, pending_confirmation and
// authenticated. A failed operation sets Err on top of the current stable
// status instead of replacing it; the next operation clears it.
//
// The stable part of the state (user, identity, isAuthenticated,
// pendingConfirmation) is persisted as one JSON record under
// "<namespace>:session" and restored on construction, before CheckSession
// gets a chance to correct it.
package session
