// Package agent drives one session's lifecycle: a controller that turns
// inbound principal messages into reasoning calls, gates risky actions
// behind human confirmation, executes approved actions, and records
// every transition as an event on the session bus.
//
// The controller is the single writer of agent state. Each transition
// publishes exactly one event, which makes the live state a projection
// of the event log: DeriveState recomputes it from scratch and agrees
// with State() at every quiescent point.
package agent
