// Package session manages the set of live agent sessions: creation,
// asynchronous message dispatch, confirmation routing, forced
// termination, and idle expiry. Sessions share one gateway and executor
// but are otherwise fully independent; each carries its own event bus
// and controller.
package session
