// Package eventbus defines the session event model and an ordered,
// multi-subscriber distribution primitive.
//
// An Event is the tagged union of an Action (an agent-proposed intent)
// and an Observation (the result of executing an action, or an
// environmental signal). Every event carries a session-monotonic,
// gapless sequence number and an optional causal link to the event it
// responds to. The append-only event log owned by the Bus is the sole
// source of truth for session history; agent state is a derived
// projection of it.
//
// The Bus decouples the producer (the agent controller) from its
// consumers (transport relays, persistence writers, audit sinks). All
// subscribers observe a session's events in the same total order.
// Delivery is backpressure-isolating: a subscriber whose bounded queue
// fills up is disconnected instead of stalling publication for everyone
// else.
package eventbus
