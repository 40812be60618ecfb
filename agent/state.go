package agent

import "github.com/coxswain-ai/coxswain/eventbus"

// State is the lifecycle state of a session's agent. Exactly one state
// is live per session; transitions happen only inside the controller and
// every transition publishes exactly one event, so State is always a
// recomputable projection of the event log (see DeriveState).
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingReasoning    State = "awaiting_reasoning"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuting            State = "executing"
	StateErred                State = "erred"
	StateComplete             State = "complete"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateErred || s == StateComplete
}

// DeriveState folds an event log from the initial Idle state into the
// agent state it implies. At any quiescent point this agrees with the
// live controller's state.
func DeriveState(events []eventbus.Event) State {
	state := StateIdle
	for _, e := range events {
		if state.Terminal() {
			return state
		}
		state = applyEvent(state, e)
	}
	return state
}

func applyEvent(state State, e eventbus.Event) State {
	switch e.Type {
	case eventbus.TypeAction:
		if e.Action == nil {
			return state
		}
		switch {
		case e.Action.Kind == eventbus.ActionError:
			return StateErred
		case e.Action.Kind == eventbus.ActionFinish:
			return StateComplete
		case e.Action.RequiresConfirmation || e.Action.Kind == eventbus.ActionRequestConfirmation:
			return StateAwaitingConfirmation
		default:
			return StateExecuting
		}

	case eventbus.TypeObservation:
		if e.Observation == nil {
			return state
		}
		switch e.Observation.Kind {
		case eventbus.ObservationMessage:
			return StateAwaitingReasoning
		case eventbus.ObservationApproval:
			return StateExecuting
		default:
			// output, failure, timeout, rejection: the turn is over.
			return StateIdle
		}
	}
	return state
}
