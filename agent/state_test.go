package agent

import (
	"testing"

	"github.com/coxswain-ai/coxswain/eventbus"
)

func actionEvt(a eventbus.Action) eventbus.Event {
	return eventbus.ActionEvent(a)
}

func obsEvt(o eventbus.Observation) eventbus.Event {
	return eventbus.ObservationEvent(o, nil)
}

func TestDeriveStateEmptyLogIsIdle(t *testing.T) {
	if s := DeriveState(nil); s != StateIdle {
		t.Errorf("expected idle for empty log, got %s", s)
	}
}

func TestDeriveStateTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []eventbus.Event
		want   State
	}{
		{
			name:   "inbound message",
			events: []eventbus.Event{obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage})},
			want:   StateAwaitingReasoning,
		},
		{
			name: "plain command proposal",
			events: []eventbus.Event{
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
				actionEvt(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "ls"}),
			},
			want: StateExecuting,
		},
		{
			name: "gated command proposal",
			events: []eventbus.Event{
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
				actionEvt(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "rm -rf build", RequiresConfirmation: true}),
			},
			want: StateAwaitingConfirmation,
		},
		{
			name: "approval resumes execution",
			events: []eventbus.Event{
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
				actionEvt(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "rm -rf build", RequiresConfirmation: true}),
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationApproval}),
			},
			want: StateExecuting,
		},
		{
			name: "rejection ends the turn",
			events: []eventbus.Event{
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
				actionEvt(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "rm -rf build", RequiresConfirmation: true}),
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationRejection}),
			},
			want: StateIdle,
		},
		{
			name: "output ends the turn",
			events: []eventbus.Event{
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
				actionEvt(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "ls"}),
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationOutput, Output: "files"}),
			},
			want: StateIdle,
		},
		{
			name: "failure is recoverable",
			events: []eventbus.Event{
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
				actionEvt(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "false"}),
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationFailure, ExitCode: 1}),
			},
			want: StateIdle,
		},
		{
			name: "finish completes",
			events: []eventbus.Event{
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
				actionEvt(eventbus.Action{Kind: eventbus.ActionFinish, Message: "done"}),
			},
			want: StateComplete,
		},
		{
			name: "error event is terminal",
			events: []eventbus.Event{
				obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
				actionEvt(eventbus.Action{Kind: eventbus.ActionError, Message: "provider auth failed"}),
			},
			want: StateErred,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveState(tt.events); got != tt.want {
				t.Errorf("DeriveState = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveStateTerminalAbsorbs(t *testing.T) {
	events := []eventbus.Event{
		obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
		actionEvt(eventbus.Action{Kind: eventbus.ActionFinish}),
		// Nothing after a terminal state may move it.
		obsEvt(eventbus.Observation{Kind: eventbus.ObservationMessage}),
		actionEvt(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "ls"}),
	}
	if got := DeriveState(events); got != StateComplete {
		t.Errorf("terminal state should absorb later events, got %s", got)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateAwaitingReasoning, StateAwaitingConfirmation, StateExecuting} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []State{StateErred, StateComplete} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
