package eventbus

import (
	"fmt"
	"time"
)

// EventType discriminates between the two halves of the event union.
type EventType string

const (
	TypeAction      EventType = "action"
	TypeObservation EventType = "observation"
)

// ActionKind identifies an agent-proposed intent.
type ActionKind string

const (
	ActionRunCommand          ActionKind = "run_command"
	ActionSendMessage         ActionKind = "send_message"
	ActionRequestConfirmation ActionKind = "request_confirmation"
	ActionFinish              ActionKind = "finish"
	ActionError               ActionKind = "error"
)

// ObservationKind identifies the result of an action or an environmental
// signal fed into the session.
type ObservationKind string

const (
	ObservationOutput    ObservationKind = "output"
	ObservationRejection ObservationKind = "rejection"
	ObservationFailure   ObservationKind = "failure"
	ObservationTimeout   ObservationKind = "timeout"

	// Environmental signals: an inbound principal message and a
	// confirmation approval. Both must appear in the log so the agent
	// state remains a pure projection of the event stream.
	ObservationMessage  ObservationKind = "message"
	ObservationApproval ObservationKind = "approval"
)

// Action is an agent-proposed intent to affect the environment.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Command string     `json:"command,omitempty"` // run_command
	Message string     `json:"message,omitempty"` // send_message text, finish summary, error detail

	// RequiresConfirmation gates the action behind a human decision
	// before it may be dispatched to the executor.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`
}

// Observation is the recorded result of an Action or an environmental signal.
type Observation struct {
	Kind     ObservationKind `json:"kind"`
	Output   string          `json:"output,omitempty"`
	ExitCode int             `json:"exit_code,omitempty"`
}

// Event is the atomic unit on the bus: exactly one of Action or
// Observation is set, matching Type. Events are immutable once published.
type Event struct {
	Seq         uint64       `json:"seq"`
	SessionID   string       `json:"session_id"`
	Type        EventType    `json:"type"`
	Timestamp   time.Time    `json:"timestamp"`
	CausedBy    *uint64      `json:"caused_by,omitempty"` // seq of the event this responds to
	Action      *Action      `json:"action,omitempty"`
	Observation *Observation `json:"observation,omitempty"`
}

// ActionEvent builds an unpublished action event. Seq, SessionID, and
// Timestamp are assigned by the bus at publish time.
func ActionEvent(a Action) Event {
	return Event{Type: TypeAction, Action: &a}
}

// ObservationEvent builds an unpublished observation event. causedBy is
// the sequence number of the action it responds to, or nil for
// environmental signals.
func ObservationEvent(o Observation, causedBy *uint64) Event {
	return Event{Type: TypeObservation, Observation: &o, CausedBy: causedBy}
}

// Kind returns the action or observation kind as a string, whichever half
// of the union is populated.
func (e Event) Kind() string {
	switch e.Type {
	case TypeAction:
		if e.Action != nil {
			return string(e.Action.Kind)
		}
	case TypeObservation:
		if e.Observation != nil {
			return string(e.Observation.Kind)
		}
	}
	return ""
}

func (e Event) String() string {
	return fmt.Sprintf("event %d (%s/%s)", e.Seq, e.Type, e.Kind())
}
