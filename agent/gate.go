package agent

import (
	"errors"
	"sync"

	"github.com/coxswain-ai/coxswain/eventbus"
)

// Decision is a human resolution of a gated action.
type Decision int

const (
	DecisionApproved Decision = iota + 1
	DecisionRejected
)

func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ErrNoPendingAction is returned by Resolve when nothing awaits a decision.
var ErrNoPendingAction = errors.New("no action awaiting confirmation")

// ErrConfirmationPending is returned by Gate when a decision is already
// outstanding: a session holds at most one pending action at a time.
var ErrConfirmationPending = errors.New("an action is already awaiting confirmation")

// ConfirmationGate is the interactive checkpoint between action proposal
// and execution. The controller parks on the channel returned by Gate;
// Resolve delivers the human decision asynchronously from any goroutine.
type ConfirmationGate struct {
	mu      sync.Mutex
	pending chan Decision
	action  *eventbus.Action
}

// NewConfirmationGate creates an empty gate.
func NewConfirmationGate() *ConfirmationGate {
	return &ConfirmationGate{}
}

// Gate registers an action awaiting confirmation and returns the channel
// its decision will arrive on.
func (g *ConfirmationGate) Gate(action eventbus.Action) (<-chan Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return nil, ErrConfirmationPending
	}
	g.pending = make(chan Decision, 1)
	g.action = &action
	return g.pending, nil
}

// Resolve delivers the decision for the pending action.
func (g *ConfirmationGate) Resolve(d Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return ErrNoPendingAction
	}
	g.pending <- d
	g.pending = nil
	g.action = nil
	return nil
}

// Pending returns the action awaiting confirmation, if any.
func (g *ConfirmationGate) Pending() (eventbus.Action, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.action == nil {
		return eventbus.Action{}, false
	}
	return *g.action, true
}

// abandon clears a pending action without resolving it, used when the
// waiting turn is cancelled. A later Resolve returns ErrNoPendingAction.
func (g *ConfirmationGate) abandon() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = nil
	g.action = nil
}
