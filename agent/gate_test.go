package agent

import (
	"errors"
	"testing"

	"github.com/coxswain-ai/coxswain/eventbus"
)

func TestGateResolveApproved(t *testing.T) {
	g := NewConfirmationGate()
	action := eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "rm -rf build", RequiresConfirmation: true}

	ch, err := g.Gate(action)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, ok := g.Pending()
	if !ok || pending.Command != "rm -rf build" {
		t.Fatalf("expected pending action, got %+v (ok=%v)", pending, ok)
	}

	if err := g.Resolve(DecisionApproved); err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if d := <-ch; d != DecisionApproved {
		t.Errorf("expected approval, got %s", d)
	}
	if _, ok := g.Pending(); ok {
		t.Error("gate should be empty after resolution")
	}
}

func TestGateResolveWithoutPending(t *testing.T) {
	g := NewConfirmationGate()
	if err := g.Resolve(DecisionRejected); !errors.Is(err, ErrNoPendingAction) {
		t.Errorf("expected ErrNoPendingAction, got %v", err)
	}
}

func TestGateSecondGateRejected(t *testing.T) {
	g := NewConfirmationGate()
	if _, err := g.Gate(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.Gate(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "b"}); !errors.Is(err, ErrConfirmationPending) {
		t.Errorf("expected ErrConfirmationPending, got %v", err)
	}
}

func TestGateAbandon(t *testing.T) {
	g := NewConfirmationGate()
	if _, err := g.Gate(eventbus.Action{Kind: eventbus.ActionRunCommand, Command: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g.abandon()
	if err := g.Resolve(DecisionApproved); !errors.Is(err, ErrNoPendingAction) {
		t.Errorf("resolve after abandon should fail, got %v", err)
	}
}
