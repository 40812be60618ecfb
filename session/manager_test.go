package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coxswain-ai/coxswain/agent"
	"github.com/coxswain-ai/coxswain/eventbus"
	"github.com/coxswain-ai/coxswain/gateway"
)

// providerFunc adapts a function to the gateway.Provider interface. The
// manager shares one gateway across sessions, so implementations must be
// safe for concurrent use.
type providerFunc func(ctx context.Context, rc gateway.Context) (string, error)

func (f providerFunc) Name() string { return "stub" }
func (f providerFunc) Invoke(ctx context.Context, rc gateway.Context, profile gateway.CapabilityProfile) (*gateway.RawResponse, error) {
	text, err := f(ctx, rc)
	if err != nil {
		return nil, err
	}
	return &gateway.RawResponse{ID: "r1", Model: profile.Model, Text: text}, nil
}

type stubExecutor struct {
	mu      sync.Mutex
	actions []eventbus.Action
}

func (s *stubExecutor) Execute(ctx context.Context, action eventbus.Action, timeout time.Duration) (eventbus.Observation, error) {
	s.mu.Lock()
	s.actions = append(s.actions, action)
	s.mu.Unlock()
	return eventbus.Observation{Kind: eventbus.ObservationOutput, Output: "ok"}, nil
}

func finishProvider(message string) providerFunc {
	return func(ctx context.Context, rc gateway.Context) (string, error) {
		return `{"action": {"kind": "finish", "message": "` + message + `"}}`, nil
	}
}

func newTestManager(t *testing.T, p gateway.Provider, opts ...ManagerOption) *Manager {
	t.Helper()
	profile := gateway.CapabilityProfile{
		Provider: "stub", Model: "stub-1", ContextWindow: 8192,
		SupportsStructuredCalls: true,
	}
	gw := gateway.New(p, profile, gateway.WithRetryPolicy(gateway.RetryPolicy{MaxAttempts: 1}))
	opts = append([]ManagerOption{WithInactivityTimeout(0)}, opts...)
	m := NewManager(gw, &stubExecutor{}, opts...)
	t.Cleanup(m.Close)
	return m
}

func waitForState(t *testing.T, m *Manager, id string, want agent.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, err := m.State(id); err == nil && s == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	s, err := m.State(id)
	t.Fatalf("timed out waiting for state %s, at %s (err=%v)", want, s, err)
}

func TestSendRunsTurnToCompletion(t *testing.T) {
	m := newTestManager(t, finishProvider("done"))

	id, err := m.Create()
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := m.Send(id, "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitForState(t, m, id, agent.StateComplete)

	events, err := m.Events(id)
	if err != nil {
		t.Fatalf("events failed: %v", err)
	}
	if len(events) != 2 || events[0].Kind() != "message" || events[1].Kind() != "finish" {
		t.Errorf("unexpected event log: %v", events)
	}
}

func TestSendWhileBusy(t *testing.T) {
	release := make(chan struct{})
	blocking := providerFunc(func(ctx context.Context, rc gateway.Context) (string, error) {
		select {
		case <-release:
			return "all done", nil
		case <-ctx.Done():
			return "", &gateway.CancelledError{GatewayError: gateway.GatewayError{Message: "cancelled", Cause: ctx.Err()}}
		}
	})
	m := newTestManager(t, blocking)

	id, _ := m.Create()
	if err := m.Send(id, "first"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitForState(t, m, id, agent.StateAwaitingReasoning)

	if err := m.Send(id, "second"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("expected ErrSessionBusy, got %v", err)
	}

	close(release)
	waitForState(t, m, id, agent.StateComplete)
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	release := make(chan struct{})
	p := providerFunc(func(ctx context.Context, rc gateway.Context) (string, error) {
		last := rc.Messages[len(rc.Messages)-1].Content
		if last == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return "", &gateway.CancelledError{GatewayError: gateway.GatewayError{Message: "cancelled", Cause: ctx.Err()}}
			}
		}
		return "done", nil
	})
	m := newTestManager(t, p)

	slow, _ := m.Create()
	fast, _ := m.Create()

	if err := m.Send(slow, "slow"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := m.Send(fast, "quick question"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// The fast session finishes while the slow one is still mid-turn.
	waitForState(t, m, fast, agent.StateComplete)
	if s, _ := m.State(slow); s != agent.StateAwaitingReasoning {
		t.Errorf("slow session should still be reasoning, got %s", s)
	}
	close(release)
	waitForState(t, m, slow, agent.StateComplete)
}

func TestConfirmationRoutedThroughManager(t *testing.T) {
	p := providerFunc(func(ctx context.Context, rc gateway.Context) (string, error) {
		return `{"action": {"kind": "run_command", "command": "rm -rf build", "requires_confirmation": true}}`, nil
	})
	m := newTestManager(t, p)

	id, _ := m.Create()
	if err := m.Send(id, "clean up"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitForState(t, m, id, agent.StateAwaitingConfirmation)

	pending, ok, err := m.Pending(id)
	if err != nil || !ok {
		t.Fatalf("expected a pending action (err=%v)", err)
	}
	if pending.Command != "rm -rf build" {
		t.Errorf("unexpected pending action: %+v", pending)
	}

	if err := m.Resolve(id, agent.DecisionApproved); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	waitForState(t, m, id, agent.StateIdle)
}

func TestResolveUnknownSession(t *testing.T) {
	m := newTestManager(t, finishProvider("done"))
	if err := m.Resolve("no-such-id", agent.DecisionApproved); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestTerminateRemovesSession(t *testing.T) {
	m := newTestManager(t, finishProvider("done"))

	id, _ := m.Create()
	if err := m.Terminate(id, "operator request"); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}

	if err := m.Send(id, "hello?"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after terminate, got %v", err)
	}
	if _, err := m.State(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after terminate, got %v", err)
	}
	if err := m.Terminate(id, "again"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("repeated terminate should report not found, got %v", err)
	}
}

func TestTerminateCancelsInflightTurn(t *testing.T) {
	blocking := providerFunc(func(ctx context.Context, rc gateway.Context) (string, error) {
		<-ctx.Done()
		return "", &gateway.CancelledError{GatewayError: gateway.GatewayError{Message: "cancelled", Cause: ctx.Err()}}
	})

	var (
		mu  sync.Mutex
		bus *eventbus.Bus
	)
	m := newTestManager(t, blocking, WithSessionHook(func(id string, b *eventbus.Bus) {
		mu.Lock()
		bus = b
		mu.Unlock()
	}))

	id, _ := m.Create()
	if err := m.Send(id, "work on this"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitForState(t, m, id, agent.StateAwaitingReasoning)

	if err := m.Terminate(id, "operator abort"); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}

	// The cancelled turn must land its error event before the bus closes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		events := bus.Replay()
		mu.Unlock()
		if n := len(events); n > 0 {
			last := events[n-1]
			if last.Type == eventbus.TypeAction && last.Action.Kind == eventbus.ActionError {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("cancelled turn never published its error event")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIdleSessionExpires(t *testing.T) {
	m := newTestManager(t, finishProvider("done"), WithInactivityTimeout(40*time.Millisecond))

	id, _ := m.Create()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := m.State(id); errors.Is(err, ErrSessionNotFound) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("idle session was never expired")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
