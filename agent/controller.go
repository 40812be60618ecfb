package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coxswain-ai/coxswain/eventbus"
	"github.com/coxswain-ai/coxswain/gateway"
)

// ErrSessionTerminated is returned when a message arrives for a session
// whose agent has reached a terminal state.
var ErrSessionTerminated = errors.New("session is terminated")

// ErrExecutorUnreachable marks an executor that could not run the action
// at all, as opposed to a command that ran and failed. It is fatal for
// the session.
var ErrExecutorUnreachable = errors.New("executor unreachable")

// DefaultSystemPrompt instructs the reasoning engine on the action
// envelope the controller expects back.
const DefaultSystemPrompt = `You are an autonomous agent operating inside a supervised session.
To act, reply with exactly one JSON action envelope:
  {"action": {"kind": "run_command", "command": "...", "requires_confirmation": false}}
  {"action": {"kind": "send_message", "message": "..."}}
  {"action": {"kind": "request_confirmation", "message": "..."}}
  {"action": {"kind": "finish", "message": "..."}}
Set "requires_confirmation": true on any command that modifies state or
could be destructive. Commentary before the envelope is allowed. A reply
with no envelope is treated as a finish.`

// Config carries the controller's operational timeouts.
type Config struct {
	// GatewayTimeout bounds each individual reasoning request.
	GatewayTimeout time.Duration
	// CommandTimeout bounds each executed command.
	CommandTimeout time.Duration
	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string
}

// DefaultConfig returns the standard controller timeouts.
func DefaultConfig() Config {
	return Config{
		GatewayTimeout: 2 * time.Minute,
		CommandTimeout: 5 * time.Minute,
	}
}

// Controller owns one session's agent lifecycle. It is the only writer
// of agent state: every transition publishes exactly one event to the
// session bus, so the event log fully determines the state at any
// quiescent point. HandleMessage runs one full turn synchronously;
// callers serialize turns (a session processes one message at a time).
type Controller struct {
	sessionID string
	bus       *eventbus.Bus
	gw        *gateway.Gateway
	executor  Executor
	gate      *ConfirmationGate
	cfg       Config
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// NewController wires a controller over its session bus, gateway, and
// executor. Pass nil logger for the default.
func NewController(sessionID string, bus *eventbus.Bus, gw *gateway.Gateway, executor Executor, cfg Config, logger *slog.Logger) *Controller {
	if cfg.GatewayTimeout == 0 {
		cfg.GatewayTimeout = DefaultConfig().GatewayTimeout
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = DefaultConfig().CommandTimeout
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sessionID: sessionID,
		bus:       bus,
		gw:        gw,
		executor:  executor,
		gate:      NewConfirmationGate(),
		cfg:       cfg,
		logger:    logger.With("component", "controller", "session_id", sessionID),
		state:     StateIdle,
	}
}

// State returns the current agent state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Gate exposes the session's confirmation gate so decisions can be
// routed in from outside the turn.
func (c *Controller) Gate() *ConfirmationGate { return c.gate }

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("state transition", "state", string(s))
}

// HandleMessage runs one complete turn: record the inbound message,
// obtain one reasoning response, and drive the proposed action through
// confirmation and execution until the session is quiescent again. A
// non-nil return means the session ended in Erred; Complete and a
// normally finished turn return nil.
func (c *Controller) HandleMessage(ctx context.Context, text string) error {
	if c.State().Terminal() {
		return ErrSessionTerminated
	}

	c.bus.Publish(eventbus.ObservationEvent(eventbus.Observation{
		Kind:   eventbus.ObservationMessage,
		Output: text,
	}, nil))
	c.setState(StateAwaitingReasoning)

	resp, err := c.gw.Complete(ctx, c.buildContext(), gateway.Options{Timeout: c.cfg.GatewayTimeout})
	if err != nil {
		return c.fail(err)
	}

	action := resp.Action
	published := c.bus.Publish(eventbus.ActionEvent(action))
	if published.Seq == 0 {
		// The bus closed underneath the turn: the session is being torn
		// down, and a zero sequence must never become a causal link.
		c.logger.Debug("bus closed mid-turn, abandoning")
		return nil
	}
	actionSeq := published.Seq

	if action.Kind == eventbus.ActionFinish {
		c.setState(StateComplete)
		c.logger.Info("session complete")
		return nil
	}

	if action.RequiresConfirmation || action.Kind == eventbus.ActionRequestConfirmation {
		// Register the gate before the state becomes visible so a
		// decision routed in immediately afterwards always lands.
		ch, err := c.gate.Gate(action)
		if err != nil {
			return c.fail(err)
		}
		c.setState(StateAwaitingConfirmation)
		c.logger.Info("awaiting confirmation", "kind", string(action.Kind), "command", action.Command)

		approved, err := c.awaitDecision(ctx, ch, actionSeq)
		if err != nil {
			return c.fail(err)
		}
		if !approved {
			// The rejection observation is already in the log; the next
			// turn's context carries it to the reasoning engine.
			c.setState(StateIdle)
			return nil
		}
	}

	c.setState(StateExecuting)
	if action.Kind == eventbus.ActionRequestConfirmation {
		// A bare confirmation request carries nothing to execute, but the
		// Executing→Idle transition still needs its event so the log
		// replays to Idle.
		c.bus.Publish(eventbus.ObservationEvent(eventbus.Observation{
			Kind:   eventbus.ObservationOutput,
			Output: "confirmed",
		}, &actionSeq))
		c.setState(StateIdle)
		return nil
	}

	obs, err := c.executor.Execute(ctx, action, c.cfg.CommandTimeout)
	if err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrExecutorUnreachable, err))
	}
	c.bus.Publish(eventbus.ObservationEvent(obs, &actionSeq))
	c.setState(StateIdle)
	return nil
}

// awaitDecision parks the turn on the confirmation gate until a human
// decision arrives or the turn is cancelled. Approval and rejection are
// both published as observations caused by the gated action.
func (c *Controller) awaitDecision(ctx context.Context, ch <-chan Decision, actionSeq uint64) (bool, error) {
	select {
	case d := <-ch:
		if d == DecisionApproved {
			c.bus.Publish(eventbus.ObservationEvent(eventbus.Observation{
				Kind: eventbus.ObservationApproval,
			}, &actionSeq))
			return true, nil
		}
		c.bus.Publish(eventbus.ObservationEvent(eventbus.Observation{
			Kind:   eventbus.ObservationRejection,
			Output: "the proposed action was rejected by the user",
		}, &actionSeq))
		return false, nil

	case <-ctx.Done():
		c.gate.abandon()
		return false, &gateway.CancelledError{GatewayError: gateway.GatewayError{Message: "turn cancelled while awaiting confirmation", Cause: ctx.Err()}}
	}
}

// Terminate force-ends the session with an error event carrying the
// reason. Safe to call on an already terminal session.
func (c *Controller) Terminate(reason string) {
	if c.State().Terminal() {
		return
	}
	c.gate.abandon()
	c.bus.Publish(eventbus.ActionEvent(eventbus.Action{
		Kind:    eventbus.ActionError,
		Message: reason,
	}))
	c.setState(StateErred)
	c.logger.Info("session terminated", "reason", reason)
}

// fail records a fatal turn failure as an error event and moves the
// session to Erred. The original error is returned for the caller.
func (c *Controller) fail(err error) error {
	msg := err.Error()
	if gateway.IsCancelled(err) {
		msg = "turn cancelled: " + msg
	}
	c.bus.Publish(eventbus.ActionEvent(eventbus.Action{
		Kind:    eventbus.ActionError,
		Message: msg,
	}))
	c.setState(StateErred)
	c.logger.Error("session erred", "error", err)
	return err
}

// buildContext renders the session's full event log into the ordered
// reasoning context. Approval and error events carry no information the
// engine needs and are skipped.
func (c *Controller) buildContext() gateway.Context {
	rc := gateway.Context{System: c.cfg.SystemPrompt}
	for _, e := range c.bus.Replay() {
		switch e.Type {
		case eventbus.TypeAction:
			if e.Action == nil || e.Action.Kind == eventbus.ActionError {
				continue
			}
			rc.Messages = append(rc.Messages, gateway.Message{
				Role:    gateway.RoleAssistant,
				Content: renderAction(*e.Action),
			})

		case eventbus.TypeObservation:
			if e.Observation == nil {
				continue
			}
			switch e.Observation.Kind {
			case eventbus.ObservationMessage:
				rc.Messages = append(rc.Messages, gateway.Message{
					Role:    gateway.RoleUser,
					Content: e.Observation.Output,
				})
			case eventbus.ObservationApproval:
				// Implicit in the execution that follows.
			default:
				rc.Messages = append(rc.Messages, gateway.Message{
					Role:    gateway.RoleObservation,
					Content: renderObservation(*e.Observation),
				})
			}
		}
	}
	return rc
}

// renderAction reproduces an action as the envelope the engine was asked
// to emit, so the transcript the engine sees matches its own output
// format.
func renderAction(a eventbus.Action) string {
	env := struct {
		Action eventbus.Action `json:"action"`
	}{Action: a}
	b, err := json.Marshal(env)
	if err != nil {
		return string(a.Kind)
	}
	return string(b)
}

func renderObservation(o eventbus.Observation) string {
	switch o.Kind {
	case eventbus.ObservationFailure:
		return fmt.Sprintf("command failed with exit code %d:\n%s", o.ExitCode, o.Output)
	case eventbus.ObservationTimeout:
		if o.Output == "" {
			return "command timed out before completing"
		}
		return "command timed out before completing; partial output:\n" + o.Output
	default:
		return o.Output
	}
}
