package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coxswain-ai/coxswain/agent"
	"github.com/coxswain-ai/coxswain/eventbus"
	"github.com/coxswain-ai/coxswain/gateway"
)

var (
	// ErrSessionNotFound is returned for an unknown or terminated session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned when a message arrives while a turn is
	// already in flight: a session processes one message at a time.
	ErrSessionBusy = errors.New("session is processing a message")
)

// DefaultInactivityTimeout is how long an idle session survives before
// the janitor expires it. Zero disables expiry.
const DefaultInactivityTimeout = 30 * time.Minute

type managedSession struct {
	id     string
	bus    *eventbus.Bus
	ctrl   *agent.Controller
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// guarded by the manager mutex
	busy       bool
	lastActive time.Time
}

// Manager owns the set of live sessions: creation, message dispatch,
// confirmation routing, and teardown. Each Send runs the turn on its own
// goroutine so concurrent sessions never block one another.
type Manager struct {
	gw         *gateway.Gateway
	executor   agent.Executor
	agentCfg   agent.Config
	bufferSize int
	inactivity time.Duration
	onCreate   func(id string, bus *eventbus.Bus)
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
	closed   bool

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAgentConfig overrides the per-session controller configuration.
func WithAgentConfig(cfg agent.Config) ManagerOption {
	return func(m *Manager) { m.agentCfg = cfg }
}

// WithSubscriberBuffer sets the per-subscriber queue depth on session buses.
func WithSubscriberBuffer(n int) ManagerOption {
	return func(m *Manager) { m.bufferSize = n }
}

// WithInactivityTimeout sets how long an idle session lives. Zero or
// negative disables expiry.
func WithInactivityTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.inactivity = d }
}

// WithSessionHook registers a callback invoked for every new session
// before it accepts messages, typically to attach event sinks to its bus.
func WithSessionHook(fn func(id string, bus *eventbus.Bus)) ManagerOption {
	return func(m *Manager) { m.onCreate = fn }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a session manager over a shared gateway and
// executor. The janitor goroutine starts immediately when an inactivity
// timeout is in effect.
func NewManager(gw *gateway.Gateway, executor agent.Executor, opts ...ManagerOption) *Manager {
	m := &Manager{
		gw:         gw,
		executor:   executor,
		agentCfg:   agent.DefaultConfig(),
		inactivity: DefaultInactivityTimeout,
		logger:     slog.Default(),
		sessions:   make(map[string]*managedSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session-manager")

	if m.inactivity > 0 {
		m.janitorStop = make(chan struct{})
		m.janitorDone = make(chan struct{})
		go m.janitor()
	}
	return m
}

// Create starts a new session and returns its identifier.
func (m *Manager) Create() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.New("manager is closed")
	}

	id := uuid.New().String()
	bus := eventbus.New(id, m.bufferSize, m.logger)
	ctx, cancel := context.WithCancel(context.Background())
	s := &managedSession{
		id:         id,
		bus:        bus,
		ctrl:       agent.NewController(id, bus, m.gw, m.executor, m.agentCfg, m.logger),
		ctx:        ctx,
		cancel:     cancel,
		lastActive: time.Now(),
	}
	if m.onCreate != nil {
		m.onCreate(id, bus)
	}
	m.sessions[id] = s
	m.logger.Info("session created", "session_id", id)
	return id, nil
}

// Send dispatches one principal message to a session. The turn runs
// asynchronously; Send returns once the message is accepted. A session
// already mid-turn returns ErrSessionBusy.
func (m *Manager) Send(id, text string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.busy {
		m.mu.Unlock()
		return ErrSessionBusy
	}
	if s.ctrl.State().Terminal() {
		m.mu.Unlock()
		return agent.ErrSessionTerminated
	}
	s.busy = true
	s.lastActive = time.Now()
	m.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.ctrl.HandleMessage(s.ctx, text)

		m.mu.Lock()
		s.busy = false
		s.lastActive = time.Now()
		m.mu.Unlock()

		if err != nil {
			m.logger.Error("turn ended in error", "session_id", id, "error", err)
		}
	}()
	return nil
}

// Resolve routes a confirmation decision to the session's gate.
func (m *Manager) Resolve(id string, d agent.Decision) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		s.lastActive = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return s.ctrl.Gate().Resolve(d)
}

// State returns the session's current agent state.
func (m *Manager) State(id string) (agent.State, error) {
	s, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	return s.ctrl.State(), nil
}

// Pending returns the action awaiting confirmation, if any.
func (m *Manager) Pending(id string) (eventbus.Action, bool, error) {
	s, err := m.lookup(id)
	if err != nil {
		return eventbus.Action{}, false, err
	}
	a, ok := s.ctrl.Gate().Pending()
	return a, ok, nil
}

// Events returns a copy of the session's event log.
func (m *Manager) Events(id string) ([]eventbus.Event, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.bus.Replay(), nil
}

// List returns the identifiers of all live sessions.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Terminate force-ends a session. An in-flight turn is cancelled and its
// cancellation event lands before the bus closes; an idle session gets a
// terminal error event carrying the reason. The session is removed, so
// later sends report ErrSessionNotFound.
func (m *Manager) Terminate(id, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	busy := s.busy
	m.mu.Unlock()

	s.cancel()
	finish := func() {
		if !s.ctrl.State().Terminal() {
			s.ctrl.Terminate(reason)
		}
		s.bus.Close()
		m.logger.Info("session terminated", "session_id", id, "reason", reason)
	}
	if busy {
		// Let the cancelled turn publish its final event first.
		go func() {
			s.wg.Wait()
			finish()
		}()
		return nil
	}
	finish()
	return nil
}

// Close terminates every session and stops the janitor.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Terminate(id, "manager shutting down")
	}
	if m.janitorStop != nil {
		close(m.janitorStop)
		<-m.janitorDone
	}
}

func (m *Manager) lookup(id string) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// janitor expires sessions idle past the inactivity timeout.
func (m *Manager) janitor() {
	defer close(m.janitorDone)
	interval := m.inactivity / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.janitorStop:
			return
		case <-ticker.C:
			m.expireIdle()
		}
	}
}

func (m *Manager) expireIdle() {
	cutoff := time.Now().Add(-m.inactivity)
	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if !s.busy && s.lastActive.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		_ = m.Terminate(id, "session expired after inactivity")
	}
}
