package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coxswain-ai/coxswain/eventbus"
)

// Sink subscribes to a session bus and journals every event it sees.
// A journal write failure is logged and skipped: persistence never
// blocks or fails the session itself.
type Sink struct {
	journal *Journal
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewSink creates a sink writing to the given journal.
func NewSink(journal *Journal, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		journal: journal,
		logger:  logger.With("component", "journal-sink"),
	}
}

// Attach subscribes to the bus and journals its events on a background
// goroutine until the bus closes the subscription.
func (s *Sink) Attach(bus *eventbus.Bus) {
	ch, _ := bus.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for e := range ch {
			if err := s.journal.SaveEvent(context.Background(), e); err != nil {
				s.logger.Error("failed to journal event",
					"session_id", e.SessionID, "seq", e.Seq, "error", err)
			}
		}
	}()
}

// Wait blocks until every attached subscription has drained. Call after
// the buses are closed, before closing the journal.
func (s *Sink) Wait() {
	s.wg.Wait()
}
