package eventbus

import (
	"sync"
	"testing"
)

func publishN(b *Bus, n int) {
	for i := 0; i < n; i++ {
		b.Publish(ActionEvent(Action{Kind: ActionRunCommand, Command: "true"}))
	}
}

func TestPublishAssignsGaplessSequence(t *testing.T) {
	b := New("s1", 0, nil)
	defer b.Close()

	for i := 1; i <= 5; i++ {
		e := b.Publish(ActionEvent(Action{Kind: ActionSendMessage, Message: "hi"}))
		if e.Seq != uint64(i) {
			t.Errorf("publish %d: expected seq %d, got %d", i, i, e.Seq)
		}
		if e.SessionID != "s1" {
			t.Errorf("expected session id s1, got %q", e.SessionID)
		}
		if e.Timestamp.IsZero() {
			t.Error("expected timestamp to be stamped")
		}
	}

	log := b.Replay()
	if len(log) != 5 {
		t.Fatalf("expected 5 events in log, got %d", len(log))
	}
	for i, e := range log {
		if e.Seq != uint64(i+1) {
			t.Errorf("log[%d]: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
}

func TestSubscribersObserveSameOrder(t *testing.T) {
	b := New("s1", 16, nil)
	defer b.Close()

	const subs = 3
	const events = 10

	channels := make([]<-chan Event, subs)
	for i := range channels {
		ch, _ := b.Subscribe()
		channels[i] = ch
	}

	publishN(b, events)
	b.Close()

	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch <-chan Event) {
			defer wg.Done()
			var last uint64
			count := 0
			for e := range ch {
				if e.Seq != last+1 {
					t.Errorf("subscriber %d: expected seq %d, got %d", i, last+1, e.Seq)
				}
				last = e.Seq
				count++
			}
			if count != events {
				t.Errorf("subscriber %d: expected %d events, got %d", i, events, count)
			}
		}(i, ch)
	}
	wg.Wait()
}

func TestSubscribeStartsFromNow(t *testing.T) {
	b := New("s1", 16, nil)
	defer b.Close()

	publishN(b, 3)
	ch, _ := b.Subscribe()
	publishN(b, 2)
	b.Close()

	var got []uint64
	for e := range ch {
		got = append(got, e.Seq)
	}
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("expected seqs [4 5], got %v", got)
	}

	if len(b.Replay()) != 5 {
		t.Errorf("expected full log of 5 events, got %d", len(b.Replay()))
	}
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	b := New("s1", 2, nil)
	defer b.Close()

	slow, _ := b.Subscribe()
	fast, _ := b.Subscribe()

	// Fill the slow subscriber's queue, then overflow it. The fast
	// subscriber drains concurrently and must see everything.
	done := make(chan []uint64)
	go func() {
		var seqs []uint64
		for e := range fast {
			seqs = append(seqs, e.Seq)
		}
		done <- seqs
	}()

	// Buffer is 2; the third publish overflows the untouched slow queue.
	publishN(b, 5)
	b.Close()

	seqs := <-done
	if len(seqs) > 5 {
		t.Fatalf("fast subscriber got %d events, expected at most 5", len(seqs))
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Errorf("fast subscriber saw gap: %v", seqs)
		}
	}

	// Slow channel must be closed after the two buffered events.
	count := 0
	for range slow {
		count++
	}
	if count != 2 {
		t.Errorf("slow subscriber expected 2 buffered events before disconnect, got %d", count)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New("s1", 4, nil)
	defer b.Close()

	ch, id := b.Subscribe()
	b.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Error("expected channel closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic or stall.
	publishN(b, 1)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := New("s1", 4, nil)
	b.Close()

	e := b.Publish(ActionEvent(Action{Kind: ActionFinish}))
	if e.Seq != 0 {
		t.Errorf("expected zero event after close, got seq %d", e.Seq)
	}
	if b.LastSeq() != 0 {
		t.Errorf("expected no events recorded, got last seq %d", b.LastSeq())
	}
}

func TestCausalLink(t *testing.T) {
	b := New("s1", 4, nil)
	defer b.Close()

	act := b.Publish(ActionEvent(Action{Kind: ActionRunCommand, Command: "ls"}))
	obs := b.Publish(ObservationEvent(Observation{Kind: ObservationOutput, Output: "file1"}, &act.Seq))

	if obs.CausedBy == nil || *obs.CausedBy != act.Seq {
		t.Errorf("expected observation caused by %d, got %v", act.Seq, obs.CausedBy)
	}
	if obs.Kind() != "output" {
		t.Errorf("expected kind output, got %q", obs.Kind())
	}
}
