// Package progress implements the Progress Stream (spec §4.10): a
// push-based, ordered, single-producer event channel per process tree,
// with zero or more subscribers. Sequence numbers are gap-free and
// strictly increasing; slow subscribers apply back-pressure rather than
// dropping events (spec §5 "Backpressure").
package progress

import (
	"sync"
	"time"

	"github.com/jurisoracle/vrag/model"
)

// defaultRetention is how long a closed stream keeps its buffered events
// available for replay to late subscribers, per spec §4.10.
const defaultRetention = 10 * time.Minute

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind blocks the publisher (back-pressure), which
// in turn blocks the step that is emitting progress (spec §5).
const subscriberBuffer = 32

// subscriber owns the channel handed back to a caller of Subscribe. A
// single relay goroutine is the only writer to ch: it drains the backlog
// snapshot first, then forwards events Publish hands it over live, so a
// late subscriber can never observe a live event ahead of the backlog
// that preceded it (spec §4.10 / §8 event ordering).
type subscriber struct {
	ch   chan model.ProgressEvent
	live chan model.ProgressEvent
}

// run drains backlog in order, then forwards events arriving on live
// until it is closed. It is the sole writer of ch, including closing it,
// so replay and live delivery can never interleave out of order.
func (sub *subscriber) run(backlog []model.ProgressEvent, alreadyClosed bool) {
	for _, e := range backlog {
		sub.ch <- e
	}
	if alreadyClosed {
		close(sub.ch)
		return
	}
	for e := range sub.live {
		sub.ch <- e
	}
	close(sub.ch)
}

// Stream is the single-producer, multi-consumer event channel for one
// process tree. The zero value is not usable; construct with New.
type Stream struct {
	mu          sync.Mutex
	seq         int64
	events      []model.ProgressEvent // replay buffer, oldest first
	subscribers map[*subscriber]struct{}
	closed      bool
	closedAt    time.Time
	retention   time.Duration
}

// New returns an open Stream ready to Publish to and Subscribe on.
func New() *Stream {
	return &Stream{
		subscribers: make(map[*subscriber]struct{}),
		retention:   defaultRetention,
	}
}

// Publish assigns the next sequence number to event and delivers it to
// every current subscriber, blocking until all of them have room on their
// live queue. It is the caller's responsibility to serialize calls to
// Publish (the executor owns sequencing; spec §5 "the Progress Stream
// sequence counter is monotonic and owned by the executor thread").
func (s *Stream) Publish(event model.ProgressEvent) model.ProgressEvent {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return event
	}
	s.seq++
	event.Sequence = s.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.events = append(s.events, event)
	subs := make([]*subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	terminal := event.Type.Terminal()
	s.mu.Unlock()

	// Handed to each subscriber's live queue outside the lock so a blocked
	// subscriber can't stall Subscribe/Close, only further Publish calls
	// (which the executor already serializes). Each subscriber's own relay
	// goroutine is what actually writes to its public channel, so this
	// send only ever races with that subscriber's own backlog replay,
	// never with another Publish.
	for _, sub := range subs {
		sub.live <- event
	}

	if terminal {
		s.Close()
	}
	return event
}

// Subscribe returns a channel that first replays every buffered event
// (from the start of the stream, or from the retention window if the
// stream already closed) and then receives new events as they are
// published. The channel is closed once the stream is closed and the
// replay has been fully delivered.
func (s *Stream) Subscribe() <-chan model.ProgressEvent {
	s.mu.Lock()

	sub := &subscriber{
		ch:   make(chan model.ProgressEvent, subscriberBuffer),
		live: make(chan model.ProgressEvent, subscriberBuffer),
	}
	backlog := append([]model.ProgressEvent(nil), s.events...)
	wasClosed := s.closed

	if !wasClosed {
		s.subscribers[sub] = struct{}{}
	}
	s.mu.Unlock()

	go sub.run(backlog, wasClosed)

	return sub.ch
}

// Close marks the stream terminated and closes every subscriber's live
// queue. Each subscriber's relay goroutine finishes delivering anything
// already queued (backlog, then any live events already handed to it)
// before closing its public channel. Idempotent. Buffered events remain
// available to late Subscribe calls until the retention window elapses
// (enforced by Prune).
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closedAt = time.Now()
	for sub := range s.subscribers {
		close(sub.live)
	}
	s.subscribers = nil
}

// Prune drops the replay buffer once the retention window has elapsed
// past Close, freeing memory for long-lived stream registries. It is a
// no-op on a stream that hasn't closed or hasn't aged out yet.
func (s *Stream) Prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed || now.Sub(s.closedAt) < s.retention {
		return
	}
	s.events = nil
}

// Len reports how many events have been published so far (including ones
// since pruned from the replay buffer, since seq is monotonic).
func (s *Stream) Len() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
