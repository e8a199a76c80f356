package hub

import (
	"log/slog"
	"sync"
	"time"
)

// subscriber buffers events for one Subscribe call and pumps them to
// an outward-facing channel, implementing the coalesce-on-overflow and
// lag-detachment policies described in spec §4.7.
type subscriber struct {
	mu   sync.Mutex
	buf  []Event
	cap  int
	wake chan struct{}
	done chan struct{}
	out  chan Event

	lagTimeout time.Duration
	log        *slog.Logger

	stopOnce sync.Once
}

func newSubscriber(capacity int, lagTimeout time.Duration, log *slog.Logger) *subscriber {
	s := &subscriber{
		cap:        capacity,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		out:        make(chan Event),
		lagTimeout: lagTimeout,
		log:        log,
	}
	go s.pump()
	return s
}

// enqueue appends event to the subscriber's buffer, applying the
// coalesce-on-overflow policy: when full, the newest queued
// ProgressEvent is replaced by the arriving one; TerminalEvent is
// always appended regardless of capacity.
func (s *subscriber) enqueue(event Event) {
	s.mu.Lock()
	switch event.(type) {
	case TerminalEvent:
		s.buf = append(s.buf, event)
	default:
		if len(s.buf) < s.cap {
			s.buf = append(s.buf, event)
		} else if n := len(s.buf); n > 0 {
			if _, isProgress := s.buf[n-1].(ProgressEvent); isProgress {
				s.buf[n-1] = event
			}
			// else: buffer is full of non-coalescable events; drop.
		}
	}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return nil, false
	}
	ev := s.buf[0]
	s.buf = s.buf[1:]
	return ev, true
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		ev, ok := s.pop()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		timer := time.NewTimer(s.lagTimeout)
		select {
		case s.out <- ev:
			timer.Stop()
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
			s.deliverLagged()
			return
		}
	}
}

func (s *subscriber) deliverLagged() {
	select {
	case s.out <- LaggedEvent{}:
	case <-time.After(time.Second):
		if s.log != nil {
			s.log.Warn("subscriber lag marker dropped, consumer unresponsive")
		}
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}
