package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/metrics"
)

// Config controls Hub's buffering and lag-detection behavior (spec
// §4.7).
type Config struct {
	// BufferSize is the per-subscriber channel capacity. Default 64.
	BufferSize int

	// LagTimeout is how long a subscriber may leave its next event
	// undelivered before that subscriber is detached. Default 30s.
	LagTimeout time.Duration

	// Recorder records subscriber-count observations, if non-nil.
	Recorder *metrics.Recorder
}

// Hub is a per-process, in-memory publish/subscribe bus keyed by job
// id (spec §4.7).
//
// Per-subscriber ordering is preserved; across subscribers delivery is
// independent. On overflow, queued ProgressEvents coalesce (the
// newest replaces the previously queued one); TerminalEvent is never
// dropped. A subscriber that fails to drain within LagTimeout is
// detached with a terminal LaggedEvent on its own stream only --
// publishers never block on a slow subscriber.
type Hub struct {
	topics     *xsync.MapOf[uuid.UUID, *topic]
	cancels    *xsync.MapOf[uuid.UUID, *cancelHandle]
	bufferSize int
	lagTimeout time.Duration
	subs       int64
	recorder   *metrics.Recorder
	log        *slog.Logger
}

// New builds a Hub with the given configuration.
func New(cfg Config, log *slog.Logger) *Hub {
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	lagTimeout := cfg.LagTimeout
	if lagTimeout <= 0 {
		lagTimeout = 30 * time.Second
	}
	return &Hub{
		topics:     xsync.NewMapOf[uuid.UUID, *topic](),
		cancels:    xsync.NewMapOf[uuid.UUID, *cancelHandle](),
		bufferSize: bufSize,
		lagTimeout: lagTimeout,
		recorder:   cfg.Recorder,
		log:        log,
	}
}

type topic struct {
	mu   sync.Mutex
	subs map[uint64]*subscriber
	next uint64
}

func (h *Hub) topicFor(jobID uuid.UUID) *topic {
	t, _ := h.topics.LoadOrStore(jobID, &topic{subs: make(map[uint64]*subscriber)})
	return t
}

// Subscription is a live view onto one job's event stream.
type Subscription struct {
	Events <-chan Event
	Close  func()
}

// Subscribe attaches a new subscriber to jobID's stream. snapshot is
// delivered immediately as a SnapshotEvent, drawn by the caller from
// the Durable Store, so the subscriber never misses the job's current
// state even if it connects after the job already made progress.
func (h *Hub) Subscribe(jobID uuid.UUID, snapshot job.Snapshot) *Subscription {
	t := h.topicFor(jobID)
	sub := newSubscriber(h.bufferSize, h.lagTimeout, h.log)

	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = sub
	t.mu.Unlock()

	sub.enqueue(SnapshotEvent{Snapshot: snapshot})
	h.recordSubs(atomic.AddInt64(&h.subs, 1))

	closeOnce := sync.OnceFunc(func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
		sub.stop()
		h.recordSubs(atomic.AddInt64(&h.subs, -1))
	})
	return &Subscription{
		Events: sub.out,
		Close:  closeOnce,
	}
}

func (h *Hub) recordSubs(n int64) {
	if h.recorder != nil {
		h.recorder.SetSubscriberCount(int(n))
	}
}

// Publish delivers event to every current subscriber of jobID.
// Publish never blocks on subscribers: it only appends event to each
// subscriber's buffer (spec §4.7).
func (h *Hub) Publish(jobID uuid.UUID, event Event) {
	t, ok := h.topics.Load(jobID)
	if !ok {
		return
	}
	t.mu.Lock()
	subs := make([]*subscriber, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()
	for _, s := range subs {
		s.enqueue(event)
	}
}

// Forget releases the topic and cancel handle for jobID. Callers
// invoke this after a job's terminal event has been delivered and no
// further activity is expected, to avoid unbounded growth of the
// topic/cancel maps across the process lifetime.
func (h *Hub) Forget(jobID uuid.UUID) {
	h.topics.Delete(jobID)
	h.cancels.Delete(jobID)
}

type cancelHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// CancelToken returns a shared cancellation handle for jobID, creating
// one lazily if none exists yet. Any subscriber-facing or
// administrative operation may call Trip to cancel it; the Worker
// observes the returned context via the render engine's cancel
// parameter (spec §4.7, §5).
func (h *Hub) CancelToken(jobID uuid.UUID) context.Context {
	handle, _ := h.cancels.LoadOrStore(jobID, newCancelHandle())
	return handle.ctx
}

// Trip cancels jobID's cancellation handle, creating it if none exists
// yet. Tripping a handle with no active subscribers or worker is a
// no-op beyond marking the context done for any future CancelToken
// callers.
func (h *Hub) Trip(jobID uuid.UUID) {
	handle, _ := h.cancels.LoadOrStore(jobID, newCancelHandle())
	handle.cancel()
}

func newCancelHandle() *cancelHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &cancelHandle{ctx: ctx, cancel: cancel}
}
