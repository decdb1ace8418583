// Package eventbus implements one ring-buffered, sequence-ordered topic
// per job, fanned out to SSE subscribers over per-subscriber non-blocking
// channels, plus a cross-job global lane.
//
// Subscriber dispatch is a mutex-guarded channel map with a non-blocking
// select/default broadcast so a slow consumer never stalls the publisher.
// The per-job ring buffer and Last-Event-Id replay let a reconnecting SSE
// client catch up on whatever it missed.
package eventbus

import (
	"sync"
	"time"

	"github.com/capgen-ai/capgen/internal/domain"
)

const (
	defaultRingSize      = 256
	defaultHeartbeat     = 15 * time.Second
	subscriberBufferSize = 32
)

// topic is one job's event history plus its live subscribers.
type topic struct {
	mu        sync.Mutex
	jobID     string
	seq       uint64
	ring      []domain.Event // fixed-capacity, oldest overwritten first
	ringStart int            // index of the oldest valid entry
	ringLen   int
	subs      map[chan domain.Event]struct{}
}

func newTopic(jobID string, ringSize int) *topic {
	return &topic{
		jobID: jobID,
		ring:  make([]domain.Event, ringSize),
		subs:  map[chan domain.Event]struct{}{},
	}
}

func (t *topic) append(ev domain.Event) {
	t.mu.Lock()
	ringCap := len(t.ring)
	idx := (t.ringStart + t.ringLen) % ringCap
	t.ring[idx] = ev
	if t.ringLen < ringCap {
		t.ringLen++
	} else {
		t.ringStart = (t.ringStart + 1) % ringCap
	}
	subs := make([]chan domain.Event, 0, len(t.subs))
	for ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// slow consumer: drop on its own buffer, never on the ring.
		}
	}
}

// since returns every retained event with Seq > lastEventID, in order, and
// whether any events were lost (the requested id is older than the ring's
// oldest retained entry).
func (t *topic) since(lastEventID uint64) (events []domain.Event, gap bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ringCap := len(t.ring)
	for i := 0; i < t.ringLen; i++ {
		ev := t.ring[(t.ringStart+i)%ringCap]
		if ev.Seq > lastEventID {
			events = append(events, ev)
		}
	}
	if t.ringLen > 0 {
		oldest := t.ring[t.ringStart].Seq
		gap = lastEventID > 0 && lastEventID < oldest-1
	}
	return events, gap
}

func (t *topic) subscribe() chan domain.Event {
	ch := make(chan domain.Event, subscriberBufferSize)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()
	return ch
}

func (t *topic) unsubscribe(ch chan domain.Event) {
	t.mu.Lock()
	delete(t.subs, ch)
	t.mu.Unlock()
	close(ch)
}

// Bus is the process-wide event bus: one topic per job, plus a global lane
// that mirrors signal.* and progress.overall across every job for
// task-list-style views.
type Bus struct {
	mu       sync.Mutex
	topics   map[string]*topic
	ringSize int
	global   *topic
	stop     chan struct{}
}

func New() *Bus {
	b := &Bus{
		topics:   map[string]*topic{},
		ringSize: defaultRingSize,
		global:   newTopic("", defaultRingSize),
		stop:     make(chan struct{}),
	}
	go b.heartbeatLoop(defaultHeartbeat)
	return b
}

func (b *Bus) Close() {
	close(b.stop)
}

func (b *Bus) topicFor(jobID string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[jobID]
	if !ok {
		t = newTopic(jobID, b.ringSize)
		b.topics[jobID] = t
	}
	return t
}

// Publish implements domain.Emitter. It stamps the event with the topic's
// next sequence number and fans it out to that job's subscribers, and
// mirrors signal.* / progress.overall events onto the global lane.
func (b *Bus) Publish(jobID string, tag domain.EventTag, body any) {
	t := b.topicFor(jobID)

	t.mu.Lock()
	t.seq++
	ev := domain.Event{Tag: tag, JobID: jobID, Seq: t.seq, Timestamp: time.Now(), Body: body}
	t.mu.Unlock()

	t.append(ev)

	if tag == domain.EventProgressOverall || isSignalTag(tag) {
		b.global.append(ev)
	}
}

func isSignalTag(tag domain.EventTag) bool {
	switch tag {
	case domain.EventSignalJobStart, domain.EventSignalJobComplete,
		domain.EventSignalJobFailed, domain.EventSignalJobCanceled,
		domain.EventSignalPhaseStart, domain.EventSignalPhaseComplete,
		domain.EventSignalReplayGap:
		return true
	default:
		return false
	}
}

// Subscription is a live SSE connection's handle: Events delivers new
// events as they're published, Replay holds any retained events the
// subscriber missed (by Last-Event-Id) delivered once up front, and Gap
// reports whether some missed events fell outside the ring and can't be
// replayed.
type Subscription struct {
	Events <-chan domain.Event
	Replay []domain.Event
	Gap    bool

	topic *topic
	ch    chan domain.Event
}

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() {
	s.topic.unsubscribe(s.ch)
}

// Subscribe opens a per-job subscription, replaying any retained events
// with Seq > lastEventID so a reconnecting client doesn't miss anything.
func (b *Bus) Subscribe(jobID string, lastEventID uint64) *Subscription {
	t := b.topicFor(jobID)
	replay, gap := t.since(lastEventID)
	ch := t.subscribe()
	return &Subscription{Events: ch, Replay: replay, Gap: gap, topic: t, ch: ch}
}

// SubscribeGlobal opens a subscription to the cross-job lane.
func (b *Bus) SubscribeGlobal(lastEventID uint64) *Subscription {
	replay, gap := b.global.since(lastEventID)
	ch := b.global.subscribe()
	return &Subscription{Events: ch, Replay: replay, Gap: gap, topic: b.global, ch: ch}
}

func (b *Bus) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			jobIDs := make([]string, 0, len(b.topics))
			for id := range b.topics {
				jobIDs = append(jobIDs, id)
			}
			b.mu.Unlock()
			for _, id := range jobIDs {
				b.Publish(id, domain.EventHeartbeat, nil)
			}
		}
	}
}
