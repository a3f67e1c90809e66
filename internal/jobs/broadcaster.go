package jobs

import (
	"sync"

	"github.com/google/uuid"

	"docuvid/internal/models"
)

const (
	subscriberBuffer = 16
	sinkBuffer       = 64
)

// Broadcaster fans progress events out to per-job subscribers. Delivery is
// best effort: a subscriber that stops draining its channel misses
// intermediate events but always sees the latest one on the next publish.
// Publishing never blocks the pipeline.
type Broadcaster struct {
	mu     sync.RWMutex
	latest map[uuid.UUID]models.ProgressEvent
	subs   map[uuid.UUID]map[chan models.ProgressEvent]struct{}
	sinkCh chan models.ProgressEvent
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		latest: make(map[uuid.UUID]models.ProgressEvent),
		subs:   make(map[uuid.UUID]map[chan models.ProgressEvent]struct{}),
	}
}

// Subscribe registers interest in one job's events. The returned channel
// immediately carries the latest known event, so a late subscriber never
// waits for the next transition to learn the job's state. The cancel func
// is idempotent and closes the channel.
func (b *Broadcaster) Subscribe(jobID uuid.UUID) (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[chan models.ProgressEvent]struct{})
		b.subs[jobID] = set
	}
	set[ch] = struct{}{}
	if event, ok := b.latest[jobID]; ok {
		ch <- event
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[jobID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, jobID)
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// AttachSink registers a secondary publisher that receives events after
// local fan-out, e.g. a Redis channel for external observers. Delivery
// runs on its own goroutine with the same drop-on-full policy as local
// subscribers: a slow or dead sink never stalls the pipeline.
func (b *Broadcaster) AttachSink(sink Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.sinkCh != nil {
		return
	}
	b.sinkCh = make(chan models.ProgressEvent, sinkBuffer)
	go func(ch <-chan models.ProgressEvent) {
		for event := range ch {
			sink.Publish(event)
		}
	}(b.sinkCh)
}

// Publish records the event as the job's latest and offers it to every
// subscriber without blocking. Full subscriber buffers are skipped.
func (b *Broadcaster) Publish(event models.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest[event.JobID] = event
	for ch := range b.subs[event.JobID] {
		select {
		case ch <- event:
		default:
		}
	}
	if b.sinkCh != nil {
		select {
		case b.sinkCh <- event:
		default:
		}
	}
}

// Forget drops the retained snapshot for a job. Called after terminal
// events have had time to reach subscribers.
func (b *Broadcaster) Forget(jobID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.latest, jobID)
}

// Close closes all subscriber channels. Subsequent publishes are dropped
// and subsequent subscribes get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for ch := range set {
			close(ch)
		}
	}
	b.subs = make(map[uuid.UUID]map[chan models.ProgressEvent]struct{})
	if b.sinkCh != nil {
		close(b.sinkCh)
		b.sinkCh = nil
	}
}
