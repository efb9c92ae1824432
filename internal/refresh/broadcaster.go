package refresh

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"trendaggr/internal/observability/metrics"
	"trendaggr/internal/trend"
)

// subscriberTimeout caps how long Publish will wait for a slow
// subscriber's channel to accept an event before dropping it for that
// subscriber only; it must never let one slow reader stall the others.
const subscriberDropLog = "push-stream subscriber dropped update: channel full"

// Broadcaster fans a trend.UpdateEvent out to every subscribed
// push-stream connection. Modeled on the notify package's per-channel
// goroutine fan-out, but for an in-process pub-sub of many readers
// instead of few named delivery channels: each subscriber gets its own
// buffered channel and a non-blocking send, so one stalled reader
// never blocks Publish or any other subscriber.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[int]chan trend.UpdateEvent
	nextID      int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[int]chan trend.UpdateEvent)}
}

// Subscribe registers a new subscriber with the given channel buffer
// size and returns its event channel plus an unsubscribe function.
// The unsubscribe function is idempotent and safe to call from any
// goroutine, including concurrently with Publish.
func (b *Broadcaster) Subscribe(buffer int) (<-chan trend.UpdateEvent, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan trend.UpdateEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	count := len(b.subscribers)
	b.mu.Unlock()
	metrics.UpdateSubscribersActive(count)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			count := len(b.subscribers)
			b.mu.Unlock()
			metrics.UpdateSubscribersActive(count)
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Publish delivers event to every current subscriber without
// blocking: a subscriber whose buffer is full has the event dropped
// for it, not for the others, and a panic in one delivery path (there
// is none here, but mirrors the teacher's defensive recovery around
// fan-out) never takes down the publisher.
func (b *Broadcaster) Publish(event trend.UpdateEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while broadcasting update event",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			slog.Warn(subscriberDropLog, slog.Int("subscriber_id", id))
		}
	}
}

// Count returns the current subscriber count, used by the status
// endpoint to report active push-stream connections.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
