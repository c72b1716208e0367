package timers

import (
	"sync"

	"go.uber.org/zap"
)

// Handler receives a fired timer. Handlers run on their own goroutines;
// a panic is recovered and logged and never reaches the dispatch loop.
type Handler func(*Timer)

// CompletionTopic is the notification name published when a timer with
// the given event name fires.
func CompletionTopic(event string) string {
	return event + "_timer_complete"
}

// Bus fans completion notifications out to subscribers. Delivery is
// fire-and-forget: by the time a notification goes out the timer's row is
// already gone, so a failing subscriber does not get a retry.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[string][]Handler
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[string][]Handler),
	}
}

// Subscribe registers h for a topic, typically CompletionTopic(event).
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish delivers the fired timer to every subscriber of its completion
// topic, each on its own goroutine.
func (b *Bus) Publish(t *Timer) {
	topic := CompletionTopic(t.Event)

	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("timer fired with no subscribers", zap.String("topic", topic))
		return
	}

	for _, h := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("timer subscriber panicked",
						zap.String("topic", topic),
						zap.Any("panic", r))
				}
			}()
			h(t)
		}(h)
	}
}
