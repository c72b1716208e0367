package timers

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCompletionTopic(t *testing.T) {
	cases := []struct {
		event string
		want  string
	}{
		{"reminder", "reminder_timer_complete"},
		{"tempban", "tempban_timer_complete"},
	}
	for _, c := range cases {
		if got := CompletionTopic(c.event); got != c.want {
			t.Errorf("CompletionTopic(%q) = %q, want %q", c.event, got, c.want)
		}
	}
}

func TestPublishFansOut(t *testing.T) {
	bus := NewBus(zap.NewNop())
	first := make(chan *Timer, 1)
	second := make(chan *Timer, 1)
	bus.Subscribe(CompletionTopic("reminder"), func(tm *Timer) { first <- tm })
	bus.Subscribe(CompletionTopic("reminder"), func(tm *Timer) { second <- tm })

	timer := &Timer{ID: 1, Event: "reminder"}
	bus.Publish(timer)

	for _, ch := range []chan *Timer{first, second} {
		select {
		case got := <-ch:
			if got != timer {
				t.Fatalf("got %v, want %v", got, timer)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the timer")
		}
	}
}

func TestPublishOnlyMatchingTopic(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch := make(chan *Timer, 1)
	bus.Subscribe(CompletionTopic("tempban"), func(tm *Timer) { ch <- tm })

	bus.Publish(&Timer{ID: 1, Event: "reminder"})

	select {
	case got := <-ch:
		t.Fatalf("tempban subscriber got %v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch := make(chan *Timer, 1)
	bus.Subscribe(CompletionTopic("reminder"), func(*Timer) { panic("boom") })
	bus.Subscribe(CompletionTopic("reminder"), func(tm *Timer) { ch <- tm })

	bus.Publish(&Timer{ID: 1, Event: "reminder"})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("healthy subscriber starved by a panicking one")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Publish(&Timer{ID: 1, Event: "reminder"}) // must not panic
}
