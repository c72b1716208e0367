package timers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Payload is the JSON-serialisable argument bundle a timer carries and
// hands back to subscribers when it fires.
type Payload struct {
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// Timer is a scheduled future event. Timers are immutable once scheduled;
// rescheduling means deleting and recreating.
//
// ID is zero for temporary (fast-path) timers that never reach the store.
type Timer struct {
	ID      int64
	Event   string
	Args    []any
	Kwargs  map[string]any
	Created time.Time
	Expires time.Time
}

// Same reports whether two timers refer to the same stored row.
// A temporary timer is never the same as anything, itself included.
func (t *Timer) Same(other *Timer) bool {
	if t == nil || other == nil {
		return false
	}
	return t.ID != 0 && t.ID == other.ID
}

// AuthorID returns args[0] interpreted as the scheduling user's ID.
// This is a convention subscribers rely on, not something the store
// enforces; timers without positional args report false.
func (t *Timer) AuthorID() (string, bool) {
	if len(t.Args) == 0 {
		return "", false
	}
	switch v := t.Args[0].(type) {
	case string:
		return v, true
	case float64:
		// JSON numbers decode as float64.
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	}
	return "", false
}

// HumanDelta renders how long ago the timer was scheduled, e.g. "5 minutes ago".
func (t *Timer) HumanDelta() string {
	return humanize.Time(t.Created)
}

func (t *Timer) String() string {
	return fmt.Sprintf("<timer id=%d event=%q expires=%s>", t.ID, t.Event, t.Expires.Format(time.RFC3339))
}

func (t *Timer) payload() Payload {
	return Payload{Args: t.Args, Kwargs: t.Kwargs}
}
