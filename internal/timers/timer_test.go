package timers

import (
	"strings"
	"testing"
	"time"
)

func TestSame(t *testing.T) {
	persisted := &Timer{ID: 7, Event: "reminder"}
	samePersisted := &Timer{ID: 7, Event: "tempban"}
	otherPersisted := &Timer{ID: 8, Event: "reminder"}
	temporary := &Timer{Event: "reminder"}

	cases := []struct {
		name string
		a, b *Timer
		want bool
	}{
		{"same id", persisted, samePersisted, true},
		{"different ids", persisted, otherPersisted, false},
		{"temporary vs persisted", temporary, persisted, false},
		{"temporary vs temporary", temporary, &Timer{Event: "reminder"}, false},
		{"temporary vs itself", temporary, temporary, false},
		{"nil other", persisted, nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Same(c.b); got != c.want {
				t.Fatalf("Same = %v, want %v", got, c.want)
			}
		})
	}
}

func TestAuthorID(t *testing.T) {
	cases := []struct {
		name   string
		args   []any
		want   string
		wantOK bool
	}{
		{"string id", []any{"80088516616269824", "c", "hi"}, "80088516616269824", true},
		{"json number", []any{float64(42)}, "42", true},
		{"int", []any{42}, "42", true},
		{"no args", nil, "", false},
		{"unusable first arg", []any{true}, "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			timer := &Timer{Args: c.args}
			got, ok := timer.AuthorID()
			if got != c.want || ok != c.wantOK {
				t.Fatalf("AuthorID = (%q, %v), want (%q, %v)", got, ok, c.want, c.wantOK)
			}
		})
	}
}

func TestHumanDelta(t *testing.T) {
	timer := &Timer{Created: time.Now().Add(-2 * time.Hour)}
	if got := timer.HumanDelta(); !strings.Contains(got, "ago") {
		t.Fatalf("HumanDelta = %q, want a relative past rendering", got)
	}
}
