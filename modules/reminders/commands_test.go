package reminders

import (
	"testing"
	"time"

	"github.com/sho0pi/naturaltime"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	parser, err := naturaltime.New()
	if err != nil {
		t.Fatalf("naturaltime parser: %v", err)
	}
	return &Module{parser: parser}
}

func TestParseWhenDurationFallback(t *testing.T) {
	m := newTestModule(t)
	now := time.Date(2026, time.August, 23, 12, 0, 0, 0, time.UTC)

	got, err := m.parseWhen("90m", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := now.Add(90 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("parseWhen = %v, want %v", got, want)
	}
}

func TestParseWhenNaturalLanguage(t *testing.T) {
	m := newTestModule(t)
	now := time.Date(2026, time.August, 23, 12, 0, 0, 0, time.UTC)

	got, err := m.parseWhen("in 2 hours", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := now.Add(2 * time.Hour)
	if d := got.Sub(want); d < -time.Minute || d > time.Minute {
		t.Fatalf("parseWhen = %v, want about %v", got, want)
	}
}

func TestParseWhenGarbage(t *testing.T) {
	m := newTestModule(t)
	if _, err := m.parseWhen("definitely not a time", time.Now()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 512, "short"},
		{"abcdefgh", 8, "abcdefgh"},
		{"abcdefghi", 8, "abcde..."},
	}
	for _, c := range cases {
		if got := truncate(c.in, c.max); got != c.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}

func TestPlural(t *testing.T) {
	if got := plural(1, "reminder"); got != "reminder" {
		t.Errorf("plural(1) = %q", got)
	}
	if got := plural(3, "reminder"); got != "reminders" {
		t.Errorf("plural(3) = %q", got)
	}
}
