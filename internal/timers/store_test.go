package timers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellaria/remy/internal/db"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timers.db")
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteStore(database.DB)
}

func TestInsertAndEarliest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	later, err := store.Insert(ctx, "reminder", Payload{Args: []any{"1", "c", "later"}}, now.Add(2*time.Hour), now)
	if err != nil {
		t.Fatalf("insert later: %v", err)
	}
	sooner, err := store.Insert(ctx, "tempban", Payload{Args: []any{"1", "g", "u"}, Kwargs: map[string]any{"reason": "spam"}}, now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("insert sooner: %v", err)
	}
	if later == sooner {
		t.Fatalf("ids collide: %d", later)
	}

	got, err := store.Earliest(ctx, DispatchHorizon)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got == nil || got.ID != sooner {
		t.Fatalf("earliest = %v, want id %d", got, sooner)
	}
	if got.Event != "tempban" {
		t.Fatalf("event = %q, want tempban", got.Event)
	}
	if len(got.Args) != 3 || got.Args[0] != "1" {
		t.Fatalf("args mangled: %v", got.Args)
	}
	if got.Kwargs["reason"] != "spam" {
		t.Fatalf("kwargs mangled: %v", got.Kwargs)
	}
	if !got.Expires.Equal(now.Add(time.Hour).Truncate(time.Millisecond)) {
		t.Fatalf("expires = %v, want %v", got.Expires, now.Add(time.Hour))
	}
	if got.Expires.Location() != time.UTC {
		t.Fatalf("expires not UTC: %v", got.Expires)
	}
}

func TestEarliestRespectsHorizon(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.Insert(ctx, "reminder", Payload{}, now.Add(10*24*time.Hour), now); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.Earliest(ctx, PeekHorizon)
	if err != nil {
		t.Fatalf("earliest short: %v", err)
	}
	if got != nil {
		t.Fatalf("timer 10 days out returned within a 7-day horizon: %v", got)
	}

	got, err = store.Earliest(ctx, DispatchHorizon)
	if err != nil {
		t.Fatalf("earliest long: %v", err)
	}
	if got == nil {
		t.Fatal("timer 10 days out missing from a 40-day horizon")
	}
}

func TestEarliestNormalisesZones(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	loc := time.FixedZone("UTC+2", 2*60*60)
	expires := time.Now().In(loc).Add(time.Hour)

	if _, err := store.Insert(ctx, "reminder", Payload{}, expires, time.Now().In(loc)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := store.Earliest(ctx, DispatchHorizon)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got == nil {
		t.Fatal("no timer found")
	}
	if !got.Expires.Equal(expires.Truncate(time.Millisecond)) {
		t.Fatalf("expires = %v, want the same instant as %v", got.Expires, expires)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := store.Insert(ctx, "reminder", Payload{}, now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if err := store.Delete(ctx, 999999); err != nil {
		t.Fatalf("deleting unknown id errored: %v", err)
	}

	got, err := store.Earliest(ctx, DispatchHorizon)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got != nil {
		t.Fatalf("deleted timer still visible: %v", got)
	}
}

func TestOwnedQueries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var mine []int64
	for i, offset := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour} {
		id, err := store.Insert(ctx, "reminder", Payload{Args: []any{"100", "c", "mine"}}, now.Add(offset), now)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		mine = append(mine, id)
	}
	if _, err := store.Insert(ctx, "reminder", Payload{Args: []any{"200", "c", "theirs"}}, now.Add(time.Minute), now); err != nil {
		t.Fatalf("insert other: %v", err)
	}
	if _, err := store.Insert(ctx, "tempban", Payload{Args: []any{"100", "g", "u"}}, now.Add(time.Minute), now); err != nil {
		t.Fatalf("insert other event: %v", err)
	}

	list, err := store.ListOwned(ctx, "reminder", "100", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("list = %d timers, want 3", len(list))
	}
	// Soonest first: 1h, 2h, 3h.
	if list[0].ID != mine[1] || list[1].ID != mine[2] || list[2].ID != mine[0] {
		t.Fatalf("wrong order: %v %v %v", list[0].ID, list[1].ID, list[2].ID)
	}

	limited, err := store.ListOwned(ctx, "reminder", "100", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited list = %d timers, want 2", len(limited))
	}

	n, err := store.CountOwned(ctx, "reminder", "100")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	ok, err := store.DeleteOwned(ctx, mine[0], "reminder", "200")
	if err != nil {
		t.Fatalf("delete wrong owner: %v", err)
	}
	if ok {
		t.Fatal("deleted a timer owned by someone else")
	}
	ok, err = store.DeleteOwned(ctx, mine[0], "reminder", "100")
	if err != nil {
		t.Fatalf("delete owned: %v", err)
	}
	if !ok {
		t.Fatal("failed to delete an owned timer")
	}

	cleared, err := store.ClearOwned(ctx, "reminder", "100")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared != 2 {
		t.Fatalf("cleared = %d, want 2", cleared)
	}

	// The other user's reminder and the tempban are untouched.
	remaining, err := store.CountOwned(ctx, "reminder", "200")
	if err != nil {
		t.Fatalf("count other: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("other user's count = %d, want 1", remaining)
	}
	bans, err := store.CountOwned(ctx, "tempban", "100")
	if err != nil {
		t.Fatalf("count tempban: %v", err)
	}
	if bans != 1 {
		t.Fatalf("tempban count = %d, want 1", bans)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := Payload{
		Args:   []any{"80088516616269824", "123", "do the thing"},
		Kwargs: map[string]any{"message_id": "456", "count": float64(3), "urgent": true},
	}
	if _, err := store.Insert(ctx, "reminder", p, now.Add(time.Hour), now); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.Earliest(ctx, DispatchHorizon)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got == nil {
		t.Fatal("no timer found")
	}
	if len(got.Args) != 3 || got.Args[2] != "do the thing" {
		t.Fatalf("args = %v", got.Args)
	}
	if got.Kwargs["message_id"] != "456" || got.Kwargs["count"] != float64(3) || got.Kwargs["urgent"] != true {
		t.Fatalf("kwargs = %v", got.Kwargs)
	}
}

func TestSchedulerAgainstSQLite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// A timer persisted before the scheduler exists, as if a previous
	// process run wrote it and died.
	id, err := store.Insert(ctx, "reminder",
		Payload{Args: []any{"100", "c", "hello"}},
		time.Now().UTC().Add(300*time.Millisecond),
		time.Now().UTC().Add(-10*time.Minute),
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, bus := newTestScheduler(t, store)
	ch := collect(bus, "reminder")

	fired := waitFired(t, ch, 5*time.Second)
	if fired.ID != id {
		t.Fatalf("fired id %d, want %d", fired.ID, id)
	}
	if len(fired.Args) != 3 || fired.Args[2] != "hello" {
		t.Fatalf("args mangled: %v", fired.Args)
	}

	left, err := store.Earliest(ctx, DispatchHorizon)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if left != nil {
		t.Fatalf("fired timer still stored: %v", left)
	}
}

func TestWithTx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timers.db")
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := NewSQLiteStore(database.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := store.WithTx(tx).Insert(ctx, "reminder", Payload{}, now.Add(time.Hour), now); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	got, err := store.Earliest(ctx, DispatchHorizon)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got != nil {
		t.Fatalf("rolled-back insert is visible: %v", got)
	}

	tx, err = database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := store.WithTx(tx).Insert(ctx, "reminder", Payload{}, now.Add(time.Hour), now); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err = store.Earliest(ctx, DispatchHorizon)
	if err != nil {
		t.Fatalf("earliest: %v", err)
	}
	if got == nil {
		t.Fatal("committed insert is not visible")
	}
}
