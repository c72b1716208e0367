package timers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Timers due within this window skip the store: an insert plus delete for
// a reminder due in a few seconds is pure write amplification.
const shortTimerCutoff = time.Minute

// Scheduler is the single write entry point for timers and owns the
// dispatch loop that wakes durable ones. Exactly one loop run is alive at
// a time.
//
// Fast-path timers cannot be individually cancelled: once spawned they
// fire unless the whole scheduler shuts down first. Deleting a reminder's
// row has no effect on a timer that never had a row.
type Scheduler struct {
	store Store
	bus   *Bus
	log   *zap.Logger

	// wake tells a parked loop that rows may now exist in range.
	wake chan struct{}
	wg   sync.WaitGroup

	mu        sync.Mutex
	base      context.Context
	current   *Timer // the timer the loop is sleeping on, if any
	cancelRun context.CancelFunc
}

func NewScheduler(store Store, bus *Bus, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store: store,
		bus:   bus,
		log:   log,
		wake:  make(chan struct{}, 1),
		base:  context.Background(),
	}
}

// Start launches the dispatch loop. It runs until ctx is cancelled; a
// storage error tears the current run down and a fresh one takes over.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervise(ctx)
	}()

	s.logNextPending(ctx)
}

// Wait blocks until the dispatch loop and any in-flight fast-path timers
// have wound down. Call after cancelling the Start context.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) supervise(ctx context.Context) {
	for {
		runCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancelRun = cancel
		s.mu.Unlock()

		err := s.dispatchTimers(runCtx)
		cancel()
		s.setCurrent(nil)

		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			// Treated as a transient infrastructure blip: no backoff,
			// no retry limit, just a fresh run from Idle.
			s.log.Warn("dispatch loop failed, restarting", zap.Error(err))
		}
	}
}

func (s *Scheduler) dispatchTimers(ctx context.Context) error {
	for {
		timer, err := s.waitForActiveTimer(ctx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if timer.Expires.After(now) {
			if err := sleepUntil(ctx, timer.Expires); err != nil {
				return err
			}
		}

		if err := s.callTimer(ctx, timer); err != nil {
			return err
		}
	}
}

// waitForActiveTimer blocks until a durable timer within DispatchHorizon
// exists, parking on the wake channel while the table has nothing in
// range.
func (s *Scheduler) waitForActiveTimer(ctx context.Context) (*Timer, error) {
	for {
		timer, err := s.store.Earliest(ctx, DispatchHorizon)
		if err != nil {
			return nil, err
		}
		if timer != nil {
			s.setCurrent(timer)
			return timer, nil
		}

		s.setCurrent(nil)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.wake:
		}
	}
}

// callTimer removes the row first, then publishes. If a subscriber fails
// the timer stays fired: at-most-once, not at-least-once.
func (s *Scheduler) callTimer(ctx context.Context, t *Timer) error {
	if err := s.store.Delete(ctx, t.ID); err != nil {
		return err
	}
	s.setCurrent(nil)
	s.bus.Publish(t)
	return nil
}

// CreateOption adjusts a single Create call.
type CreateOption func(*createOptions)

type createOptions struct {
	created time.Time
	kwargs  map[string]any
	store   Store
}

// WithCreated backdates the timer's creation time, e.g. to the triggering
// interaction's timestamp, so human deltas stay consistent.
func WithCreated(t time.Time) CreateOption {
	return func(o *createOptions) { o.created = t }
}

// WithKwargs attaches named payload values alongside the positional args.
func WithKwargs(kwargs map[string]any) CreateOption {
	return func(o *createOptions) { o.kwargs = kwargs }
}

// WithStore routes the durable insert through a specific store, e.g. one
// bound to an open transaction.
func WithStore(st Store) CreateOption {
	return func(o *createOptions) { o.store = st }
}

// Create schedules a timer that fires at when and publishes
// CompletionTopic(event) carrying the returned timer. when and created
// are normalised to UTC; args and kwargs must round-trip through JSON.
//
// Timers due within a minute of their creation time skip the store and
// come back with a zero ID.
func (s *Scheduler) Create(ctx context.Context, when time.Time, event string, args []any, opts ...CreateOption) (*Timer, error) {
	o := createOptions{
		created: time.Now().UTC(),
		store:   s.store,
	}
	for _, opt := range opts {
		opt(&o)
	}

	when = when.UTC()
	created := o.created.UTC()

	timer := &Timer{
		Event:   event,
		Args:    args,
		Kwargs:  o.kwargs,
		Created: created,
		Expires: when,
	}

	delta := when.Sub(created)
	if delta <= shortTimerCutoff {
		s.mu.Lock()
		base := s.base
		s.mu.Unlock()

		s.wg.Add(1)
		go s.shortTimer(base, timer)
		return timer, nil
	}

	id, err := o.store.Insert(ctx, event, timer.payload(), when, created)
	if err != nil {
		return nil, err
	}
	timer.ID = id

	// Only worth signalling if the loop can actually wait this one out.
	if delta <= DispatchHorizon {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}

	// A timer earlier than the tracked one would otherwise starve behind
	// the loop's already-computed sleep.
	s.mu.Lock()
	if s.current != nil && when.Before(s.current.Expires) && s.cancelRun != nil {
		s.cancelRun()
	}
	s.mu.Unlock()

	return timer, nil
}

func (s *Scheduler) shortTimer(ctx context.Context, t *Timer) {
	defer s.wg.Done()
	if err := sleepUntil(ctx, t.Expires); err != nil {
		return
	}
	s.bus.Publish(t)
}

// Invalidate restarts the loop's current run if the timer it is tracking
// matches. Collaborators call this after deleting rows out from under the
// loop; the fresh run re-queries and picks up the new earliest row.
func (s *Scheduler) Invalidate(match func(*Timer) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && match(s.current) && s.cancelRun != nil {
		s.cancelRun()
	}
}

// InvalidateID is Invalidate for a single row id.
func (s *Scheduler) InvalidateID(id int64) {
	s.Invalidate(func(t *Timer) bool { return t.ID == id })
}

func (s *Scheduler) setCurrent(t *Timer) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

func (s *Scheduler) logNextPending(ctx context.Context) {
	timer, err := s.store.Earliest(ctx, PeekHorizon)
	if err != nil || timer == nil {
		return
	}
	s.log.Info("next pending timer",
		zap.Int64("id", timer.ID),
		zap.String("event", timer.Event),
		zap.Time("expires", timer.Expires))
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
