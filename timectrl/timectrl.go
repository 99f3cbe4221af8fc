// Package timectrl drives periodic callbacks from a single ticker.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts wall-clock access so schedules can be tested.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// DefaultTick is used when NewScheduler is given a non-positive tick.
const DefaultTick = 100 * time.Millisecond

type task struct {
	name     string
	interval time.Duration
	next     time.Time
	fn       func(context.Context, time.Time)
}

// Scheduler fires registered callbacks at their interval. Callbacks run
// sequentially on the scheduler goroutine, so a slow callback delays the
// others.
type Scheduler struct {
	mu    sync.Mutex
	Tick  time.Duration
	clock Clock
	tasks []*task
	now   time.Time
}

// NewScheduler constructs a scheduler that checks for due tasks every tick.
func NewScheduler(tick time.Duration, clock Clock) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{Tick: tick, clock: clock}
}

// Every registers fn to run once per interval. The first call happens one
// interval after Run starts (or after registration if Run is already
// running). Non-positive intervals are ignored.
func (s *Scheduler) Every(interval time.Duration, name string, fn func(context.Context, time.Time)) {
	if interval <= 0 || fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &task{name: name, interval: interval, fn: fn}
	if !s.now.IsZero() {
		t.next = s.now.Add(interval)
	}
	s.tasks = append(s.tasks, t)
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Now returns the time of the most recent tick, or the clock time before
// Run has started.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now.IsZero() {
		return s.clock.Now()
	}
	return s.now
}

// Run blocks until ctx is done, firing due tasks on every tick.
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.clock.Now()
	s.mu.Lock()
	s.now = start
	for _, t := range s.tasks {
		if t.next.IsZero() {
			t.next = start.Add(t.interval)
		}
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		s.step(ctx, s.clock.Now())
	}
}

// Start runs the scheduler for the given duration in a separate goroutine.
// It returns a channel that is closed when the scheduler stops.
func (s *Scheduler) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}
		_ = s.Run(ctx)
	}()
	return done
}

func (s *Scheduler) step(ctx context.Context, now time.Time) {
	s.mu.Lock()
	s.now = now
	var due []*task
	for _, t := range s.tasks {
		if !now.Before(t.next) {
			due = append(due, t)
			// Skip missed periods rather than firing a burst.
			for !now.Before(t.next) {
				t.next = t.next.Add(t.interval)
			}
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn(ctx, now)
	}
}
