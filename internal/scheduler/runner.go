package scheduler

import (
	"context"
	"sync"
	"time"
)

// Clock reports the audio clock in seconds. It must not go backwards.
type Clock interface {
	Now() float64
}

type ClockFunc func() float64

func (f ClockFunc) Now() float64 { return f() }

// WallClock measures seconds since it was created. It stands in for an audio
// clock when no device is running.
type WallClock struct {
	origin time.Time
}

func NewWallClock() *WallClock {
	return &WallClock{origin: time.Now()}
}

func (w *WallClock) Now() float64 {
	return time.Since(w.origin).Seconds()
}

// Runner is the host timer: it calls Tick with the clock's time every quarter
// of the scheduler's lookahead.
type Runner struct {
	sched    *Scheduler
	clock    Clock
	interval time.Duration

	mu    sync.Mutex
	ticks uint64
}

func NewRunner(s *Scheduler, clock Clock) *Runner {
	interval := s.Lookahead() / 4
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Runner{sched: s, clock: clock, interval: interval}
}

func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Ticks is the number of ticks issued so far.
func (r *Runner) Ticks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Runner) tick() {
	r.sched.Tick(r.clock.Now())
	r.mu.Lock()
	r.ticks++
	r.mu.Unlock()
}
