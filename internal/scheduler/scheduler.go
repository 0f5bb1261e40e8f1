// Package scheduler emits beat and step events ahead of an audio clock so that
// a coarse host timer can drive sample-accurate playback.
package scheduler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

const (
	MinBPM           = 20.0
	MaxBPM           = 400.0
	DefaultTempo     = 120.0
	DefaultLookahead = 100 * time.Millisecond
	MaxSubdivision   = 16
)

var (
	ErrInvalidTempo         = errors.New("scheduler: invalid tempo")
	ErrInvalidPatternLength = errors.New("scheduler: invalid pattern length")
	ErrInvalidSubdivision   = errors.New("scheduler: invalid subdivision")
	ErrInvalidLookahead     = errors.New("scheduler: invalid lookahead")
)

// Event is one logical position committed for Time on the audio clock.
type Event struct {
	Index int
	Time  float64
}

type Option func(*config)

type config struct {
	tempo         float64
	subdivision   int
	patternLength int
	lookahead     time.Duration
	onTrigger     func(Event)
	onBeat        func(Event)
	logger        *slog.Logger
}

func defaultConfig() config {
	return config{
		tempo:         DefaultTempo,
		subdivision:   1,
		patternLength: 4,
		lookahead:     DefaultLookahead,
	}
}

func WithTempo(bpm float64) Option {
	return func(c *config) { c.tempo = bpm }
}

// WithSubdivision sets the number of events per beat: 1 for quarter notes, 4
// for sixteenths.
func WithSubdivision(n int) Option {
	return func(c *config) { c.subdivision = n }
}

func WithPatternLength(n int) Option {
	return func(c *config) { c.patternLength = n }
}

func WithLookahead(d time.Duration) Option {
	return func(c *config) { c.lookahead = d }
}

// WithTrigger installs the audio callback. It runs on the ticking goroutine as
// soon as an event enters the lookahead window; it should commit audio and
// return.
func WithTrigger(fn func(Event)) Option {
	return func(c *config) { c.onTrigger = fn }
}

// WithBeat installs the visual callback. It fires on the first Tick at or
// after the event's time and is best-effort.
func WithBeat(fn func(Event)) Option {
	return func(c *config) { c.onBeat = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Scheduler is a lookahead event scheduler. All methods are safe for
// concurrent use; callbacks run outside its lock.
type Scheduler struct {
	mu            sync.Mutex
	tempo         float64
	subdivision   int
	patternLength int
	lookahead     float64
	running       bool
	nextTime      float64
	index         int
	lastNow       float64
	pending       []Event
	onTrigger     func(Event)
	onBeat        func(Event)
	logger        *slog.Logger
}

func New(opts ...Option) (*Scheduler, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validTempo(cfg.tempo); err != nil {
		return nil, err
	}
	if err := validSubdivision(cfg.subdivision); err != nil {
		return nil, err
	}
	if cfg.patternLength <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPatternLength, cfg.patternLength)
	}
	if cfg.lookahead <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLookahead, cfg.lookahead)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		tempo:         cfg.tempo,
		subdivision:   cfg.subdivision,
		patternLength: cfg.patternLength,
		lookahead:     cfg.lookahead.Seconds(),
		onTrigger:     cfg.onTrigger,
		onBeat:        cfg.onBeat,
		logger:        cfg.logger,
	}, nil
}

// Start begins emission from now, or from the previously computed next event
// time if that is later. It is a no-op while running.
func (s *Scheduler) Start(now float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	if finite(now) {
		if now > s.nextTime {
			s.nextTime = now
		}
		if now > s.lastNow {
			s.lastNow = now
		}
	}
	s.index = 0
	s.pending = s.pending[:0]
	s.running = true
	s.logger.Debug("scheduler started", "at", s.nextTime, "tempo", s.tempo)
}

// Stop halts emission immediately and drops pending visual notifications.
// Audio already handed to the trigger callback is not retracted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.pending = s.pending[:0]
	s.logger.Debug("scheduler stopped", "next", s.nextTime)
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetTempo changes the tempo from the next computed interval on. Out-of-range
// values are rejected and the current tempo is kept.
func (s *Scheduler) SetTempo(bpm float64) error {
	if err := validTempo(bpm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempo = bpm
	return nil
}

func (s *Scheduler) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

func (s *Scheduler) SetPatternLength(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPatternLength, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patternLength = n
	s.index %= n
	return nil
}

func (s *Scheduler) PatternLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patternLength
}

func (s *Scheduler) SetSubdivision(n int) error {
	if err := validSubdivision(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subdivision = n
	return nil
}

func (s *Scheduler) Subdivision() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subdivision
}

// Lookahead is the scheduling horizon.
func (s *Scheduler) Lookahead() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.lookahead * float64(time.Second))
}

// NextEventTime is the audio-clock time of the next position not yet emitted.
func (s *Scheduler) NextEventTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTime
}

// Interval is the current spacing between events in seconds.
func (s *Scheduler) Interval() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval()
}

func (s *Scheduler) interval() float64 {
	return 60 / s.tempo / float64(s.subdivision)
}

// Tick fires due visual notifications, then emits every event whose time falls
// before now plus the lookahead. It returns the emitted events in time order.
// A now that is not finite or is earlier than a previous one is treated as
// the previous one.
func (s *Scheduler) Tick(now float64) []Event {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if !finite(now) || now < s.lastNow {
		now = s.lastNow
	}
	s.lastNow = now

	due := 0
	for due < len(s.pending) && s.pending[due].Time <= now {
		due++
	}
	var beats []Event
	if due > 0 {
		beats = make([]Event, due)
		copy(beats, s.pending[:due])
		s.pending = append(s.pending[:0], s.pending[due:]...)
	}

	var emitted []Event
	horizon := now + s.lookahead
	for s.nextTime < horizon {
		ev := Event{Index: s.index, Time: s.nextTime}
		emitted = append(emitted, ev)
		if s.onBeat != nil {
			s.pending = append(s.pending, ev)
		}
		s.nextTime += s.interval()
		s.index = (s.index + 1) % s.patternLength
	}
	onTrigger, onBeat := s.onTrigger, s.onBeat
	s.mu.Unlock()

	for _, ev := range beats {
		s.call("beat", onBeat, ev)
	}
	for _, ev := range emitted {
		s.call("trigger", onTrigger, ev)
	}
	return emitted
}

func (s *Scheduler) call(kind string, fn func(Event), ev Event) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler callback panicked", "callback", kind, "index", ev.Index, "time", ev.Time, "panic", r)
		}
	}()
	fn(ev)
}

func validTempo(bpm float64) error {
	if math.IsNaN(bpm) || bpm < MinBPM || bpm > MaxBPM {
		return fmt.Errorf("%w: %v bpm (want %v-%v)", ErrInvalidTempo, bpm, MinBPM, MaxBPM)
	}
	return nil
}

func validSubdivision(n int) error {
	if n <= 0 || n > MaxSubdivision {
		return fmt.Errorf("%w: %d", ErrInvalidSubdivision, n)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
