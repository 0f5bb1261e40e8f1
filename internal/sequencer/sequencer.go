// Package sequencer plays step patterns: each scheduler event selects a step
// and every instrument with a hit there is handed to the synth.
package sequencer

import (
	"io"
	"log/slog"
	"sync"

	"github.com/cbegin/rehearsal-go/internal/scheduler"
	"github.com/cbegin/rehearsal-go/internal/synth"
)

type Options struct {
	Logger *slog.Logger
	// OnStep is called after a step's hits are committed, on the scheduler's
	// goroutine.
	OnStep func(step int, hits []NoteAt)
}

// Sequencer maps scheduler events onto a Pattern. Pattern edits and mutes may
// come from any goroutine.
type Sequencer struct {
	mu      sync.Mutex
	pattern *Pattern
	synth   *synth.Synth
	muted   map[synth.Instrument]bool
	onStep  func(int, []NoteAt)
	logger  *slog.Logger
}

func New(pattern *Pattern, s *synth.Synth) *Sequencer {
	return NewWithOptions(pattern, s, Options{})
}

func NewWithOptions(pattern *Pattern, s *synth.Synth, opts Options) *Sequencer {
	if pattern == nil {
		pattern = DefaultPattern()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sequencer{
		pattern: pattern,
		synth:   s,
		muted:   make(map[synth.Instrument]bool),
		onStep:  opts.OnStep,
		logger:  logger,
	}
}

// Trigger commits every unmuted hit on ev.Index at ev.Time and returns the
// committed events.
func (q *Sequencer) Trigger(ev scheduler.Event) []synth.AudioEvent {
	q.mu.Lock()
	hits := q.pattern.At(ev.Index)
	live := hits[:0]
	for _, h := range hits {
		if !q.muted[h.Instrument] {
			live = append(live, h)
		}
	}
	onStep := q.onStep
	q.mu.Unlock()

	var out []synth.AudioEvent
	for _, h := range live {
		a, err := q.synth.Trigger(h.Instrument, h.Accent, ev.Time)
		if err != nil {
			q.logger.Warn("step trigger rejected", "step", ev.Index, "instrument", h.Instrument, "err", err)
			continue
		}
		out = append(out, a)
	}
	if onStep != nil {
		onStep(ev.Index, live)
	}
	return out
}

// Pattern returns a copy of the current pattern.
func (q *Sequencer) Pattern() *Pattern {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pattern.Clone()
}

// SetPattern replaces the pattern from the next trigger on.
func (q *Sequencer) SetPattern(p *Pattern) {
	if p == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pattern = p.Clone()
}

func (q *Sequencer) Steps() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pattern.Steps()
}

func (q *Sequencer) Toggle(instr synth.Instrument, step int) (Step, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pattern.Toggle(instr, step)
}

func (q *Sequencer) Set(instr synth.Instrument, step int, s Step) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pattern.Set(instr, step, s)
}

func (q *Sequencer) SetMuted(instr synth.Instrument, muted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if muted {
		q.muted[instr] = true
	} else {
		delete(q.muted, instr)
	}
}

func (q *Sequencer) Muted(instr synth.Instrument) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.muted[instr]
}
