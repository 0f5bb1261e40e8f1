package rehearsal

import (
	intsched "github.com/cbegin/rehearsal-go/internal/scheduler"
	intseq "github.com/cbegin/rehearsal-go/internal/sequencer"
	intsynth "github.com/cbegin/rehearsal-go/internal/synth"
)

// StepsPerBeat is the step sequencer's grid: sixteenth notes.
const StepsPerBeat = 4

// StepSequencer loops a drum pattern, one step per sixteenth note.
type StepSequencer struct {
	*transport
	seq    *intseq.Sequencer
	onBeat func(Beat)
}

func NewStepSequencer(e *Engine, opts ...Option) (*StepSequencer, error) {
	if e == nil {
		return nil, ErrNoEngine
	}
	cfg := defaultToolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	pattern := cfg.pattern
	if pattern == nil {
		pattern = intseq.DefaultPattern()
	}
	q := &StepSequencer{
		seq: intseq.NewWithOptions(pattern, e.synth, intseq.Options{
			Logger: e.logger,
			OnStep: cfg.onStep,
		}),
		onBeat: cfg.onBeat,
	}
	sopts := append(schedOptions(cfg),
		intsched.WithSubdivision(StepsPerBeat),
		intsched.WithPatternLength(pattern.Steps()),
		intsched.WithTrigger(func(ev intsched.Event) { q.seq.Trigger(ev) }),
		intsched.WithBeat(q.beat),
	)
	t, err := newTransport(e, sopts...)
	if err != nil {
		return nil, err
	}
	q.transport = t
	return q, nil
}

func (q *StepSequencer) beat(ev intsched.Event) {
	if q.onBeat != nil {
		q.onBeat(Beat{Index: ev.Index, Time: ev.Time, Downbeat: ev.Index == 0})
	}
}

func (q *StepSequencer) Start() error { return q.start() }

func (q *StepSequencer) Stop() { q.stop() }

func (q *StepSequencer) Running() bool { return q.running() }

func (q *StepSequencer) SetTempo(bpm float64) error { return q.sched.SetTempo(bpm) }

func (q *StepSequencer) Tempo() float64 { return q.sched.Tempo() }

// Pattern returns a copy of the playing pattern.
func (q *StepSequencer) Pattern() *intseq.Pattern { return q.seq.Pattern() }

// SetPattern swaps the pattern. A different step count takes effect on the
// next step; the position wraps into the new length.
func (q *StepSequencer) SetPattern(p *intseq.Pattern) error {
	if p == nil {
		return intseq.ErrInvalidPattern
	}
	if err := q.sched.SetPatternLength(p.Steps()); err != nil {
		return err
	}
	q.seq.SetPattern(p)
	return nil
}

// Toggle cycles a cell through rest, hit and accent.
func (q *StepSequencer) Toggle(instr intsynth.Instrument, step int) (intseq.Step, error) {
	return q.seq.Toggle(instr, step)
}

func (q *StepSequencer) SetMuted(instr intsynth.Instrument, muted bool) { q.seq.SetMuted(instr, muted) }

func (q *StepSequencer) Muted(instr intsynth.Instrument) bool { return q.seq.Muted(instr) }
