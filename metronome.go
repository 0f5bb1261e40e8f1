package rehearsal

import (
	"fmt"

	intsched "github.com/cbegin/rehearsal-go/internal/scheduler"
	intsynth "github.com/cbegin/rehearsal-go/internal/synth"
)

const MaxBeatsPerBar = 16

// Metronome clicks once per beat, accenting the first beat of each bar.
type Metronome struct {
	*transport
	synth  *intsynth.Synth
	onBeat func(Beat)
}

func NewMetronome(e *Engine, opts ...Option) (*Metronome, error) {
	if e == nil {
		return nil, ErrNoEngine
	}
	cfg := defaultToolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validBeatsPerBar(cfg.beatsPerBar); err != nil {
		return nil, err
	}
	m := &Metronome{synth: e.synth, onBeat: cfg.onBeat}
	sopts := append(schedOptions(cfg),
		intsched.WithPatternLength(cfg.beatsPerBar),
		intsched.WithTrigger(m.click),
		intsched.WithBeat(m.beat),
	)
	t, err := newTransport(e, sopts...)
	if err != nil {
		return nil, err
	}
	m.transport = t
	return m, nil
}

func (m *Metronome) click(ev intsched.Event) {
	if _, err := m.synth.Trigger(intsynth.InstrumentClick, ev.Index == 0, ev.Time); err != nil {
		m.engine.logger.Warn("click rejected", "beat", ev.Index, "err", err)
	}
}

func (m *Metronome) beat(ev intsched.Event) {
	if m.onBeat != nil {
		m.onBeat(Beat{Index: ev.Index, Time: ev.Time, Downbeat: ev.Index == 0})
	}
}

// Start opens the engine if needed and clicks from the current audio time.
func (m *Metronome) Start() error { return m.start() }

// Stop silences future clicks immediately.
func (m *Metronome) Stop() { m.stop() }

func (m *Metronome) Running() bool { return m.running() }

// SetTempo applies from the beat after the one already scheduled. Out-of-range
// values are rejected and the tempo is unchanged.
func (m *Metronome) SetTempo(bpm float64) error { return m.sched.SetTempo(bpm) }

func (m *Metronome) Tempo() float64 { return m.sched.Tempo() }

func (m *Metronome) SetBeatsPerBar(n int) error {
	if err := validBeatsPerBar(n); err != nil {
		return err
	}
	return m.sched.SetPatternLength(n)
}

func (m *Metronome) BeatsPerBar() int { return m.sched.PatternLength() }

func validBeatsPerBar(n int) error {
	if n < 1 || n > MaxBeatsPerBar {
		return fmt.Errorf("%w: %d beats per bar (want 1-%d)", intsched.ErrInvalidPatternLength, n, MaxBeatsPerBar)
	}
	return nil
}
