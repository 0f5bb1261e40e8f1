package rehearsal

import (
	"time"

	intpitch "github.com/cbegin/rehearsal-go/internal/pitch"
	intseq "github.com/cbegin/rehearsal-go/internal/sequencer"
)

// Beat is reported to the UI when a scheduled event becomes audible.
type Beat struct {
	Index    int
	Time     float64
	Downbeat bool
}

// Option configures a Metronome, StepSequencer or Tuner. Each tool ignores
// the options that do not apply to it.
type Option func(*toolConfig)

type toolConfig struct {
	tempo       float64
	beatsPerBar int
	lookahead   time.Duration
	onBeat      func(Beat)
	pattern     *intseq.Pattern
	onStep      func(step int, hits []intseq.NoteAt)
	naming      intpitch.Naming
	detector    intpitch.Params
}

func defaultToolConfig() toolConfig {
	return toolConfig{
		tempo:       120,
		beatsPerBar: 4,
		detector:    intpitch.DefaultParams(),
	}
}

func WithTempo(bpm float64) Option {
	return func(c *toolConfig) { c.tempo = bpm }
}

func WithBeatsPerBar(n int) Option {
	return func(c *toolConfig) { c.beatsPerBar = n }
}

// WithLookahead sets how far ahead of the clock events are committed.
func WithLookahead(d time.Duration) Option {
	return func(c *toolConfig) { c.lookahead = d }
}

// WithOnBeat registers a visual callback. It runs on the scheduling goroutine
// when the beat's time arrives; it must not block.
func WithOnBeat(fn func(Beat)) Option {
	return func(c *toolConfig) { c.onBeat = fn }
}

func WithPattern(p *intseq.Pattern) Option {
	return func(c *toolConfig) { c.pattern = p }
}

// WithOnStep is called as each step's hits are committed, ahead of the audio.
func WithOnStep(fn func(step int, hits []intseq.NoteAt)) Option {
	return func(c *toolConfig) { c.onStep = fn }
}

func WithNaming(n intpitch.Naming) Option {
	return func(c *toolConfig) { c.naming = n }
}

func WithDetectorParams(p intpitch.Params) Option {
	return func(c *toolConfig) { c.detector = p }
}
