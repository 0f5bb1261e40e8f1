package rehearsal

import (
	"fmt"

	intpitch "github.com/cbegin/rehearsal-go/internal/pitch"
	intsynth "github.com/cbegin/rehearsal-go/internal/synth"
)

const (
	DefaultReferenceDuration = 1.0
	referenceLead            = 0.02
)

// Reading is one tuner update.
type Reading struct {
	Estimate intpitch.Estimate
	Note     intpitch.Note
	HasNote  bool
}

// Tuner turns captured frames into note readings and can play a reference
// pitch through an engine.
type Tuner struct {
	det    *intpitch.Detector
	naming intpitch.Naming
	engine *Engine
}

// NewTuner returns a tuner. e may be nil when reference tones are not needed.
func NewTuner(e *Engine, opts ...Option) *Tuner {
	cfg := defaultToolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Tuner{
		det:    intpitch.NewDetector(cfg.detector),
		naming: cfg.naming,
		engine: e,
	}
}

// Process analyses one frame of mono samples. A Tuner must not be used from
// more than one goroutine at a time.
func (t *Tuner) Process(samples []float32, sampleRate int) Reading {
	est := t.det.Detect(intpitch.SampleBuffer{Samples: samples, SampleRate: sampleRate})
	r := Reading{Estimate: est}
	if est.Detected() {
		r.Note, r.HasNote = intpitch.NoteForFrequency(est.Frequency, t.naming)
	}
	return r
}

// PlayReference sounds MIDI note midi for duration seconds, shortly after the
// current audio time.
func (t *Tuner) PlayReference(midi int, duration float64) (intsynth.AudioEvent, error) {
	if t.engine == nil {
		return intsynth.AudioEvent{}, ErrNoEngine
	}
	if midi < 0 || midi > 127 {
		return intsynth.AudioEvent{}, fmt.Errorf("%w: midi note %d", intsynth.ErrInvalidEnvelope, midi)
	}
	if err := t.engine.Start(); err != nil {
		return intsynth.AudioEvent{}, err
	}
	freq := intpitch.FrequencyForMIDI(midi)
	return t.engine.synth.Tone(freq, intsynth.Sine, t.engine.Now()+referenceLead, duration)
}

// ChordQuality selects the triad played by PlayChord.
type ChordQuality int

const (
	Major ChordQuality = iota
	Minor
	Diminished
)

func (q ChordQuality) intervals() [3]int {
	switch q {
	case Minor:
		return [3]int{0, 3, 7}
	case Diminished:
		return [3]int{0, 3, 6}
	default:
		return [3]int{0, 4, 7}
	}
}

// PlayChord sounds a root-position triad on triangle waves.
func (t *Tuner) PlayChord(root int, quality ChordQuality, duration float64) ([]intsynth.AudioEvent, error) {
	if t.engine == nil {
		return nil, ErrNoEngine
	}
	if err := t.engine.Start(); err != nil {
		return nil, err
	}
	start := t.engine.Now() + referenceLead
	var out []intsynth.AudioEvent
	for _, iv := range quality.intervals() {
		ev, err := t.engine.synth.Tone(intpitch.FrequencyForMIDI(root+iv), intsynth.Triangle, start, duration)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// PlayScale sounds the major scale from tonic up an octave, one note every
// step seconds.
func (t *Tuner) PlayScale(tonic int, step float64) ([]intsynth.AudioEvent, error) {
	if t.engine == nil {
		return nil, ErrNoEngine
	}
	if err := t.engine.Start(); err != nil {
		return nil, err
	}
	start := t.engine.Now() + referenceLead
	var out []intsynth.AudioEvent
	for i, iv := range [...]int{0, 2, 4, 5, 7, 9, 11, 12} {
		ev, err := t.engine.synth.Tone(intpitch.FrequencyForMIDI(tonic+iv), intsynth.Sine, start+float64(i)*step, step)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}
