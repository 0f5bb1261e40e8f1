// Package synth turns envelope and instrument descriptions into AudioEvent
// values and renders them as beep streamers.
package synth

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidEnvelope = errors.New("synth: invalid envelope")

// Engine receives committed audio units. Implementations must accept commits
// from any goroutine.
type Engine interface {
	Commit(ev AudioEvent)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ev AudioEvent)

func (f EngineFunc) Commit(ev AudioEvent) { f(ev) }

// AudioEvent is one scheduled, self-contained sound. Start and Stop are
// audio-clock seconds. Once committed it cannot be retracted.
type AudioEvent struct {
	Start    float64
	Stop     float64
	Envelope EnvelopeSpec
	Params   Params
	Seed     uint32
}

func (e AudioEvent) Duration() float64 {
	return e.Stop - e.Start
}

// Synth validates units and commits them to an Engine. It holds no per-event
// state, so one Synth may be shared across goroutines.
type Synth struct {
	engine Engine
}

// New returns a Synth committing to engine. A nil engine discards events.
func New(engine Engine) *Synth {
	if engine == nil {
		engine = EngineFunc(func(AudioEvent) {})
	}
	return &Synth{engine: engine}
}

// Schedule commits a unit shaped by spec starting at start (audio-clock
// seconds) and returns it.
func (s *Synth) Schedule(spec EnvelopeSpec, start float64, params Params) (AudioEvent, error) {
	if !finite(start) || start < 0 {
		return AudioEvent{}, fmt.Errorf("%w: start time %v", ErrInvalidEnvelope, start)
	}
	if err := spec.Validate(); err != nil {
		return AudioEvent{}, fmt.Errorf("%w: %+v", err, spec)
	}
	if err := params.Validate(); err != nil {
		return AudioEvent{}, err
	}
	ev := AudioEvent{
		Start:    start,
		Stop:     start + spec.Duration(),
		Envelope: spec,
		Params:   params,
		Seed:     seedFor(start, params.Instrument),
	}
	s.engine.Commit(ev)
	return ev, nil
}

// Trigger schedules a stock instrument hit.
func (s *Synth) Trigger(instr Instrument, accent bool, start float64) (AudioEvent, error) {
	spec, params := Preset(instr, accent)
	return s.Schedule(spec, start, params)
}

// Tone schedules a reference tone of the given length.
func (s *Synth) Tone(freq float64, wave Waveform, start, duration float64) (AudioEvent, error) {
	if !finite(duration) || duration <= 0 {
		return AudioEvent{}, fmt.Errorf("%w: tone duration %v", ErrInvalidEnvelope, duration)
	}
	return s.Schedule(ToneEnvelope(duration), start, Params{
		Instrument: InstrumentTone,
		Waveform:   wave,
		Frequency:  freq,
	})
}

// seedFor derives a noise seed from the start time so that rendering the same
// event twice gives the same samples.
func seedFor(start float64, instr Instrument) uint32 {
	h := math.Float64bits(start) ^ uint64(instr+1)*0x9e3779b97f4a7c15
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return uint32(h)
}
