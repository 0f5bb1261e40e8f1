package synth

import (
	"fmt"
	"math"
	"strings"
)

type Instrument int

const (
	InstrumentClick Instrument = iota
	InstrumentKick
	InstrumentSnare
	InstrumentHat
	InstrumentTone
)

var instrumentNames = [...]string{"click", "kick", "snare", "hat", "tone"}

func (i Instrument) String() string {
	if i < 0 || int(i) >= len(instrumentNames) {
		return "unknown"
	}
	return instrumentNames[i]
}

// ParseInstrument accepts the names printed by Instrument.String.
func ParseInstrument(name string) (Instrument, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range instrumentNames {
		if n == name {
			return Instrument(i), nil
		}
	}
	return 0, fmt.Errorf("synth: unknown instrument %q", name)
}

type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Square
	Sawtooth
)

var waveformNames = [...]string{"sine", "triangle", "square", "sawtooth"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return "unknown"
	}
	return waveformNames[w]
}

func ParseWaveform(name string) (Waveform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range waveformNames {
		if n == name {
			return Waveform(i), nil
		}
	}
	return 0, fmt.Errorf("synth: unknown waveform %q", name)
}

// Params selects what an audio unit sounds like. A unit is one oscillator
// blended with high-passed white noise.
type Params struct {
	Instrument Instrument
	Waveform   Waveform
	Frequency  float64 // oscillator frequency at onset, Hz
	// EndFrequency, when non-zero, is reached by an exponential glide over the
	// unit's duration.
	EndFrequency float64
	Noise        float64 // share of noise in the blend, 0..1
	Highpass     float64 // noise high-pass cutoff, Hz
	Accent       bool
}

func (p Params) Validate() error {
	if p.Waveform < Sine || p.Waveform > Sawtooth {
		return fmt.Errorf("%w: waveform %d", ErrInvalidEnvelope, p.Waveform)
	}
	if !finite(p.Noise) || p.Noise < 0 || p.Noise > 1 {
		return fmt.Errorf("%w: noise share %v", ErrInvalidEnvelope, p.Noise)
	}
	if p.Noise < 1 && (!finite(p.Frequency) || p.Frequency <= 0) {
		return fmt.Errorf("%w: frequency %v", ErrInvalidEnvelope, p.Frequency)
	}
	if !finite(p.EndFrequency) || p.EndFrequency < 0 {
		return fmt.Errorf("%w: end frequency %v", ErrInvalidEnvelope, p.EndFrequency)
	}
	if !finite(p.Highpass) || p.Highpass < 0 {
		return fmt.Errorf("%w: highpass %v", ErrInvalidEnvelope, p.Highpass)
	}
	return nil
}

const (
	ClickFrequency       = 1000.0
	ClickAccentFrequency = 1500.0
	ToneAttack           = 0.05
	TonePeak             = 0.3
)

// Preset returns the envelope and sound of a stock instrument. accent only
// affects the click, which rises to ClickAccentFrequency on downbeats.
func Preset(instr Instrument, accent bool) (EnvelopeSpec, Params) {
	switch instr {
	case InstrumentClick:
		freq := ClickFrequency
		if accent {
			freq = ClickAccentFrequency
		}
		return EnvelopeSpec{Shape: Percussive, Decay: 0.05, Peak: 0.8},
			Params{Instrument: instr, Waveform: Sine, Frequency: freq, Accent: accent}
	case InstrumentKick:
		return EnvelopeSpec{Shape: Percussive, Decay: 0.5, Peak: 1},
			Params{Instrument: instr, Waveform: Sine, Frequency: 150, EndFrequency: 40, Accent: accent}
	case InstrumentSnare:
		return EnvelopeSpec{Shape: Percussive, Decay: 0.2, Peak: 0.7},
			Params{Instrument: instr, Waveform: Triangle, Frequency: 100, Noise: 0.7, Highpass: 1000, Accent: accent}
	case InstrumentHat:
		return EnvelopeSpec{Shape: Percussive, Decay: 0.05, Peak: 0.3},
			Params{Instrument: instr, Noise: 1, Highpass: 7000, Accent: accent}
	default:
		return ToneEnvelope(1), Params{Instrument: InstrumentTone, Waveform: Sine, Frequency: 440}
	}
}

// ToneEnvelope is the reference-tone contour: a short linear fade in, then a
// linear release that ends exactly duration seconds after onset.
func ToneEnvelope(duration float64) EnvelopeSpec {
	attack := ToneAttack
	if duration < 2*attack {
		attack = duration / 2
	}
	return EnvelopeSpec{Shape: Sustained, Attack: attack, Decay: duration - attack, Peak: TonePeak}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
