package synth

import (
	"math"

	"github.com/gopxl/beep"
)

// Frames is the number of frames ev occupies at rate.
func Frames(ev AudioEvent, rate beep.SampleRate) int {
	d := ev.Duration()
	if d <= 0 || !finite(d) {
		return 0
	}
	// tolerate float error so 0.05s at 44.1kHz is 2205 frames, not 2206
	return int(math.Ceil(d*float64(rate) - 1e-6))
}

// NewStreamer renders ev from its first frame. The streamer drains after
// Frames(ev, rate) frames. Rendering is deterministic for a given event.
func NewStreamer(ev AudioEvent, rate beep.SampleRate) beep.Streamer {
	total := Frames(ev, rate)
	return &envelope{
		src:   newSource(ev.Params, ev.Seed, rate, total),
		spec:  ev.Envelope,
		rate:  float64(rate),
		total: total,
	}
}

// source is an endless blend of one oscillator and high-passed noise.
type source struct {
	wave  Waveform
	tone  float64 // oscillator share
	noise float64 // noise share
	rate  float64

	phase float64
	freq  float64
	glide float64 // per-frame frequency ratio

	rng   uint64
	alpha float64 // one-pole high-pass coefficient, 0 bypasses
	hpIn  float64
	hpOut float64
}

func newSource(p Params, seed uint32, rate beep.SampleRate, frames int) *source {
	s := &source{
		wave:  p.Waveform,
		tone:  1 - p.Noise,
		noise: p.Noise,
		rate:  float64(rate),
		freq:  p.Frequency,
		glide: 1,
		rng:   uint64(seed)*0x9e3779b97f4a7c15 | 1,
	}
	if p.EndFrequency > 0 && p.Frequency > 0 && frames > 0 {
		s.glide = math.Pow(p.EndFrequency/p.Frequency, 1/float64(frames))
	}
	if p.Highpass > 0 {
		rc := 1 / (2 * math.Pi * p.Highpass)
		dt := 1 / s.rate
		s.alpha = rc / (rc + dt)
	}
	return s
}

func (s *source) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		var v float64
		if s.tone > 0 {
			v += s.tone * s.oscillate()
		}
		if s.noise > 0 {
			v += s.noise * s.filteredNoise()
		}
		samples[i][0] = v
		samples[i][1] = v
	}
	return len(samples), true
}

func (s *source) Err() error { return nil }

func (s *source) oscillate() float64 {
	p := s.phase
	var v float64
	switch s.wave {
	case Sine:
		v = math.Sin(2 * math.Pi * p)
	case Triangle:
		switch {
		case p < 0.25:
			v = 4 * p
		case p < 0.75:
			v = 2 - 4*p
		default:
			v = 4*p - 4
		}
	case Square:
		if p < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case Sawtooth:
		v = 2*p - 1
	}
	s.phase += s.freq / s.rate
	s.phase -= math.Floor(s.phase)
	s.freq *= s.glide
	return v
}

// filteredNoise draws xorshift64* white noise through a one-pole high-pass.
func (s *source) filteredNoise() float64 {
	s.rng ^= s.rng >> 12
	s.rng ^= s.rng << 25
	s.rng ^= s.rng >> 27
	x := float64((s.rng*2685821657736338717)>>11)/(1<<53)*2 - 1
	if s.alpha == 0 {
		return x
	}
	y := s.alpha * (s.hpOut + x - s.hpIn)
	s.hpIn = x
	s.hpOut = y
	return y
}

// envelope scales its source by EnvelopeSpec.Gain and stops after total frames.
type envelope struct {
	src   beep.Streamer
	spec  EnvelopeSpec
	rate  float64
	pos   int
	total int
}

func (e *envelope) Stream(samples [][2]float64) (n int, ok bool) {
	if e.pos >= e.total {
		return 0, false
	}
	if rem := e.total - e.pos; len(samples) > rem {
		samples = samples[:rem]
	}
	n, _ = e.src.Stream(samples)
	for i := 0; i < n; i++ {
		g := e.spec.Gain(float64(e.pos) / e.rate)
		samples[i][0] *= g
		samples[i][1] *= g
		e.pos++
	}
	return n, n > 0
}

func (e *envelope) Err() error { return e.src.Err() }
