// Package audio renders committed synth events against a sample-counting clock
// and hands the mix to an output device.
package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/gopxl/beep"
	beepfx "github.com/gopxl/beep/effects"

	"github.com/cbegin/rehearsal-go/internal/effects"
	"github.com/cbegin/rehearsal-go/internal/synth"
)

var (
	ErrInvalidSampleRate = errors.New("audio: invalid sample rate")
	ErrUnknownBackend    = errors.New("audio: unknown backend")
)

const DefaultMaxVoices = 64

// Stats counts what happened to committed events.
type Stats struct {
	Committed uint64 // events handed to Commit
	Played    uint64 // events that started rendering
	Late      uint64 // events that started after their start frame had been rendered
	Dropped   uint64 // events that never sounded
	Active    int    // voices currently rendering
	Queued    int    // voices waiting for their start frame
}

type voice struct {
	start  int64
	stream beep.Streamer
}

type MixerOption func(*mixerConfig)

type mixerConfig struct {
	volume    float64
	maxVoices int
	limiter   bool
	logger    *slog.Logger
}

// WithMasterVolume sets the linear master gain, 0..1.
func WithMasterVolume(v float64) MixerOption {
	return func(c *mixerConfig) { c.volume = v }
}

func WithMaxVoices(n int) MixerOption {
	return func(c *mixerConfig) { c.maxVoices = n }
}

// WithLimiter toggles the master limiter and soft clipper.
func WithLimiter(enabled bool) MixerOption {
	return func(c *mixerConfig) { c.limiter = enabled }
}

func WithLogger(l *slog.Logger) MixerOption {
	return func(c *mixerConfig) { c.logger = l }
}

// Mixer is the audio engine. It implements synth.Engine, scheduler.Clock,
// beep.Streamer and SampleSource. Its clock is the number of frames rendered
// so far divided by the sample rate, so time only advances while an output
// pulls audio.
type Mixer struct {
	rate   beep.SampleRate
	logger *slog.Logger

	mu        sync.Mutex
	frame     int64
	queued    []*voice
	active    []*voice
	scratch   [][2]float64
	out       [][2]float64
	master    *beepfx.Volume
	chain     *effects.Chain
	maxVoices int
	stats     Stats
}

func NewMixer(sampleRate int, opts ...MixerOption) (*Mixer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	cfg := mixerConfig{volume: 1, maxVoices: DefaultMaxVoices, limiter: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.maxVoices <= 0 {
		cfg.maxVoices = DefaultMaxVoices
	}
	m := &Mixer{
		rate:      beep.SampleRate(sampleRate),
		logger:    cfg.logger,
		maxVoices: cfg.maxVoices,
		chain:     effects.NewChain(),
	}
	m.master = &beepfx.Volume{Streamer: beep.StreamerFunc(m.mix), Base: 2}
	m.setVolume(cfg.volume)
	if cfg.limiter {
		m.chain.Add(effects.NewMasterLimiter(sampleRate))
		m.chain.Add(effects.NewSoftClip(0.9))
	}
	return m, nil
}

func (m *Mixer) SampleRate() int { return int(m.rate) }

// Now is the audio clock in seconds.
func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.frame) / float64(m.rate)
}

// Frame is the number of frames rendered so far.
func (m *Mixer) Frame() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// SetVolume sets the linear master gain. Values are clamped to 0..1.
func (m *Mixer) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setVolume(v)
}

func (m *Mixer) setVolume(v float64) {
	if math.IsNaN(v) || v <= 0 {
		m.master.Silent = true
		m.master.Volume = 0
		return
	}
	if v > 1 {
		v = 1
	}
	m.master.Silent = false
	m.master.Volume = math.Log2(v)
}

// Volume reports the linear master gain.
func (m *Mixer) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.master.Silent {
		return 0
	}
	return math.Pow(2, m.master.Volume)
}

func (m *Mixer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Active = len(m.active)
	s.Queued = len(m.queued)
	return s
}

// Commit queues ev to start at its start frame. Events that would already have
// finished, and events beyond the voice limit, are dropped.
func (m *Mixer) Commit(ev synth.AudioEvent) {
	start := int64(math.Round(ev.Start * float64(m.rate)))
	frames := int64(synth.Frames(ev, m.rate))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Committed++
	if frames == 0 || start+frames <= m.frame {
		m.stats.Dropped++
		m.logger.Debug("dropping expired event", "instrument", ev.Params.Instrument, "start", ev.Start, "now", float64(m.frame)/float64(m.rate))
		return
	}
	if len(m.queued)+len(m.active) >= m.maxVoices {
		m.stats.Dropped++
		m.logger.Warn("voice limit reached, dropping event", "instrument", ev.Params.Instrument, "limit", m.maxVoices)
		return
	}
	m.queued = append(m.queued, &voice{start: start, stream: synth.NewStreamer(ev, m.rate)})
}

// Reset silences every voice and clears queued events. The clock keeps running.
func (m *Mixer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Dropped += uint64(len(m.queued))
	m.queued = nil
	m.active = nil
	m.chain.Reset()
}

// Stream renders the next len(samples) frames. It never drains.
func (m *Mixer) Stream(samples [][2]float64) (n int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ = m.master.Stream(samples)
	for i := 0; i < n; i++ {
		l, r := m.chain.Process(float32(samples[i][0]), float32(samples[i][1]))
		samples[i][0], samples[i][1] = float64(l), float64(r)
	}
	m.frame += int64(n)
	return n, true
}

func (m *Mixer) Err() error { return nil }

// Process fills dst with interleaved stereo float32 frames.
func (m *Mixer) Process(dst []float32) {
	frames := len(dst) / 2
	if frames == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.out) < frames {
		m.out = make([][2]float64, frames)
	}
	buf := m.out[:frames]
	n, _ := m.master.Stream(buf)
	for i := 0; i < n; i++ {
		dst[2*i], dst[2*i+1] = m.chain.Process(float32(buf[i][0]), float32(buf[i][1]))
	}
	for i := 2 * n; i < len(dst); i++ {
		dst[i] = 0
	}
	m.frame += int64(frames)
}

// RenderInterleaved renders frames of interleaved stereo into a new slice.
func (m *Mixer) RenderInterleaved(frames int) []float32 {
	out := make([]float32, frames*2)
	m.Process(out)
	return out
}

// mix sums every voice sounding in the block starting at m.frame. The caller
// holds m.mu.
func (m *Mixer) mix(samples [][2]float64) (int, bool) {
	n := len(samples)
	for i := range samples {
		samples[i] = [2]float64{}
	}
	base := m.frame
	end := base + int64(n)

	pending := m.queued[:0]
	for _, v := range m.queued {
		if v.start >= end {
			pending = append(pending, v)
			continue
		}
		if v.start < base {
			m.stats.Late++
			if !m.skip(v, int(base-v.start)) {
				m.stats.Dropped++
				continue
			}
			v.start = base
		}
		m.stats.Played++
		m.active = append(m.active, v)
	}
	for i := len(pending); i < len(m.queued); i++ {
		m.queued[i] = nil
	}
	m.queued = pending

	scratch := m.scratchBuffer(n)
	live := m.active[:0]
	for _, v := range m.active {
		off := 0
		if v.start > base {
			off = int(v.start - base)
		}
		want := n - off
		got, ok := v.stream.Stream(scratch[:want])
		for i := 0; i < got; i++ {
			samples[off+i][0] += scratch[i][0]
			samples[off+i][1] += scratch[i][1]
		}
		if ok && got == want {
			live = append(live, v)
		}
	}
	for i := len(live); i < len(m.active); i++ {
		m.active[i] = nil
	}
	m.active = live
	return n, true
}

// skip discards frames from the head of v. It reports false when v ends
// before they run out.
func (m *Mixer) skip(v *voice, frames int) bool {
	scratch := m.scratchBuffer(512)
	for frames > 0 {
		chunk := frames
		if chunk > len(scratch) {
			chunk = len(scratch)
		}
		got, ok := v.stream.Stream(scratch[:chunk])
		if !ok || got < chunk {
			return false
		}
		frames -= got
	}
	return true
}

func (m *Mixer) scratchBuffer(n int) [][2]float64 {
	if len(m.scratch) < n {
		m.scratch = make([][2]float64, n)
	}
	return m.scratch[:n]
}
