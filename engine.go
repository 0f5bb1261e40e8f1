// Package rehearsal is the engine behind a set of practice tools: a tuner, a
// metronome and a drum step sequencer sharing one sample-accurate audio clock.
package rehearsal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	intaudio "github.com/cbegin/rehearsal-go/internal/audio"
	intcfg "github.com/cbegin/rehearsal-go/internal/config"
	intmidi "github.com/cbegin/rehearsal-go/internal/midiout"
	intsynth "github.com/cbegin/rehearsal-go/internal/synth"
)

var (
	ErrNoEngine     = errors.New("rehearsal: no audio engine")
	ErrEngineClosed = errors.New("rehearsal: engine closed")
)

const DefaultSampleRate = 44100

type EngineOption func(*engineConfig)

type engineConfig struct {
	sampleRate int
	backend    intaudio.Backend
	bufferSize time.Duration
	volume     float64
	maxVoices  int
	writer     io.Writer
	midiPort   string
	midiSend   func(midi.Message) error
	logger     *slog.Logger
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		sampleRate: DefaultSampleRate,
		backend:    intaudio.BackendEbiten,
		bufferSize: 50 * time.Millisecond,
		volume:     0.8,
	}
}

func WithSampleRate(rate int) EngineOption {
	return func(cfg *engineConfig) { cfg.sampleRate = rate }
}

func WithBackend(b intaudio.Backend) EngineOption {
	return func(cfg *engineConfig) { cfg.backend = b }
}

// WithBufferSize sets the device read-ahead. Larger buffers survive scheduling
// hiccups at the cost of latency between a UI action and the sound.
func WithBufferSize(d time.Duration) EngineOption {
	return func(cfg *engineConfig) { cfg.bufferSize = d }
}

// WithVolume sets the master volume, 0 to 1.
func WithVolume(v float64) EngineOption {
	return func(cfg *engineConfig) { cfg.volume = v }
}

func WithMaxVoices(n int) EngineOption {
	return func(cfg *engineConfig) { cfg.maxVoices = n }
}

// WithOutputWriter sets where the stdout backend writes PCM.
func WithOutputWriter(w io.Writer) EngineOption {
	return func(cfg *engineConfig) { cfg.writer = w }
}

// WithMIDIPort mirrors every sound to the named MIDI output port.
func WithMIDIPort(name string) EngineOption {
	return func(cfg *engineConfig) { cfg.midiPort = name }
}

// WithMIDISend mirrors every sound through send instead of a named port.
func WithMIDISend(send func(midi.Message) error) EngineOption {
	return func(cfg *engineConfig) { cfg.midiSend = send }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(cfg *engineConfig) { cfg.logger = l }
}

// ConfigOptions translates a loaded config into engine options.
func ConfigOptions(c *intcfg.Config) ([]EngineOption, error) {
	backend, err := intaudio.ParseBackend(c.Backend)
	if err != nil {
		return nil, err
	}
	opts := []EngineOption{
		WithSampleRate(c.SampleRate),
		WithBackend(backend),
		WithBufferSize(time.Duration(c.BufferMs) * time.Millisecond),
		WithVolume(c.Volume()),
	}
	if c.MIDIPort != "" {
		opts = append(opts, WithMIDIPort(c.MIDIPort))
	}
	return opts, nil
}

// ToolOptions translates a loaded config into the timing options shared by
// the metronome and the step sequencer.
func ToolOptions(c *intcfg.Config) []Option {
	return []Option{
		WithTempo(c.Tempo),
		WithBeatsPerBar(c.BeatsPerBar),
		WithLookahead(time.Duration(c.LookaheadMs) * time.Millisecond),
	}
}

// Engine owns the audio device and the synth that schedules sounds on it.
// Its clock is the number of frames the device has pulled, so everything
// scheduled against Now lines up with what is heard.
type Engine struct {
	mixer   *intaudio.Mixer
	output  intaudio.Output
	engines *intsynth.MultiEngine
	synth   *intsynth.Synth
	logger  *slog.Logger

	midi      *intmidi.Sink
	midiClose func() error

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mixOpts := []intaudio.MixerOption{
		intaudio.WithMasterVolume(cfg.volume),
		intaudio.WithLogger(cfg.logger),
	}
	if cfg.maxVoices > 0 {
		mixOpts = append(mixOpts, intaudio.WithMaxVoices(cfg.maxVoices))
	}
	mixer, err := intaudio.NewMixer(cfg.sampleRate, mixOpts...)
	if err != nil {
		return nil, err
	}
	output, err := intaudio.Open(mixer, intaudio.OutputConfig{
		Backend:    cfg.backend,
		BufferSize: cfg.bufferSize,
		Writer:     cfg.writer,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		mixer:   mixer,
		output:  output,
		engines: intsynth.NewMultiEngine(mixer),
		logger:  cfg.logger,
	}
	e.synth = intsynth.New(e.engines)

	send := cfg.midiSend
	if send == nil && cfg.midiPort != "" {
		s, closer, err := intmidi.OpenPort(cfg.midiPort)
		if err != nil {
			_ = output.Close()
			return nil, err
		}
		send, e.midiClose = s, closer
	}
	if send != nil {
		e.midi = intmidi.New(send, mixer, intmidi.WithLogger(cfg.logger))
		e.engines.AddEngine(e.midi)
	}
	return e, nil
}

// Start opens the audio device. Until then the clock does not advance.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.started {
		return nil
	}
	if err := e.output.Start(); err != nil {
		return err
	}
	e.started = true
	if e.midi != nil {
		ctx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			_ = e.midi.Run(ctx)
		}()
	}
	e.logger.Debug("engine started", "sampleRate", e.mixer.SampleRate())
	return nil
}

// Close releases the device and the MIDI port. It is safe to call twice.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	err := e.output.Close()
	if e.midiClose != nil {
		err = errors.Join(err, e.midiClose())
	}
	stats := e.mixer.Stats()
	e.logger.Debug("engine closed", "played", stats.Played, "late", stats.Late, "dropped", stats.Dropped)
	return err
}

// Now is the audio clock in seconds.
func (e *Engine) Now() float64 { return e.mixer.Now() }

func (e *Engine) SampleRate() int { return e.mixer.SampleRate() }

func (e *Engine) Synth() *intsynth.Synth { return e.synth }

// AddEngine mirrors every committed sound to another engine.
func (e *Engine) AddEngine(engine intsynth.Engine) { e.engines.AddEngine(engine) }

// SetVolume sets the master volume, clamped to 0-1.
func (e *Engine) SetVolume(v float64) { e.mixer.SetVolume(v) }

func (e *Engine) Volume() float64 { return e.mixer.Volume() }

func (e *Engine) Stats() intaudio.Stats { return e.mixer.Stats() }

func (e *Engine) Logger() *slog.Logger { return e.logger }
