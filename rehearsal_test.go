package rehearsal

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	intaudio "github.com/cbegin/rehearsal-go/internal/audio"
	intcfg "github.com/cbegin/rehearsal-go/internal/config"
	intpitch "github.com/cbegin/rehearsal-go/internal/pitch"
	intsched "github.com/cbegin/rehearsal-go/internal/scheduler"
	intseq "github.com/cbegin/rehearsal-go/internal/sequencer"
	intsynth "github.com/cbegin/rehearsal-go/internal/synth"
)

type recordingEngine struct {
	mu     sync.Mutex
	events []intsynth.AudioEvent
}

func (r *recordingEngine) Commit(ev intsynth.AudioEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEngine) snapshot() []intsynth.AudioEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]intsynth.AudioEvent(nil), r.events...)
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithBackend(intaudio.BackendNull), WithBufferSize(10 * time.Millisecond)}, opts...)
	e, err := NewEngine(opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineVolumeRuntimeAPI(t *testing.T) {
	e := newTestEngine(t)
	if got := e.Volume(); math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("default volume = %v, want 0.8", got)
	}
	e.SetVolume(0.35)
	if got := e.Volume(); math.Abs(got-0.35) > 1e-9 {
		t.Fatalf("volume = %v, want 0.35", got)
	}
	e.SetVolume(-2)
	if got := e.Volume(); got != 0 {
		t.Fatalf("volume should clamp to 0, got %v", got)
	}
}

func TestEngineRejectsBadSampleRate(t *testing.T) {
	if _, err := NewEngine(WithBackend(intaudio.BackendNull), WithSampleRate(0)); !errors.Is(err, intaudio.ErrInvalidSampleRate) {
		t.Fatalf("err = %v, want ErrInvalidSampleRate", err)
	}
}

func TestEngineClockAdvancesOnlyAfterStart(t *testing.T) {
	e := newTestEngine(t)
	time.Sleep(30 * time.Millisecond)
	if e.Now() != 0 {
		t.Fatalf("clock moved before Start: %v", e.Now())
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for e.Now() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.Now() == 0 {
		t.Fatal("clock did not advance after Start")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("start after close: err = %v, want ErrEngineClosed", err)
	}
}

func TestEngineMirrorsToMIDI(t *testing.T) {
	var mu sync.Mutex
	var sent []midi.Message
	e := newTestEngine(t, WithMIDISend(func(m midi.Message) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, m)
		return nil
	}))
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.Synth().Trigger(intsynth.InstrumentKick, false, e.Now()+0.01); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(sent)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sent) < 2 {
		t.Fatalf("midi messages = %d, want note-on and note-off", len(sent))
	}
	var ch, key, vel uint8
	if !sent[0].GetNoteOn(&ch, &key, &vel) || key != 36 {
		t.Fatalf("first message = %v, want kick note-on", sent[0])
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := intcfg.DefaultConfig()
	cfg.Backend = "null"
	cfg.MasterVolume = 50
	opts, err := ConfigOptions(cfg)
	if err != nil {
		t.Fatalf("config options: %v", err)
	}
	e, err := NewEngine(opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer e.Close()
	if e.SampleRate() != 44100 || math.Abs(e.Volume()-0.5) > 1e-9 {
		t.Fatalf("rate %d volume %v", e.SampleRate(), e.Volume())
	}

	cfg.Backend = "jack"
	if _, err := ConfigOptions(cfg); !errors.Is(err, intaudio.ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestToolOptionsApplyLookahead(t *testing.T) {
	e := newTestEngine(t)
	cfg := intcfg.DefaultConfig()
	cfg.Tempo, cfg.BeatsPerBar, cfg.LookaheadMs = 90, 3, 200

	m, err := NewMetronome(e, ToolOptions(cfg)...)
	if err != nil {
		t.Fatalf("new metronome: %v", err)
	}
	if m.Tempo() != 90 || m.BeatsPerBar() != 3 {
		t.Fatalf("tempo %v beats %d", m.Tempo(), m.BeatsPerBar())
	}
	if got := m.sched.Lookahead(); got != 200*time.Millisecond {
		t.Fatalf("metronome lookahead = %v, want 200ms", got)
	}
	if got := intsched.NewRunner(m.sched, e).Interval(); got != 50*time.Millisecond {
		t.Fatalf("runner interval = %v, want 50ms", got)
	}

	seq, err := NewStepSequencer(e, ToolOptions(cfg)...)
	if err != nil {
		t.Fatalf("new step sequencer: %v", err)
	}
	if got := seq.sched.Lookahead(); got != 200*time.Millisecond {
		t.Fatalf("sequencer lookahead = %v, want 200ms", got)
	}
}

func TestMetronomeAccentsDownbeat(t *testing.T) {
	e := newTestEngine(t)
	rec := &recordingEngine{}
	e.AddEngine(rec)
	var beats []Beat
	m, err := NewMetronome(e, WithBeatsPerBar(3), WithOnBeat(func(b Beat) { beats = append(beats, b) }))
	if err != nil {
		t.Fatalf("new metronome: %v", err)
	}
	m.sched.Start(0)
	for _, now := range []float64{0, 0.5, 1.0, 1.5, 1.95} {
		m.sched.Tick(now)
	}

	events := rec.snapshot()
	if len(events) != 5 {
		t.Fatalf("clicks = %d, want 5", len(events))
	}
	for i, ev := range events {
		if ev.Params.Instrument != intsynth.InstrumentClick {
			t.Fatalf("event %d instrument %v", i, ev.Params.Instrument)
		}
		if want := float64(i) * 0.5; math.Abs(ev.Start-want) > 1e-9 {
			t.Fatalf("event %d at %v, want %v", i, ev.Start, want)
		}
		if accent := i%3 == 0; ev.Params.Accent != accent {
			t.Fatalf("event %d accent = %v, want %v", i, ev.Params.Accent, accent)
		}
	}
	if len(beats) != 4 {
		t.Fatalf("beats = %d, want 4", len(beats))
	}
	if !beats[0].Downbeat || beats[1].Downbeat || !beats[3].Downbeat {
		t.Fatalf("downbeats wrong: %+v", beats)
	}
}

func TestMetronomeRejectsBadSettings(t *testing.T) {
	e := newTestEngine(t)
	if _, err := NewMetronome(e, WithTempo(5)); !errors.Is(err, intsched.ErrInvalidTempo) {
		t.Fatalf("err = %v, want ErrInvalidTempo", err)
	}
	if _, err := NewMetronome(e, WithBeatsPerBar(0)); !errors.Is(err, intsched.ErrInvalidPatternLength) {
		t.Fatalf("err = %v, want ErrInvalidPatternLength", err)
	}
	if _, err := NewMetronome(nil); !errors.Is(err, ErrNoEngine) {
		t.Fatalf("err = %v, want ErrNoEngine", err)
	}

	m, err := NewMetronome(e, WithTempo(90))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetTempo(1000); !errors.Is(err, intsched.ErrInvalidTempo) {
		t.Fatalf("err = %v", err)
	}
	if m.Tempo() != 90 {
		t.Fatalf("tempo changed to %v after rejected update", m.Tempo())
	}
	if err := m.SetBeatsPerBar(17); err == nil || m.BeatsPerBar() != 4 {
		t.Fatalf("err = %v, beats per bar = %d", err, m.BeatsPerBar())
	}
	if err := m.SetBeatsPerBar(6); err != nil || m.BeatsPerBar() != 6 {
		t.Fatalf("err = %v, beats per bar = %d", err, m.BeatsPerBar())
	}
}

func TestMetronomeRunsOnEngineClock(t *testing.T) {
	e := newTestEngine(t)
	beats := make(chan Beat, 64)
	m, err := NewMetronome(e, WithTempo(400), WithOnBeat(func(b Beat) {
		select {
		case beats <- b:
		default:
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	timeout := time.After(3 * time.Second)
	for got := 0; got < 3; got++ {
		select {
		case <-beats:
		case <-timeout:
			t.Fatalf("only %d beats before timeout", got)
		}
	}
	m.Stop()
	if m.Running() {
		t.Fatal("still running after Stop")
	}
	if e.Stats().Committed < 3 {
		t.Fatalf("committed = %d", e.Stats().Committed)
	}
}

func TestStepSequencerPlaysPattern(t *testing.T) {
	e := newTestEngine(t)
	rec := &recordingEngine{}
	e.AddEngine(rec)
	pattern, err := intseq.ParsePattern(`
kick: X...x...
hat:  x.x.x.x.
`)
	if err != nil {
		t.Fatal(err)
	}
	var steps []int
	q, err := NewStepSequencer(e, WithPattern(pattern), WithOnStep(func(step int, _ []intseq.NoteAt) {
		steps = append(steps, step)
	}))
	if err != nil {
		t.Fatalf("new step sequencer: %v", err)
	}
	q.sched.Start(0)
	// 120 BPM sixteenths are 0.125s apart; this window covers steps 0-7.
	q.sched.Tick(0.8)

	if len(steps) != 8 {
		t.Fatalf("steps = %v, want 8", steps)
	}
	events := rec.snapshot()
	if len(events) != 6 {
		t.Fatalf("events = %d, want 2 kicks and 4 hats", len(events))
	}
	if events[0].Params.Instrument != intsynth.InstrumentKick || !events[0].Params.Accent {
		t.Fatalf("first event = %+v, want accented kick", events[0].Params)
	}
	if events[len(events)-1].Start != 0.75 {
		t.Fatalf("last event at %v, want 0.75", events[len(events)-1].Start)
	}
}

func TestStepSequencerEditsAndMutes(t *testing.T) {
	e := newTestEngine(t)
	q, err := NewStepSequencer(e)
	if err != nil {
		t.Fatal(err)
	}
	if q.Pattern().Steps() != intseq.DefaultSteps {
		t.Fatalf("default steps = %d", q.Pattern().Steps())
	}
	if s, err := q.Toggle(intsynth.InstrumentSnare, 1); err != nil || s != intseq.Hit {
		t.Fatalf("toggle = %v, %v", s, err)
	}
	if q.Pattern().Get(intsynth.InstrumentSnare, 1) != intseq.Hit {
		t.Fatal("toggle did not reach the pattern")
	}
	q.SetMuted(intsynth.InstrumentHat, true)
	if !q.Muted(intsynth.InstrumentHat) {
		t.Fatal("hat not muted")
	}

	short, _ := intseq.NewPattern(8)
	if err := q.SetPattern(short); err != nil {
		t.Fatalf("set pattern: %v", err)
	}
	if q.sched.PatternLength() != 8 {
		t.Fatalf("scheduler length = %d, want 8", q.sched.PatternLength())
	}
	if err := q.SetPattern(nil); !errors.Is(err, intseq.ErrInvalidPattern) {
		t.Fatalf("err = %v", err)
	}
}

func sineFrame(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestTunerReadsNote(t *testing.T) {
	tu := NewTuner(nil)
	r := tu.Process(sineFrame(440, 44100, 4096), 44100)
	if !r.HasNote || r.Note.MIDI != 69 || r.Note.Name != "A" {
		t.Fatalf("reading = %+v", r)
	}
	if !r.Note.InTune() {
		t.Fatalf("440 Hz should be in tune, cents %v", r.Note.Cents)
	}

	sol := NewTuner(nil, WithNaming(intpitch.NamingSolfege))
	if r := sol.Process(sineFrame(440, 44100, 4096), 44100); r.Note.Name != "La" {
		t.Fatalf("solfege name = %q", r.Note.Name)
	}

	silent := tu.Process(make([]float32, 4096), 44100)
	if silent.HasNote || silent.Estimate.Status != intpitch.InsufficientSignal {
		t.Fatalf("silence reading = %+v", silent)
	}
}

func TestTunerReferencePlayback(t *testing.T) {
	if _, err := NewTuner(nil).PlayReference(69, 1); !errors.Is(err, ErrNoEngine) {
		t.Fatalf("err = %v, want ErrNoEngine", err)
	}
	e := newTestEngine(t)
	tu := NewTuner(e)
	ev, err := tu.PlayReference(69, DefaultReferenceDuration)
	if err != nil {
		t.Fatalf("play reference: %v", err)
	}
	if ev.Params.Frequency != 440 || ev.Envelope.Shape != intsynth.Sustained {
		t.Fatalf("reference = %+v", ev)
	}
	if _, err := tu.PlayReference(128, 1); !errors.Is(err, intsynth.ErrInvalidEnvelope) {
		t.Fatalf("err = %v", err)
	}

	chord, err := tu.PlayChord(60, Diminished, 1)
	if err != nil || len(chord) != 3 {
		t.Fatalf("chord = %d events, err %v", len(chord), err)
	}
	wantTop := intpitch.FrequencyForMIDI(66)
	if math.Abs(chord[2].Params.Frequency-wantTop) > 1e-9 || chord[2].Params.Waveform != intsynth.Triangle {
		t.Fatalf("diminished fifth = %+v", chord[2].Params)
	}
	if chord[0].Start != chord[2].Start {
		t.Fatal("chord tones should start together")
	}

	scale, err := tu.PlayScale(60, 0.5)
	if err != nil || len(scale) != 8 {
		t.Fatalf("scale = %d events, err %v", len(scale), err)
	}
	if d := scale[7].Start - scale[0].Start; math.Abs(d-3.5) > 1e-9 {
		t.Fatalf("scale spans %v s, want 3.5", d)
	}
}

func peak(samples []float32, fromFrame, frames int) float64 {
	var p float64
	for i := fromFrame * 2; i < (fromFrame+frames)*2 && i < len(samples); i++ {
		p = math.Max(p, math.Abs(float64(samples[i])))
	}
	return p
}

func TestRenderPatternEnergyAtActiveSteps(t *testing.T) {
	pattern, err := intseq.ParsePattern("hat: x...x...x...X...")
	if err != nil {
		t.Fatal(err)
	}
	const rate = 48000
	out, err := RenderPattern(pattern, 120, rate, 2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != 2*2*rate {
		t.Fatalf("samples = %d", len(out))
	}
	const stepFrames = rate / 8 // 120 BPM sixteenths
	for step := 0; step < 16; step++ {
		p := peak(out, step*stepFrames, 480)
		if step%4 == 0 && p < 0.01 {
			t.Fatalf("step %d: peak %v, want a hit", step, p)
		}
		if step%4 != 0 && p > 1e-6 {
			t.Fatalf("step %d: peak %v, want silence", step, p)
		}
	}

	again, _ := RenderPattern(pattern, 120, rate, 2)
	for i := range out {
		if out[i] != again[i] {
			t.Fatalf("render not deterministic at sample %d", i)
		}
	}
}

func TestRenderClicksOnBeats(t *testing.T) {
	const rate = 44100
	out, err := RenderClicks(120, 4, rate, 2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for beat := 0; beat < 4; beat++ {
		start := beat * rate / 2
		if p := peak(out, start, 441); p < 0.05 {
			t.Fatalf("beat %d: peak %v", beat, p)
		}
		if p := peak(out, start+rate/4, 441); p > 1e-6 {
			t.Fatalf("between beats %d and %d: peak %v", beat, beat+1, p)
		}
	}
	if _, err := RenderClicks(120, 0, rate, 1); err == nil {
		t.Fatal("expected error for zero beats per bar")
	}
	if _, err := RenderClicks(120, 4, rate, -1); err == nil {
		t.Fatal("expected error for negative length")
	}
}
