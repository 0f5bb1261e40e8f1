package rehearsal

import (
	"fmt"
	"io"

	intaudio "github.com/cbegin/rehearsal-go/internal/audio"
	intsched "github.com/cbegin/rehearsal-go/internal/scheduler"
	intseq "github.com/cbegin/rehearsal-go/internal/sequencer"
	intsynth "github.com/cbegin/rehearsal-go/internal/synth"
)

// renderBlock is the offline render quantum, well inside the default lookahead.
const renderBlock = 256

// RenderPattern plays pattern at tempo for seconds without an audio device and
// returns interleaved stereo samples. Rendering the same arguments twice gives
// the same samples.
func RenderPattern(pattern *intseq.Pattern, tempo float64, sampleRate int, seconds float64) ([]float32, error) {
	if pattern == nil {
		pattern = intseq.DefaultPattern()
	}
	mixer, err := intaudio.NewMixer(sampleRate)
	if err != nil {
		return nil, err
	}
	seq := intseq.New(pattern, intsynth.New(mixer))
	sched, err := intsched.New(
		intsched.WithTempo(tempo),
		intsched.WithSubdivision(StepsPerBeat),
		intsched.WithPatternLength(pattern.Steps()),
		intsched.WithTrigger(func(ev intsched.Event) { seq.Trigger(ev) }),
	)
	if err != nil {
		return nil, err
	}
	return render(mixer, sched, seconds)
}

// RenderClicks renders a metronome with an accented first beat per bar.
func RenderClicks(tempo float64, beatsPerBar, sampleRate int, seconds float64) ([]float32, error) {
	if err := validBeatsPerBar(beatsPerBar); err != nil {
		return nil, err
	}
	mixer, err := intaudio.NewMixer(sampleRate)
	if err != nil {
		return nil, err
	}
	s := intsynth.New(mixer)
	sched, err := intsched.New(
		intsched.WithTempo(tempo),
		intsched.WithPatternLength(beatsPerBar),
		intsched.WithTrigger(func(ev intsched.Event) {
			_, _ = s.Trigger(intsynth.InstrumentClick, ev.Index == 0, ev.Time)
		}),
	)
	if err != nil {
		return nil, err
	}
	return render(mixer, sched, seconds)
}

// render ticks sched against the mixer clock between blocks, the way the
// runner does against a device.
func render(mixer *intaudio.Mixer, sched *intsched.Scheduler, seconds float64) ([]float32, error) {
	if seconds < 0 {
		return nil, fmt.Errorf("rehearsal: negative render length %v", seconds)
	}
	total := int(float64(mixer.SampleRate()) * seconds)
	out := make([]float32, 0, total*2)
	sched.Start(0)
	for done := 0; done < total; {
		n := min(renderBlock, total-done)
		sched.Tick(mixer.Now())
		out = append(out, mixer.RenderInterleaved(n)...)
		done += n
	}
	sched.Stop()
	return out, nil
}

// WriteS16LE writes interleaved samples as signed 16-bit little-endian PCM.
func WriteS16LE(w io.Writer, samples []float32) error {
	buf := make([]byte, len(samples)*2)
	intaudio.EncodeS16LE(samples, buf)
	_, err := w.Write(buf)
	return err
}
