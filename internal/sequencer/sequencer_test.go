package sequencer

import (
	"errors"
	"strings"
	"testing"

	"github.com/cbegin/rehearsal-go/internal/scheduler"
	"github.com/cbegin/rehearsal-go/internal/synth"
)

type countingEngine struct {
	events []synth.AudioEvent
}

func (e *countingEngine) Commit(ev synth.AudioEvent) { e.events = append(e.events, ev) }

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern(`
# four on the floor
kick:  X...|x...|x...|x...
hat:   ..x. ..x. ..x. ..x.
`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.Steps() != 16 {
		t.Fatalf("steps = %d, want 16", p.Steps())
	}
	if got := p.Get(synth.InstrumentKick, 0); got != Accent {
		t.Fatalf("kick step 0 = %v, want accent", got)
	}
	if got := p.Get(synth.InstrumentKick, 4); got != Hit {
		t.Fatalf("kick step 4 = %v, want hit", got)
	}
	if got := p.Get(synth.InstrumentHat, 2); got != Hit {
		t.Fatalf("hat step 2 = %v, want hit", got)
	}
	if got := p.Get(synth.InstrumentSnare, 4); got != Rest {
		t.Fatalf("missing snare track should read rest, got %v", got)
	}
}

func TestParsePatternErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "# nothing\n",
		"missing colon":  "kick x...",
		"unknown":        "cowbell: x...",
		"bad rune":       "kick: x.o.",
		"ragged":         "kick: x...\nhat: x.",
		"duplicate":      "kick: x...\nkick: ..x.",
		"too many steps": "kick: " + strings.Repeat("x", MaxSteps+1),
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePattern(text); !errors.Is(err, ErrInvalidPattern) {
				t.Fatalf("err = %v, want ErrInvalidPattern", err)
			}
		})
	}
}

func TestPatternStringRoundTrip(t *testing.T) {
	p := DefaultPattern()
	q, err := ParsePattern(p.String())
	if err != nil {
		t.Fatalf("reparse failed: %v\n%s", err, p.String())
	}
	if q.String() != p.String() {
		t.Fatalf("round trip changed pattern:\n%s\nvs\n%s", p, q)
	}
}

func TestPatternToggleCycles(t *testing.T) {
	p, _ := NewPattern(8)
	want := []Step{Hit, Accent, Rest, Hit}
	for i, w := range want {
		got, err := p.Toggle(synth.InstrumentSnare, 3)
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Fatalf("toggle %d = %v, want %v", i, got, w)
		}
	}
	if _, err := p.Toggle(synth.InstrumentSnare, 8); !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("out of range toggle err = %v", err)
	}
	p.Clear()
	if len(p.At(3)) != 0 {
		t.Fatal("Clear left hits behind")
	}
}

func TestPatternAtWraps(t *testing.T) {
	p := DefaultPattern()
	a, b := p.At(4), p.At(4+16)
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("step 4 hits = %v / %v, want snare and hat", a, b)
	}
	if a[0].Instrument != synth.InstrumentSnare || !a[0].Accent {
		t.Fatalf("step 4 first hit = %+v", a[0])
	}
}

func TestSequencerTriggerCommitsHits(t *testing.T) {
	eng := &countingEngine{}
	var stepped []int
	seq := NewWithOptions(DefaultPattern(), synth.New(eng), Options{
		OnStep: func(step int, _ []NoteAt) { stepped = append(stepped, step) },
	})
	got := seq.Trigger(scheduler.Event{Index: 0, Time: 2})
	if len(got) != 2 || len(eng.events) != 2 {
		t.Fatalf("step 0 committed %d events, want kick and hat", len(eng.events))
	}
	for _, ev := range eng.events {
		if ev.Start != 2 {
			t.Fatalf("event starts at %v, want 2", ev.Start)
		}
	}
	if eng.events[0].Params.Instrument != synth.InstrumentKick || !eng.events[0].Params.Accent {
		t.Fatalf("first event = %+v", eng.events[0].Params)
	}
	seq.Trigger(scheduler.Event{Index: 1, Time: 2.125})
	if len(eng.events) != 2 {
		t.Fatal("empty step committed audio")
	}
	if len(stepped) != 2 || stepped[1] != 1 {
		t.Fatalf("OnStep calls = %v", stepped)
	}
}

func TestSequencerMute(t *testing.T) {
	eng := &countingEngine{}
	seq := New(DefaultPattern(), synth.New(eng))
	seq.SetMuted(synth.InstrumentHat, true)
	if !seq.Muted(synth.InstrumentHat) {
		t.Fatal("hat not muted")
	}
	seq.Trigger(scheduler.Event{Index: 0, Time: 0})
	if len(eng.events) != 1 || eng.events[0].Params.Instrument != synth.InstrumentKick {
		t.Fatalf("events with hat muted = %+v", eng.events)
	}
	seq.SetMuted(synth.InstrumentHat, false)
	seq.Trigger(scheduler.Event{Index: 0, Time: 1})
	if len(eng.events) != 3 {
		t.Fatalf("events after unmute = %d, want 3", len(eng.events))
	}
}

func TestSequencerPatternIsCopied(t *testing.T) {
	p := DefaultPattern()
	seq := New(p, synth.New(nil))
	seq.SetPattern(p)
	p.Clear()
	if len(seq.Pattern().At(0)) == 0 {
		t.Fatal("sequencer shares the caller's pattern")
	}
	if _, err := seq.Toggle(synth.InstrumentKick, 0); err != nil {
		t.Fatal(err)
	}
	if got := seq.Pattern().Get(synth.InstrumentKick, 0); got != Rest {
		t.Fatalf("kick step 0 after toggle from accent = %v, want rest", got)
	}
}

func BenchmarkSequencerTrigger(b *testing.B) {
	seq := New(DefaultPattern(), synth.New(nil))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		seq.Trigger(scheduler.Event{Index: i % 16, Time: float64(i) * 0.125})
	}
}
