// Package midiout mirrors committed audio events to a MIDI output so the
// metronome and drum patterns can drive external gear.
package midiout

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/rehearsal-go/internal/pitch"
	"github.com/cbegin/rehearsal-go/internal/scheduler"
	"github.com/cbegin/rehearsal-go/internal/synth"
)

// General MIDI percussion keys.
const (
	DrumChannel    = 9
	KeyKick        = 36
	KeySideStick   = 37
	KeySnare       = 38
	KeyClosedHat   = 42
	KeyHighWoodBlk = 76
)

// DefaultGate caps how long a note is held, so drum hits read as short notes
// whatever their audio decay.
const DefaultGate = 0.05

type Option func(*Sink)

// WithChannel sets the channel (0-15) used for pitched tones.
func WithChannel(ch uint8) Option {
	return func(s *Sink) { s.channel = ch & 0x0f }
}

// WithGate sets the maximum note length in seconds.
func WithGate(seconds float64) Option {
	return func(s *Sink) {
		if seconds > 0 {
			s.gate = seconds
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

type timedMessage struct {
	at  float64
	seq uint64
	off bool
	msg midi.Message
	key noteKey
}

type noteKey struct {
	channel uint8
	key     uint8
}

// Sink is a synth.Engine that turns events into note-on/note-off pairs and
// sends each at its audio-clock time.
type Sink struct {
	send    func(midi.Message) error
	clock   scheduler.Clock
	channel uint8
	gate    float64
	logger  *slog.Logger

	mu       sync.Mutex
	queue    messageQueue
	seq      uint64
	sounding map[noteKey]int
	sent     uint64
	failed   uint64
	wake     chan struct{}
}

func New(send func(midi.Message) error, clock scheduler.Clock, opts ...Option) *Sink {
	s := &Sink{
		send:     send,
		clock:    clock,
		gate:     DefaultGate,
		sounding: make(map[noteKey]int),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// NoteFor maps an event to a channel, key and velocity.
func NoteFor(ev synth.AudioEvent, toneChannel uint8) (channel, key, velocity uint8) {
	p := ev.Params
	velocity = velocityFor(ev.Envelope.Peak, p.Accent)
	switch p.Instrument {
	case synth.InstrumentClick:
		if p.Accent {
			return DrumChannel, KeyHighWoodBlk, velocity
		}
		return DrumChannel, KeySideStick, velocity
	case synth.InstrumentKick:
		return DrumChannel, KeyKick, velocity
	case synth.InstrumentSnare:
		return DrumChannel, KeySnare, velocity
	case synth.InstrumentHat:
		return DrumChannel, KeyClosedHat, velocity
	}
	n, ok := pitch.NoteForFrequency(p.Frequency, pitch.NamingEnglish)
	if !ok {
		return toneChannel, 69, velocity
	}
	return toneChannel, uint8(min(max(n.MIDI, 0), 127)), velocity
}

func velocityFor(peak float64, accent bool) uint8 {
	v := int(math.Round(peak * 127))
	if accent {
		v += 16
	}
	return uint8(min(max(v, 1), 127))
}

// Commit queues a note for ev. It never blocks on the MIDI port.
func (s *Sink) Commit(ev synth.AudioEvent) {
	ch, key, vel := NoteFor(ev, s.channel)
	length := math.Min(ev.Duration(), s.gate)
	k := noteKey{channel: ch, key: key}

	s.mu.Lock()
	s.push(ev.Start, false, midi.NoteOn(ch, key, vel), k)
	s.push(ev.Start+length, true, midi.NoteOff(ch, key), k)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sink) push(at float64, off bool, msg midi.Message, k noteKey) {
	s.seq++
	heap.Push(&s.queue, &timedMessage{at: at, seq: s.seq, off: off, msg: msg, key: k})
}

// Pending is the number of queued messages.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Sent is the number of messages delivered to the port.
func (s *Sink) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Flush sends every message due at or before now, in time order, and returns
// how many were sent.
func (s *Sink) Flush(now float64) int {
	var due []*timedMessage
	s.mu.Lock()
	for s.queue.Len() > 0 && s.queue[0].at <= now {
		due = append(due, heap.Pop(&s.queue).(*timedMessage))
	}
	s.mu.Unlock()

	n := 0
	for _, m := range due {
		if err := s.send(m.msg); err != nil {
			s.mu.Lock()
			s.failed++
			s.mu.Unlock()
			s.logger.Warn("midi send failed", "msg", m.msg.String(), "err", err)
			continue
		}
		s.mu.Lock()
		s.sent++
		if m.off {
			if s.sounding[m.key]--; s.sounding[m.key] <= 0 {
				delete(s.sounding, m.key)
			}
		} else {
			s.sounding[m.key]++
		}
		s.mu.Unlock()
		n++
	}
	return n
}

// next reports the time of the earliest queued message.
func (s *Sink) next() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return 0, false
	}
	return s.queue[0].at, true
}

// Run delivers messages until ctx is cancelled, sleeping until each one is due
// on the clock. On exit it silences any note still held.
func (s *Sink) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	defer s.AllNotesOff()

	for {
		s.Flush(s.clock.Now())

		wait := time.Hour
		if at, ok := s.next(); ok {
			wait = time.Duration((at - s.clock.Now()) * float64(time.Second))
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// AllNotesOff drops queued messages and releases every sounding note.
func (s *Sink) AllNotesOff() {
	s.mu.Lock()
	s.queue = s.queue[:0]
	held := make([]noteKey, 0, len(s.sounding))
	for k := range s.sounding {
		held = append(held, k)
	}
	s.sounding = make(map[noteKey]int)
	s.mu.Unlock()

	for _, k := range held {
		if err := s.send(midi.NoteOff(k.channel, k.key)); err != nil {
			s.logger.Warn("midi note off failed", "channel", k.channel, "key", k.key, "err", err)
		}
	}
}

// OpenPort finds an output port by name (substring match, as gomidi does) and
// returns a send function and a closer. A MIDI driver must be registered by a
// blank import of one of gomidi's driver packages.
func OpenPort(name string) (send func(midi.Message) error, closer func() error, err error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, nil, fmt.Errorf("midiout: find port %q: %w", name, err)
	}
	send, err = midi.SendTo(out)
	if err != nil {
		return nil, nil, fmt.Errorf("midiout: open port %q: %w", name, err)
	}
	return send, out.Close, nil
}

// OutPorts lists the names of the available output ports.
func OutPorts() []string {
	var names []string
	for _, p := range midi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

// messageQueue orders messages by time; at equal times note-offs go first so
// a retriggered key is released before it sounds again.
type messageQueue []*timedMessage

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	if q[i].off != q[j].off {
		return q[i].off
	}
	return q[i].seq < q[j].seq
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(*timedMessage)) }

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return m
}
