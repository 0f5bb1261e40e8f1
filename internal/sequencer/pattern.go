package sequencer

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/cbegin/rehearsal-go/internal/synth"
)

var ErrInvalidPattern = errors.New("sequencer: invalid pattern")

const (
	DefaultSteps = 16
	MaxSteps     = 64
)

// Step is the state of one cell in a track.
type Step uint8

const (
	Rest Step = iota
	Hit
	Accent
)

func (s Step) rune() rune {
	switch s {
	case Hit:
		return 'x'
	case Accent:
		return 'X'
	default:
		return '.'
	}
}

// Track is one instrument's row of steps.
type Track struct {
	Instrument synth.Instrument
	Steps      []Step
}

// Pattern is a grid of tracks sharing one step count.
type Pattern struct {
	steps  int
	tracks []Track
}

func NewPattern(steps int) (*Pattern, error) {
	if steps <= 0 || steps > MaxSteps {
		return nil, fmt.Errorf("%w: %d steps (want 1-%d)", ErrInvalidPattern, steps, MaxSteps)
	}
	return &Pattern{steps: steps}, nil
}

// DefaultPattern is a basic rock beat: kick on 1 and 3 with a pickup, snare on
// 2 and 4, eighth-note hats.
func DefaultPattern() *Pattern {
	p, _ := ParsePattern(`
kick:  X.......x.x.....
snare: ....X.......X...
hat:   x.x.x.x.x.x.x.x.
`)
	return p
}

func (p *Pattern) Steps() int { return p.steps }

// Tracks returns a copy of the tracks in display order.
func (p *Pattern) Tracks() []Track {
	out := make([]Track, len(p.tracks))
	for i, t := range p.tracks {
		out[i] = Track{Instrument: t.Instrument, Steps: append([]Step(nil), t.Steps...)}
	}
	return out
}

func (p *Pattern) Clone() *Pattern {
	return &Pattern{steps: p.steps, tracks: p.Tracks()}
}

func (p *Pattern) track(instr synth.Instrument) *Track {
	for i := range p.tracks {
		if p.tracks[i].Instrument == instr {
			return &p.tracks[i]
		}
	}
	p.tracks = append(p.tracks, Track{Instrument: instr, Steps: make([]Step, p.steps)})
	return &p.tracks[len(p.tracks)-1]
}

// Set writes one cell, adding the instrument's track if it has none.
func (p *Pattern) Set(instr synth.Instrument, step int, s Step) error {
	if step < 0 || step >= p.steps {
		return fmt.Errorf("%w: step %d out of range 0-%d", ErrInvalidPattern, step, p.steps-1)
	}
	if s > Accent {
		return fmt.Errorf("%w: step value %d", ErrInvalidPattern, s)
	}
	p.track(instr).Steps[step] = s
	return nil
}

// Get reads one cell. Missing tracks and out-of-range steps read as Rest.
func (p *Pattern) Get(instr synth.Instrument, step int) Step {
	if step < 0 || step >= p.steps {
		return Rest
	}
	for _, t := range p.tracks {
		if t.Instrument == instr {
			return t.Steps[step]
		}
	}
	return Rest
}

// Toggle cycles a cell through rest, hit and accent.
func (p *Pattern) Toggle(instr synth.Instrument, step int) (Step, error) {
	next := (p.Get(instr, step) + 1) % (Accent + 1)
	if err := p.Set(instr, step, next); err != nil {
		return Rest, err
	}
	return next, nil
}

// Clear sets every cell to Rest and keeps the tracks.
func (p *Pattern) Clear() {
	for i := range p.tracks {
		clear(p.tracks[i].Steps)
	}
}

// NoteAt is one instrument sounding on a step.
type NoteAt struct {
	Instrument synth.Instrument
	Accent     bool
}

// At lists what sounds on step, in track order. step wraps.
func (p *Pattern) At(step int) []NoteAt {
	step = ((step % p.steps) + p.steps) % p.steps
	var out []NoteAt
	for _, t := range p.tracks {
		if s := t.Steps[step]; s != Rest {
			out = append(out, NoteAt{Instrument: t.Instrument, Accent: s == Accent})
		}
	}
	return out
}

// String renders the pattern in the text form ParsePattern reads.
func (p *Pattern) String() string {
	var b strings.Builder
	width := 0
	for _, t := range p.tracks {
		width = max(width, len(t.Instrument.String()))
	}
	for _, t := range p.tracks {
		name := t.Instrument.String() + ":"
		fmt.Fprintf(&b, "%-*s ", width+1, name)
		for _, s := range t.Steps {
			b.WriteRune(s.rune())
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ParsePattern reads one track per line in the form "kick: x...X...".
// 'x' is a hit, 'X' an accented hit, '.' or '-' a rest. Spaces and '|' inside
// a row are ignored, blank lines and lines starting with '#' are skipped.
// Every row must have the same number of steps.
func ParsePattern(text string) (*Pattern, error) {
	var p *Pattern
	seen := map[synth.Instrument]bool{}
	sc := bufio.NewScanner(strings.NewReader(text))
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		name, row, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing ':'", ErrInvalidPattern, line)
		}
		instr, err := synth.ParseInstrument(name)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidPattern, line, err)
		}
		if seen[instr] {
			return nil, fmt.Errorf("%w: line %d: duplicate track %s", ErrInvalidPattern, line, instr)
		}
		seen[instr] = true

		var steps []Step
		for i, r := range row {
			switch r {
			case 'x':
				steps = append(steps, Hit)
			case 'X':
				steps = append(steps, Accent)
			case '.', '-':
				steps = append(steps, Rest)
			case ' ', '\t', '|':
			default:
				return nil, fmt.Errorf("%w: line %d: unexpected %q at column %d", ErrInvalidPattern, line, r, len(name)+2+i)
			}
		}
		if p == nil {
			if p, err = NewPattern(len(steps)); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		} else if len(steps) != p.steps {
			return nil, fmt.Errorf("%w: line %d: %d steps, want %d", ErrInvalidPattern, line, len(steps), p.steps)
		}
		p.tracks = append(p.tracks, Track{Instrument: instr, Steps: steps})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no tracks", ErrInvalidPattern)
	}
	return p, nil
}
