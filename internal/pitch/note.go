package pitch

import "math"

const (
	A4Frequency = 440.0
	A4MIDI      = 69

	// InTuneCents is the widest deviation still reported as in tune.
	InTuneCents = 10.0
)

// Naming selects the pitch-class spelling used by Note.Name.
type Naming int

const (
	NamingEnglish Naming = iota
	NamingSolfege
)

var (
	englishNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	solfegeNames = [12]string{"Do", "Do#", "Re", "Re#", "Mi", "Fa", "Fa#", "Sol", "Sol#", "La", "La#", "Si"}
)

// Note is the nearest equal-tempered pitch to a measured frequency.
type Note struct {
	MIDI      int
	Name      string
	Octave    int
	Frequency float64 // exact frequency of MIDI
	Cents     float64 // deviation of the measured frequency from Frequency
}

func (n Note) InTune() bool {
	return math.Abs(n.Cents) < InTuneCents
}

// FrequencyForMIDI returns the equal-tempered frequency of a MIDI note number.
func FrequencyForMIDI(midi int) float64 {
	return A4Frequency * math.Pow(2, float64(midi-A4MIDI)/12)
}

// NoteForFrequency maps freq to its nearest pitch. ok is false for
// non-positive or non-finite input.
func NoteForFrequency(freq float64, naming Naming) (Note, bool) {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return Note{}, false
	}
	midi := int(math.Round(12*math.Log2(freq/A4Frequency) + A4MIDI))
	exact := FrequencyForMIDI(midi)
	pc := ((midi % 12) + 12) % 12
	return Note{
		MIDI:      midi,
		Name:      PitchClassName(pc, naming),
		Octave:    floorDiv(midi, 12) - 1,
		Frequency: exact,
		Cents:     1200 * math.Log2(freq/exact),
	}, true
}

func PitchClassName(pc int, naming Naming) string {
	pc = ((pc % 12) + 12) % 12
	if naming == NamingSolfege {
		return solfegeNames[pc]
	}
	return englishNames[pc]
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
