package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/cbegin/rehearsal-go"
	"github.com/cbegin/rehearsal-go/internal/config"
	"github.com/cbegin/rehearsal-go/internal/logging"
	"github.com/cbegin/rehearsal-go/internal/pitch"
)

func main() {
	cfg, err := config.LoadEnv()
	if err != nil {
		log.Fatal(err)
	}
	var (
		sampleRate = flag.Int("rate", cfg.SampleRate, "capture sample rate")
		block      = flag.Int("block", 4096, "samples per analysis frame")
		naming     = flag.String("naming", cfg.Naming, "note names: english|solfege")
		ref        = flag.Int("ref", -1, "play this MIDI note as a reference tone and exit")
		chord      = flag.String("chord", "", "play a triad on -ref and exit: major|minor|dim")
		scale      = flag.Bool("scale", false, "play the major scale from -ref and exit")
		backend    = flag.String("backend", cfg.Backend, "audio backend for reference tones")
		logLevel   = flag.String("log-level", cfg.LogLevel, "debug|info|warn|error")
	)
	flag.Parse()

	cfg.SampleRate, cfg.Naming, cfg.Backend, cfg.LogLevel = *sampleRate, *naming, *backend, *logLevel
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.Init(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}
	names := pitch.NamingEnglish
	if cfg.Solfege() {
		names = pitch.NamingSolfege
	}

	if *ref >= 0 {
		if err := playReference(cfg, logger, *ref, *chord, *scale); err != nil {
			log.Fatal(err)
		}
		return
	}
	if *block <= 0 {
		log.Fatalf("invalid -block %d", *block)
	}

	tuner := rehearsal.NewTuner(nil, rehearsal.WithNaming(names))
	if err := listen(tuner, bufio.NewReader(os.Stdin), *block, cfg.SampleRate, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// listen reads float32 little-endian mono frames from r until EOF and prints
// one reading per frame.
func listen(tuner *rehearsal.Tuner, r io.Reader, block, sampleRate int, w io.Writer) error {
	raw := make([]byte, block*4)
	samples := make([]float32, block)
	for {
		if _, err := io.ReadFull(r, raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		fmt.Fprintln(w, format(tuner.Process(samples, sampleRate)))
	}
}

func format(r rehearsal.Reading) string {
	if !r.HasNote {
		return fmt.Sprintf("--      (%s, rms %.4f)", r.Estimate.Status, r.Estimate.RMS)
	}
	mark := " "
	if r.Note.InTune() {
		mark = "*"
	}
	return fmt.Sprintf("%-4s%d %s %+6.1f cents  %8.2f Hz", r.Note.Name, r.Note.Octave, mark, r.Note.Cents, r.Estimate.Frequency)
}

func playReference(cfg *config.Config, logger *slog.Logger, midi int, chord string, scale bool) error {
	opts, err := rehearsal.ConfigOptions(cfg)
	if err != nil {
		return err
	}
	engine, err := rehearsal.NewEngine(append(opts, rehearsal.WithLogger(logger))...)
	if err != nil {
		return err
	}
	defer engine.Close()
	tuner := rehearsal.NewTuner(engine)

	length := rehearsal.DefaultReferenceDuration
	switch {
	case scale:
		_, err = tuner.PlayScale(midi, 0.5)
		length = 8 * 0.5
	case chord != "":
		var q rehearsal.ChordQuality
		switch strings.ToLower(chord) {
		case "major", "maj":
			q = rehearsal.Major
		case "minor", "min", "m":
			q = rehearsal.Minor
		case "dim", "diminished":
			q = rehearsal.Diminished
		default:
			return fmt.Errorf("invalid -chord %q (expected major|minor|dim)", chord)
		}
		_, err = tuner.PlayChord(midi, q, length)
	default:
		_, err = tuner.PlayReference(midi, length)
	}
	if err != nil {
		return err
	}
	logger.Info("reference", "midi", midi, "hz", pitch.FrequencyForMIDI(midi))
	// Let the device drain before closing it.
	time.Sleep(time.Duration((length + 0.25) * float64(time.Second)))
	return nil
}
