package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/rehearsal-go"
	intaudio "github.com/cbegin/rehearsal-go/internal/audio"
	"github.com/cbegin/rehearsal-go/internal/config"
	"github.com/cbegin/rehearsal-go/internal/logging"
	"github.com/cbegin/rehearsal-go/internal/midiout"
	"github.com/cbegin/rehearsal-go/internal/sequencer"
)

func main() {
	cfg, err := config.LoadEnv()
	if err != nil {
		log.Fatal(err)
	}
	var (
		tempo       = flag.Float64("tempo", cfg.Tempo, "tempo in beats per minute (20-400)")
		patternPath = flag.String("file", "", "pattern file, one \"instrument: x...X...\" row per line")
		inline      = flag.String("pattern", "", "inline pattern; rows separated by ';'")
		bars        = flag.Int("bars", 0, "stop after N passes of the pattern (0 = until interrupted)")
		render      = flag.Float64("render", 0, "render N seconds of raw s16le stereo PCM to stdout without a device")
		backend     = flag.String("backend", cfg.Backend, "audio backend: ebiten|speaker|null|stdout")
		volume      = flag.Int("volume", cfg.MasterVolume, "master volume 0-100")
		midiPort    = flag.String("midi", cfg.MIDIPort, "also send hits to this MIDI output port")
		listMIDI    = flag.Bool("list-midi", false, "list MIDI output ports and exit")
		logLevel    = flag.String("log-level", cfg.LogLevel, "debug|info|warn|error")
	)
	flag.Parse()

	if *listMIDI {
		for _, name := range midiout.OutPorts() {
			fmt.Println(name)
		}
		return
	}

	cfg.Tempo, cfg.Backend, cfg.MasterVolume = *tempo, *backend, *volume
	cfg.MIDIPort, cfg.LogLevel = *midiPort, *logLevel
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.Init(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	pattern, err := resolvePattern(*patternPath, *inline)
	if err != nil {
		log.Fatal(err)
	}

	if *render > 0 {
		samples, err := rehearsal.RenderPattern(pattern, cfg.Tempo, cfg.SampleRate, *render)
		if err != nil {
			log.Fatal(err)
		}
		if err := rehearsal.WriteS16LE(os.Stdout, samples); err != nil {
			log.Fatal(err)
		}
		return
	}

	// Progress goes to stderr so it never mixes with PCM on stdout.
	out := os.Stdout
	if intaudio.Backend(cfg.Backend) == intaudio.BackendStdout {
		out = os.Stderr
	}
	fmt.Fprint(out, pattern.String())

	opts, err := rehearsal.ConfigOptions(cfg)
	if err != nil {
		log.Fatal(err)
	}
	engine, err := rehearsal.NewEngine(append(opts, rehearsal.WithLogger(logger))...)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	steps := pattern.Steps()
	first, _, _ := strings.Cut(pattern.String(), "\n")
	indent := strings.Repeat(" ", len(first)-steps)
	passes := 0
	seq, err := rehearsal.NewStepSequencer(engine, append(rehearsal.ToolOptions(cfg),
		rehearsal.WithPattern(pattern),
		rehearsal.WithOnBeat(func(b rehearsal.Beat) {
			fmt.Fprintf(out, "\r%s%s", indent, cursor(b.Index, steps))
			if b.Index == steps-1 {
				passes++
				if *bars > 0 && passes >= *bars {
					stop()
				}
			}
		}),
	)...)
	if err != nil {
		log.Fatal(err)
	}
	if err := seq.Start(); err != nil {
		log.Fatal(err)
	}
	logger.Info("playing", "tempo", cfg.Tempo, "steps", steps, "backend", cfg.Backend)

	<-ctx.Done()
	seq.Stop()
	fmt.Fprintln(out)
	stats := engine.Stats()
	logger.Info("stopped", "played", stats.Played, "late", stats.Late, "dropped", stats.Dropped)
}

func resolvePattern(path, inline string) (*sequencer.Pattern, error) {
	if strings.TrimSpace(inline) != "" {
		return sequencer.ParsePattern(strings.ReplaceAll(inline, ";", "\n"))
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return sequencer.ParsePattern(string(data))
	}
	return sequencer.DefaultPattern(), nil
}

func cursor(step, steps int) string {
	var b strings.Builder
	for i := 0; i < steps; i++ {
		switch {
		case i == step:
			b.WriteByte('^')
		case i%4 == 0:
			b.WriteByte('|')
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
