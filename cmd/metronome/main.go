package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/rehearsal-go"
	intaudio "github.com/cbegin/rehearsal-go/internal/audio"
	"github.com/cbegin/rehearsal-go/internal/config"
	"github.com/cbegin/rehearsal-go/internal/logging"
	"github.com/cbegin/rehearsal-go/internal/midiout"
)

func main() {
	cfg, err := config.LoadEnv()
	if err != nil {
		log.Fatal(err)
	}
	var (
		tempo       = flag.Float64("tempo", cfg.Tempo, "tempo in beats per minute (20-400)")
		beatsPerBar = flag.Int("beats", cfg.BeatsPerBar, "beats per bar; the first is accented")
		backend     = flag.String("backend", cfg.Backend, "audio backend: ebiten|speaker|null|stdout")
		volume      = flag.Int("volume", cfg.MasterVolume, "master volume 0-100")
		midiPort    = flag.String("midi", cfg.MIDIPort, "also send clicks to this MIDI output port")
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

	cfg.Tempo, cfg.BeatsPerBar, cfg.Backend = *tempo, *beatsPerBar, *backend
	cfg.MasterVolume, cfg.MIDIPort, cfg.LogLevel = *volume, *midiPort, *logLevel
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if intaudio.Backend(cfg.Backend) == intaudio.BackendStdout {
		log.Fatal("the stdout backend would write over the terminal UI")
	}

	// The TUI owns the terminal; logs go to a file when one is asked for.
	logOut := os.Stderr
	if path := os.Getenv("REHEARSAL_LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := logging.Init(cfg.LogLevel, logOut)
	if err != nil {
		log.Fatal(err)
	}

	opts, err := rehearsal.ConfigOptions(cfg)
	if err != nil {
		log.Fatal(err)
	}
	engine, err := rehearsal.NewEngine(append(opts, rehearsal.WithLogger(logger))...)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	beats := make(chan rehearsal.Beat, 16)
	met, err := rehearsal.NewMetronome(engine, append(rehearsal.ToolOptions(cfg),
		rehearsal.WithOnBeat(func(b rehearsal.Beat) {
			select {
			case beats <- b:
			default:
			}
		}),
	)...)
	if err != nil {
		log.Fatal(err)
	}
	defer met.Stop()

	p := tea.NewProgram(newModel(met, engine, beats), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
