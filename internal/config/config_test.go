package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Tempo = 96
	cfg.Backend = "speaker"
	cfg.MIDIPort = "IAC"
	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if *got != *cfg {
		t.Fatalf("got %+v, want %+v", got, cfg)
	}
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"tempo": 72, "naming": "solfege"}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Tempo != 72 || cfg.Naming != "solfege" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.SampleRate != 44100 || cfg.BeatsPerBar != 4 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadFileRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"tempo": "fast"`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"REHEARSAL_TEMPO":         "140.5",
		"REHEARSAL_BACKEND":       " null ",
		"REHEARSAL_BEATS_PER_BAR": "3",
		"REHEARSAL_LOOKAHEAD_MS":  "soon",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(lookup)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig for bad lookahead", err)
	}
	if cfg.Tempo != 140.5 || cfg.Backend != "null" || cfg.BeatsPerBar != 3 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.LookaheadMs != 100 {
		t.Fatalf("bad value overwrote lookahead: %d", cfg.LookaheadMs)
	}
}

func TestValidate(t *testing.T) {
	mutations := map[string]func(*Config){
		"sample rate": func(c *Config) { c.SampleRate = 100 },
		"volume":      func(c *Config) { c.MasterVolume = 101 },
		"beats":       func(c *Config) { c.BeatsPerBar = 0 },
		"lookahead":   func(c *Config) { c.LookaheadMs = 5 },
		"naming":      func(c *Config) { c.Naming = "german" },
		"buffer":      func(c *Config) { c.BufferMs = -1 },
	}
	for name, mutate := range mutations {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestVolume(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MasterVolume = 50
	if cfg.Volume() != 0.5 {
		t.Fatalf("volume = %v", cfg.Volume())
	}
}
