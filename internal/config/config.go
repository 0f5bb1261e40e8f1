// Package config loads the shared settings for the rehearsal tools.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

const EnvPrefix = "REHEARSAL_"

// Config is stored as JSON at ConfigPath. Zero values in the file fall back
// to DefaultConfig.
type Config struct {
	SampleRate   int     `json:"sampleRate"`
	Backend      string  `json:"backend"`
	BufferMs     int     `json:"bufferMs"`
	MasterVolume int     `json:"masterVolume"` // percent, 0-100
	Tempo        float64 `json:"tempo"`
	BeatsPerBar  int     `json:"beatsPerBar"`
	LookaheadMs  int     `json:"lookaheadMs"`
	MIDIPort     string  `json:"midiPort,omitempty"`
	LogLevel     string  `json:"logLevel"`
	Naming       string  `json:"naming"` // english or solfege
}

func DefaultConfig() *Config {
	return &Config{
		SampleRate:   44100,
		Backend:      "ebiten",
		BufferMs:     50,
		MasterVolume: 80,
		Tempo:        120,
		BeatsPerBar:  4,
		LookaheadMs:  100,
		LogLevel:     "info",
		Naming:       "english",
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rehearsal"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	cfg.merge(&file)
	return cfg, nil
}

func (c *Config) merge(o *Config) {
	if o.SampleRate != 0 {
		c.SampleRate = o.SampleRate
	}
	if o.Backend != "" {
		c.Backend = o.Backend
	}
	if o.BufferMs != 0 {
		c.BufferMs = o.BufferMs
	}
	if o.MasterVolume != 0 {
		c.MasterVolume = o.MasterVolume
	}
	if o.Tempo != 0 {
		c.Tempo = o.Tempo
	}
	if o.BeatsPerBar != 0 {
		c.BeatsPerBar = o.BeatsPerBar
	}
	if o.LookaheadMs != 0 {
		c.LookaheadMs = o.LookaheadMs
	}
	if o.MIDIPort != "" {
		c.MIDIPort = o.MIDIPort
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Naming != "" {
		c.Naming = o.Naming
	}
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// ApplyEnv overrides fields from REHEARSAL_* variables found by lookup
// (usually os.LookupEnv). Unparseable numbers are reported and leave the field
// unchanged.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, key, v))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, key, v))
				return
			}
			*dst = f
		}
	}
	num("SAMPLE_RATE", &c.SampleRate)
	str("BACKEND", &c.Backend)
	num("BUFFER_MS", &c.BufferMs)
	num("MASTER_VOLUME", &c.MasterVolume)
	float("TEMPO", &c.Tempo)
	num("BEATS_PER_BAR", &c.BeatsPerBar)
	num("LOOKAHEAD_MS", &c.LookaheadMs)
	str("MIDI_PORT", &c.MIDIPort)
	str("LOG_LEVEL", &c.LogLevel)
	str("NAMING", &c.Naming)
	return errors.Join(errs...)
}

// Validate checks ranges that do not depend on other packages. Tempo bounds
// are enforced by the scheduler when the value is applied.
func (c *Config) Validate() error {
	var errs []error
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate))
	}
	if c.BufferMs < 0 {
		errs = append(errs, fmt.Errorf("%w: buffer %d ms", ErrInvalidConfig, c.BufferMs))
	}
	if c.MasterVolume < 0 || c.MasterVolume > 100 {
		errs = append(errs, fmt.Errorf("%w: master volume %d (want 0-100)", ErrInvalidConfig, c.MasterVolume))
	}
	if c.BeatsPerBar < 1 || c.BeatsPerBar > 16 {
		errs = append(errs, fmt.Errorf("%w: beats per bar %d (want 1-16)", ErrInvalidConfig, c.BeatsPerBar))
	}
	if c.LookaheadMs < 10 || c.LookaheadMs > 1000 {
		errs = append(errs, fmt.Errorf("%w: lookahead %d ms (want 10-1000)", ErrInvalidConfig, c.LookaheadMs))
	}
	switch strings.ToLower(c.Naming) {
	case "english", "solfege":
	default:
		errs = append(errs, fmt.Errorf("%w: naming %q", ErrInvalidConfig, c.Naming))
	}
	return errors.Join(errs...)
}

// Volume is MasterVolume as a linear gain.
func (c *Config) Volume() float64 {
	return float64(c.MasterVolume) / 100
}

// LoadEnv loads the config file and applies the process environment on top.
func LoadEnv() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Solfege reports whether Naming selects solfège spelling.
func (c *Config) Solfege() bool {
	return strings.EqualFold(c.Naming, "solfege")
}
