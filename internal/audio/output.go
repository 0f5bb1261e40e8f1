package audio

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

type Backend string

const (
	BackendEbiten  Backend = "ebiten"
	BackendSpeaker Backend = "speaker"
	BackendNull    Backend = "null"
	BackendStdout  Backend = "stdout"
)

var backends = []Backend{BackendEbiten, BackendSpeaker, BackendNull, BackendStdout}

func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Output drives a Mixer's clock by pulling audio from it.
type Output interface {
	Start() error
	Close() error
}

type OutputConfig struct {
	Backend    Backend
	BufferSize time.Duration // device read-ahead, or the write period for writer backends
	Writer     io.Writer     // BackendStdout only; defaults to os.Stdout
}

// Open creates an output for m. The output is not started.
func Open(m *Mixer, cfg OutputConfig) (Output, error) {
	switch cfg.Backend {
	case BackendEbiten, "":
		return NewEbitenOutput(m.SampleRate(), m, cfg.BufferSize)
	case BackendSpeaker:
		return NewSpeakerOutput(m.SampleRate(), m, cfg.BufferSize)
	case BackendNull:
		return NewWriterOutput(m.SampleRate(), m, io.Discard, cfg.BufferSize)
	case BackendStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return NewWriterOutput(m.SampleRate(), m, w, cfg.BufferSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
