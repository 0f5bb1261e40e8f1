package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cbegin/rehearsal-go/internal/sequencer"
	"github.com/cbegin/rehearsal-go/internal/synth"
)

func TestResolvePattern(t *testing.T) {
	p, err := resolvePattern("", "kick: x...;hat: ..x.")
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if p.Steps() != 4 || p.Get(synth.InstrumentHat, 2) != sequencer.Hit {
		t.Fatalf("inline pattern = %q", p.String())
	}

	path := filepath.Join(t.TempDir(), "beat.txt")
	if err := os.WriteFile(path, []byte("# half time\nsnare: ....X...\n"), 0644); err != nil {
		t.Fatal(err)
	}
	p, err = resolvePattern(path, "")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if p.Get(synth.InstrumentSnare, 4) != sequencer.Accent {
		t.Fatalf("file pattern = %q", p.String())
	}

	p, err = resolvePattern("", "")
	if err != nil || p.Steps() != sequencer.DefaultSteps {
		t.Fatalf("default pattern: %v", err)
	}

	if _, err := resolvePattern("", "kick: x?x"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCursor(t *testing.T) {
	if got := cursor(5, 8); got != "|   |^  " {
		t.Fatalf("cursor = %q", got)
	}
	if got := cursor(0, 4); got != "^   " {
		t.Fatalf("cursor = %q", got)
	}
}
