package synth

import "sync"

// MultiEngine commits every event to each registered engine in the order
// they were added. It lets one scheduler drive audio and MIDI together.
type MultiEngine struct {
	mu      sync.Mutex
	engines []Engine
}

func NewMultiEngine(engines ...Engine) *MultiEngine {
	m := &MultiEngine{}
	for _, e := range engines {
		m.AddEngine(e)
	}
	return m
}

// AddEngine registers e. Nil engines are ignored.
func (m *MultiEngine) AddEngine(e Engine) {
	if e == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines = append(m.engines, e)
}

// AllEngines returns a snapshot of the registered engines.
func (m *MultiEngine) AllEngines() []Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Engine, len(m.engines))
	copy(out, m.engines)
	return out
}

func (m *MultiEngine) Commit(ev AudioEvent) {
	for _, e := range m.AllEngines() {
		e.Commit(ev)
	}
}
