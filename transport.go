package rehearsal

import (
	"context"
	"sync"

	intsched "github.com/cbegin/rehearsal-go/internal/scheduler"
)

// transport runs a scheduler against the engine clock on its own goroutine.
type transport struct {
	engine *Engine
	sched  *intsched.Scheduler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newTransport(e *Engine, opts ...intsched.Option) (*transport, error) {
	opts = append([]intsched.Option{intsched.WithLogger(e.logger)}, opts...)
	s, err := intsched.New(opts...)
	if err != nil {
		return nil, err
	}
	return &transport{engine: e, sched: s}, nil
}

func schedOptions(c toolConfig) []intsched.Option {
	opts := []intsched.Option{intsched.WithTempo(c.tempo)}
	if c.lookahead > 0 {
		opts = append(opts, intsched.WithLookahead(c.lookahead))
	}
	return opts
}

// start begins emission at the current audio time. A running transport is
// left alone.
func (t *transport) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return nil
	}
	if err := t.engine.Start(); err != nil {
		return err
	}
	t.sched.Start(t.engine.Now())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel, t.done = cancel, done
	runner := intsched.NewRunner(t.sched, t.engine.mixer)
	go func() {
		defer close(done)
		_ = runner.Run(ctx)
	}()
	return nil
}

// stop halts emission at once; sounds already committed play out.
func (t *transport) stop() {
	t.sched.Stop()
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *transport) running() bool { return t.sched.Running() }
