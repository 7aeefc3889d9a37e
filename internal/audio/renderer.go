package audio

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// Renderer plays a clip to completion. Render blocks until playback ends,
// fails, or ctx is done.
type Renderer interface {
	Render(ctx context.Context, b *Buffer) error
	Name() string
}

// Fallback tries each renderer in order until one succeeds.
type Fallback struct {
	renderers []Renderer
	logger    *log.Logger

	mu       sync.Mutex
	failures map[string]int
}

// NewFallback chains renderers. Renderers that are nil are skipped.
func NewFallback(logger *log.Logger, renderers ...Renderer) *Fallback {
	if logger == nil {
		logger = log.Default()
	}
	f := &Fallback{logger: logger, failures: make(map[string]int)}
	for _, r := range renderers {
		if r != nil {
			f.renderers = append(f.renderers, r)
		}
	}
	return f
}

// Name implements Renderer.
func (f *Fallback) Name() string {
	return "fallback"
}

// Render implements Renderer. When every renderer fails the returned error is
// a *PlaybackError listing each attempt.
func (f *Fallback) Render(ctx context.Context, b *Buffer) error {
	perr := &PlaybackError{}
	for i, r := range f.renderers {
		err := r.Render(ctx, b)
		if err == nil {
			f.recovered(r.Name())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		perr.add(r.Name(), err)
		f.mu.Lock()
		f.failures[r.Name()]++
		n := f.failures[r.Name()]
		f.mu.Unlock()

		if i < len(f.renderers)-1 {
			f.logger.Warn("Renderer failed, trying next", "renderer", r.Name(), "failures", n, "err", err)
		}
	}
	if len(perr.order) == 0 {
		perr.add("none", ErrDeviceUnavailable)
	}
	return perr
}

func (f *Fallback) recovered(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.failures[name]; n > 0 {
		f.logger.Info("Renderer recovered", "renderer", name, "after", n)
		f.failures[name] = 0
	}
}
