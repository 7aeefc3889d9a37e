package tts

import (
	"context"
	"sync"
)

// The process-wide service used by producers that do not carry a *Service.
var (
	defaultMu       sync.Mutex
	defaultService  *Service
	defaultListener StatusListener
)

// Init creates and starts the default service if it does not exist yet. A
// listener registered through SetStatusListener before Init is attached.
func Init(ctx context.Context, settings Settings, opts ...Option) (*Service, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultService != nil {
		return defaultService, nil
	}

	svc, err := New(settings, opts...)
	if err != nil {
		return nil, err
	}
	if defaultListener != nil {
		svc.SetStatusListener(defaultListener)
	}
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	defaultService = svc
	return svc, nil
}

// Default returns the default service, or nil before Init.
func Default() *Service {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultService
}

// UpdateSettings applies settings to the default service, creating it first
// when needed.
func UpdateSettings(ctx context.Context, settings Settings) error {
	if svc := Default(); svc != nil {
		return svc.UpdateSettings(settings)
	}
	_, err := Init(ctx, settings)
	return err
}

// SetStatusListener registers fn on the default service and remembers it for
// a service created later.
func SetStatusListener(fn StatusListener) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	defaultListener = fn
	if defaultService != nil {
		defaultService.SetStatusListener(fn)
	}
}

// Enqueue submits text to the default service. It returns false before Init.
func Enqueue(text string, priority Priority, key string, room int64) bool {
	svc := Default()
	if svc == nil {
		return false
	}
	return svc.Enqueue(text, priority, key, room)
}

// Shutdown closes the default service and forgets it.
func Shutdown() error {
	defaultMu.Lock()
	svc := defaultService
	defaultService = nil
	defaultMu.Unlock()

	if svc == nil {
		return nil
	}
	return svc.Close()
}
