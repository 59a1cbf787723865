// Package service starts and stops a group of long running parts.
package service

import (
	"context"
	"errors"
	"fmt"
)

// Service defines a service that can be run.
// Run should not block.
type Service interface {
	Run() error
	Shutdown(ctx context.Context) error
}

// Group is a container for managing a bunch of services.
type Group struct {
	list    []Service
	started int
}

func (g *Group) Add(services ...Service) { g.list = append(g.list, services...) }

// Start starts each service in the group, the first error stops it.
func (g *Group) Start() error {
	for _, s := range g.list[g.started:] {
		if err := s.Run(); err != nil {
			return fmt.Errorf("failed to start [%s]: %w", s, err)
		}
		g.started++
	}
	return nil
}

// Shutdown terminates the started services in reverse order.
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for i := g.started - 1; i >= 0; i-- {
		s := g.list[i]
		if err := s.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("failed to stop [%s]: %w", s, err))
		}
	}
	g.started = 0
	return errors.Join(errs...)
}

// Func runs a blocking function in background until Shutdown.
type Func struct {
	name   string
	fn     func(ctx context.Context)
	cancel context.CancelFunc
	done   chan struct{}
}

func NewFunc(name string, fn func(ctx context.Context)) *Func { return &Func{name: name, fn: fn} }

func (f *Func) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel, f.done = cancel, make(chan struct{})
	go func() {
		defer close(f.done)
		f.fn(ctx)
	}()
	return nil
}

// Shutdown cancels the function and waits for it no longer than ctx.
func (f *Func) Shutdown(ctx context.Context) error {
	if f.cancel == nil {
		return nil
	}
	f.cancel()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Func) String() string { return f.name }
