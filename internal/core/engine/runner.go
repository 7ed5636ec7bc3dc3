package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/framesync/internal/core/clock"
	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/observability/log"
)

// LogicFunc advances the simulation by one tick, submitting its state
// through p. Returning an error stops the engine.
type LogicFunc func(ctx context.Context, p *Producer, tick uint64) error

// Run starts the clock, logic, render and loader goroutines and blocks until
// ctx ends, Quit is called, or one of them fails. In-flight commands are not
// drained on the way out. An engine runs once: its clock and quit flag do
// not reset, so a later Run returns ErrFinished.
func (e *Engine) Run(ctx context.Context, logic LogicFunc) error {
	if e.backend == nil {
		return ErrNoBackend
	}
	if e.finished.Load() {
		return ErrFinished
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		e.finished.Store(true)
		e.running.Store(false)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancel.Store(&cancel)
	defer e.cancel.Store(nil)
	if e.Quitting() {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	e.producer.ctx = ctx

	if e.loader != nil {
		e.workers.Store(true)
		defer e.workers.Store(false)
		for i := 0; i < e.cfg.LoaderWorkers; i++ {
			e.spawn(g, "loader", func() error { return e.loaderWorker(ctx) })
		}
	}
	e.spawn(g, "clock", func() error { return e.Clock.Run(ctx) })
	e.spawn(g, "logic", func() error { return e.logicLoop(ctx, logic) })
	e.spawn(g, "render", func() error { return e.renderLoop(ctx) })

	e.log.Info("engine started",
		log.Float64("logic_hz", e.cfg.LogicHz),
		log.Float64("render_hz", e.RenderHz()),
		log.Int("loader_workers", e.cfg.LoaderWorkers),
	)
	err := g.Wait()
	e.log.Info("engine stopped", log.Uint64("ticks", e.logicTicks.Load()), log.Uint64("presents", e.Store.Presents()))
	return err
}

// Stop raises the quit flag and wakes every goroutine of a running engine.
func (e *Engine) Stop() {
	e.Quit()
	if c := e.cancel.Load(); c != nil {
		(*c)()
	}
}

func (e *Engine) logicLoop(ctx context.Context, logic LogicFunc) error {
	for !e.Quitting() {
		tick, err := e.Clock.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, clock.ErrStopped) {
				return nil
			}
			return fmt.Errorf("wait for tick: %w", err)
		}

		err = e.Step(ctx, tick, logic)
		e.Clock.Ack()
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return fmt.Errorf("logic tick %d: %w", tick, err)
		}
	}
	e.Stop()
	return nil
}

// Step runs logic for one tick between frame boundaries on the calling
// goroutine. Run drives it from the clock; tests may call it directly, but
// must Drain at least every arena.Depth-1 steps or Step waits on ctx.
func (e *Engine) Step(ctx context.Context, tick uint64, logic LogicFunc) error {
	p := e.producer
	if err := p.begin(ctx, command.MetaStartFrame); err != nil {
		return err
	}
	err := logic(ctx, p, tick)
	p.EndFrame()
	e.logicTicks.Add(1)
	return err
}

func (e *Engine) renderLoop(ctx context.Context) error {
	timer := time.NewTimer(e.renderPeriod())
	defer timer.Stop()

	for !e.Quitting() {
		e.Drain(ctx)
		if _, err := e.Present(); err != nil {
			return fmt.Errorf("present: %w", err)
		}

		timer.Reset(e.renderPeriod())
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
	e.Stop()
	return nil
}

// RenderHz is the current presentation rate; zero means uncapped.
func (e *Engine) RenderHz() float64 {
	return math.Float64frombits(e.renderHz.Load())
}

func (e *Engine) setRenderHz(hz float64) {
	e.renderHz.Store(math.Float64bits(hz))
}

// renderPeriod falls back to the clock resolution when uncapped so the
// render goroutine still yields between passes.
func (e *Engine) renderPeriod() time.Duration {
	hz := e.RenderHz()
	if hz <= 0 {
		if e.cfg.ClockResolution > 0 {
			return e.cfg.ClockResolution
		}
		return clock.DefaultResolution
	}
	return time.Duration(float64(time.Second) / hz)
}

// spawn runs fn in g, turning a panic into ErrFatal after reporting it.
func (e *Engine) spawn(g *errgroup.Group, name string, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				e.fatal(name, r)
				err = fmt.Errorf("%w: %s: %v", ErrFatal, name, r)
			}
		}()
		return fn()
	})
}

// Go runs fn on a new goroutine with the engine's crash handling.
func (e *Engine) Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.fatal(name, r)
			}
		}()
		fn()
	}()
}

func (e *Engine) fatal(name string, reason any) {
	e.log.Error("goroutine panicked",
		log.String("goroutine", name),
		log.Any("reason", reason),
		log.String("stack", string(debug.Stack())),
	)
	e.Stop()
	e.onFatal(reason)
}
