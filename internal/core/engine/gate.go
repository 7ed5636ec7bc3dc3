package engine

import (
	"context"
	"runtime"

	"github.com/zeusync/framesync/internal/core/arena"
	"github.com/zeusync/framesync/internal/core/command"
)

// pageFree reports whether the page the next BeginFrame resets is no longer
// referenced. Frame n reuses the page of frame n-arena.Depth, which is safe
// once the render side has dispatched the end of frame n-arena.Depth+1: from
// then on it only presents that frame or a later one.
func (e *Engine) pageFree() bool {
	return e.framesBegun.Load()-e.framesDone.Load() < arena.Depth-1
}

// awaitPage spins, then parks until pageFree or ctx ends.
func (e *Engine) awaitPage(ctx context.Context) error {
	if e.pageFree() {
		return nil
	}
	e.pageWaits.Add(1)
	for i := 0; i < command.DefaultSpins; i++ {
		runtime.Gosched()
		if e.pageFree() {
			return nil
		}
	}
	for {
		e.gateWaiting.Store(true)
		if e.pageFree() {
			e.gateWaiting.Store(false)
			return nil
		}
		select {
		case <-e.frameDone:
		case <-ctx.Done():
			e.gateWaiting.Store(false)
			return ctx.Err()
		}
		e.gateWaiting.Store(false)
		if e.pageFree() {
			return nil
		}
	}
}

// frameDispatched runs on the render goroutine after a frame's end boundary.
func (e *Engine) frameDispatched() {
	e.framesDone.Add(1)
	if e.gateWaiting.Load() {
		select {
		case e.frameDone <- struct{}{}:
		default:
		}
	}
}

// FramesAhead is how many frames logic has begun that the render side has
// not finished dispatching.
func (e *Engine) FramesAhead() uint64 {
	done := e.framesDone.Load()
	return e.framesBegun.Load() - done
}
