package engine

import (
	"context"
	"strings"

	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/draw"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/core/resource"
)

// Drain pops every command currently on the bus and routes it. It must run
// on the render goroutine, the bus's only consumer.
func (e *Engine) Drain(ctx context.Context) int {
	e.collectLoads()
	n := e.Bus.Drain(func(cmd *command.Command) {
		e.dispatch(ctx, cmd)
	})
	e.dispatched.Add(uint64(n))
	return n
}

func (e *Engine) dispatch(ctx context.Context, cmd *command.Command) {
	switch cmd.Kind {
	case command.KindMeta:
		e.dispatchMeta(cmd)
	case command.KindDraw:
		e.Store.Append(&cmd.Draw)
	case command.KindResourceLoad:
		e.notify(cmd)
		e.enqueueLoad(ctx, detach(cmd.Load))
	case command.KindResourceFree:
		e.notify(cmd)
		if err := e.Table.Release(cmd.Free.Handle); err != nil {
			e.log.Debug("free ignored", log.Handle("handle", uint64(cmd.Free.Handle)), log.Error(err))
		}
	case command.KindWindowUpdate:
		w := cmd.Window
		w.Title = strings.Clone(w.Title)
		e.window.Store(&w)
		if w.RenderHz > 0 {
			e.setRenderHz(w.RenderHz)
		}
		detached := *cmd
		detached.Window = w
		e.notify(&detached)
	case command.KindAudioUpdate:
		e.notify(cmd)
	default:
		e.log.Warn("unknown command kind", log.Uint32("kind", uint32(cmd.Kind)))
	}
}

func (e *Engine) dispatchMeta(cmd *command.Command) {
	switch cmd.Meta {
	case command.MetaStartFrame:
		e.Store.StartFrame()
	case command.MetaStartSingleFrame:
		e.Store.StartSingleFrame()
	case command.MetaEndFrame:
		e.Store.EndFrame()
	case command.MetaEndSingleFrame:
		e.Store.EndSingleFrame()
	}
	e.notify(cmd)
	if cmd.Meta == command.MetaEndFrame || cmd.Meta == command.MetaEndSingleFrame {
		e.frameDispatched()
	}
}

// notify forwards cmd to the backend and every subsystem, in registration order.
func (e *Engine) notify(cmd *command.Command) {
	if e.backend != nil {
		e.backend.ProcessCommand(cmd.Kind, cmd)
	}
	for _, s := range e.subsystems {
		s.ProcessCommand(cmd.Kind, cmd)
	}
}

// Present draws the last completed frame through the backend at the clock's
// current fraction and flushes it. It reports whether anything was drawn.
func (e *Engine) Present() (bool, error) {
	return e.PresentAt(float32(e.Clock.Fraction()))
}

// PresentAt is Present at an explicit interpolation fraction.
func (e *Engine) PresentAt(t float32) (bool, error) {
	if e.backend == nil {
		return false, ErrNoBackend
	}
	drawn := e.Store.Present(t, func(c *draw.Command) {
		tex, ok := e.resolve(c)
		if !ok {
			e.skipped.Add(1)
			return
		}
		e.backend.Draw(c, tex)
	})
	if !drawn {
		return false, nil
	}
	return true, e.backend.Flush()
}

// resolve looks up the slot a draw command references. A command whose
// handle is absent, stale, still loading or of the wrong kind is skipped.
func (e *Engine) resolve(c *draw.Command) (*resource.Slot, bool) {
	switch c.Kind {
	case draw.KindTexture, draw.KindSpriteFrame:
		return e.Table.GetSafe(c.Texture, resource.KindTexture)
	case draw.KindText:
		if c.Font.IsNil() {
			return nil, true
		}
		return e.Table.GetSafe(c.Font, resource.KindFont)
	case draw.KindRenderTarget:
		if c.Target.IsNil() {
			return nil, true
		}
		return e.Table.GetSafe(c.Target, resource.KindRenderTarget)
	default:
		return nil, true
	}
}
