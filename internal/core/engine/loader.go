package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/core/resource"
)

// Loader turns a load request into a slot payload. It runs on the loader
// pool, never on the logic goroutine.
type Loader interface {
	Load(ctx context.Context, req command.ResourceLoad) (any, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, req command.ResourceLoad) (any, error)

func (f LoaderFunc) Load(ctx context.Context, req command.ResourceLoad) (any, error) {
	return f(ctx, req)
}

// detach copies the request out of frame memory. Loaders may keep the path
// or data in their payload, which outlives the arena page.
func detach(req command.ResourceLoad) command.ResourceLoad {
	req.Path = strings.Clone(req.Path)
	if req.Data != nil {
		req.Data = append([]byte(nil), req.Data...)
	}
	return req
}

type loadResult struct {
	req     command.ResourceLoad
	payload any
	err     error
}

// enqueueLoad hands a detached req to the loader pool, or loads inline when
// the pool is not running or its queue is full.
func (e *Engine) enqueueLoad(ctx context.Context, req command.ResourceLoad) {
	if e.loader == nil {
		e.settle(req, nil, ErrNoLoader)
		return
	}
	if e.workers.Load() {
		select {
		case e.jobs <- req:
			return
		default:
			e.log.Debug("loader queue full, loading inline", log.Handle("handle", uint64(req.Handle)))
		}
	}
	e.load(ctx, req)
}

func (e *Engine) load(ctx context.Context, req command.ResourceLoad) {
	payload, err := e.loader.Load(ctx, req)
	e.settle(req, payload, err)
}

// settle records the outcome of one load. A handle freed while its load was
// in flight no longer resolves, so the late result is dropped.
func (e *Engine) settle(req command.ResourceLoad, payload any, err error) {
	e.loads.Add(1)
	if err != nil {
		e.log.Warn("resource load failed",
			log.Handle("handle", uint64(req.Handle)),
			log.String("kind", req.Kind.String()),
			log.String("path", req.Path),
			log.Error(err),
		)
		err = e.Table.Fail(req.Handle, err.Error())
	} else {
		err = e.Table.Fulfill(req.Handle, payload)
	}
	if err != nil && !errors.Is(err, resource.ErrStaleHandle) && !errors.Is(err, resource.ErrNotReserved) {
		e.log.Warn("resource settle rejected", log.Handle("handle", uint64(req.Handle)), log.Error(err))
	}
}

// collectLoads settles finished pool loads. It runs on the render goroutine
// so Fulfill and Release never race on a slot.
func (e *Engine) collectLoads() {
	for {
		select {
		case r := <-e.results:
			e.settle(r.req, r.payload, r.err)
		default:
			return
		}
	}
}

// loaderWorker serves queued loads until ctx ends.
func (e *Engine) loaderWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-e.jobs:
			if e.Quitting() {
				return nil
			}
			payload, err := e.loader.Load(ctx, req)
			select {
			case e.results <- loadResult{req: req, payload: payload, err: err}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
