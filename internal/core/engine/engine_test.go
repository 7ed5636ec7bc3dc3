package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/framesync/internal/core/arena"
	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/config"
	"github.com/zeusync/framesync/internal/core/draw"
	"github.com/zeusync/framesync/internal/core/resource"
)

type drawCall struct {
	cmd draw.Command
	tex *resource.Slot
}

type recorder struct {
	mu       sync.Mutex
	kinds    []command.Kind
	draws    []drawCall
	flushes  int
	liveFree bool
	table    *resource.Table
}

func (r *recorder) ProcessCommand(kind command.Kind, cmd *command.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	if kind == command.KindResourceFree && r.table != nil {
		_, r.liveFree = r.table.GetSafe(cmd.Free.Handle, cmd.Free.Kind)
	}
}

func (r *recorder) Draw(cmd *draw.Command, tex *resource.Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws = append(r.draws, drawCall{cmd: *cmd, tex: tex})
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func (r *recorder) drawsByID() map[uint64]draw.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint64]draw.Command, len(r.draws))
	for _, d := range r.draws {
		out[d.cmd.ID] = d.cmd
	}
	return out
}

func (r *recorder) flushCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// pathLog records the path each load saw and keeps it, unsafely aliased, as
// the payload.
type pathLog struct {
	mu    sync.Mutex
	paths map[resource.Handle]string
}

func newPathLog() *pathLog {
	return &pathLog{paths: make(map[resource.Handle]string)}
}

func (l *pathLog) Load(_ context.Context, req command.ResourceLoad) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths[req.Handle] = strings.Clone(req.Path)
	return req.Path, nil
}

func (l *pathLog) seen() map[resource.Handle]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.paths)
}

var textures = LoaderFunc(func(_ context.Context, req command.ResourceLoad) (any, error) {
	if req.Path == "missing" {
		return nil, errors.New("no such texture")
	}
	return resource.Texture{Width: 8, Height: 4}, nil
})

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.LogicHz = 200
	cfg.RenderHz = 400
	cfg.ArenaPageSize = 4096
	rec := &recorder{}
	e, err := New(cfg, append([]Option{WithBackend(rec), WithLoader(textures)}, opts...)...)
	require.NoError(t, err)
	rec.table = e.Table
	return e, rec
}

func rect(id uint64, x, y float32) draw.Command {
	return draw.Command{Kind: draw.KindRect, ID: id, Mask: draw.MaskPosition, Position: draw.Vec2{X: x, Y: y}, Width: 1, Height: 1}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BusCapacity = 0
	_, err := New(cfg)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNew_UniqueIDs(t *testing.T) {
	a, _ := newTestEngine(t)
	b, _ := newTestEngine(t)
	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())
}

func TestEngine_InterpolatesAcrossTicks(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Step(ctx, 1, func(_ context.Context, p *Producer, _ uint64) error {
		p.Draw(rect(7, 0, 0))
		return nil
	}))
	e.Drain(ctx)

	require.NoError(t, e.Step(ctx, 2, func(_ context.Context, p *Producer, _ uint64) error {
		p.Draw(rect(7, 10, 10))
		p.Draw(rect(9, 3, 3))
		return nil
	}))
	e.Drain(ctx)

	ok, err := e.PresentAt(0.5)
	require.NoError(t, err)
	require.True(t, ok)

	got := rec.drawsByID()
	require.Len(t, got, 2)
	require.Equal(t, draw.Vec2{X: 5, Y: 5}, got[7].Position)
	require.Equal(t, draw.Vec2{X: 3, Y: 3}, got[9].Position)
	require.Equal(t, 1, rec.flushCount())
}

func TestEngine_PresentBeforeFirstFrame(t *testing.T) {
	e, rec := newTestEngine(t)
	ok, err := e.PresentAt(1)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, rec.flushCount())
}

func TestEngine_PresentWithoutBackend(t *testing.T) {
	e, err := New(config.Default())
	require.NoError(t, err)
	_, err = e.Present()
	require.ErrorIs(t, err, ErrNoBackend)
	require.ErrorIs(t, e.Run(context.Background(), nil), ErrNoBackend)
}

func TestEngine_TextureDrawsWaitForLoad(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	var ok, missing resource.Handle
	require.NoError(t, e.Step(ctx, 1, func(_ context.Context, p *Producer, _ uint64) error {
		var err error
		ok, err = p.Load(resource.KindTexture, "hero")
		require.NoError(t, err)
		missing, err = p.Load(resource.KindTexture, "missing")
		require.NoError(t, err)
		require.Equal(t, resource.StatePending, p.State(ok))

		p.Draw(draw.Command{Kind: draw.KindTexture, ID: 1, Texture: ok, Origin: draw.Vec2{X: 0.5, Y: 0.5}})
		p.Draw(draw.Command{Kind: draw.KindSpriteFrame, ID: 2, Texture: missing})
		p.Draw(draw.Command{Kind: draw.KindTexture, ID: 3, Texture: resource.Nil})
		return nil
	}))
	e.Drain(ctx)

	_, err := e.PresentAt(1)
	require.NoError(t, err)

	got := rec.drawsByID()
	require.Len(t, got, 1)
	require.Contains(t, got, uint64(1))
	require.EqualValues(t, 2, e.Stats().Skipped)

	p := e.Producer()
	require.Equal(t, resource.StateLoaded, p.State(ok))
	require.Equal(t, resource.StateFailed, p.State(missing))
	payload, found := p.Resolve(ok, resource.KindTexture)
	require.True(t, found)
	require.Equal(t, 8, payload.(resource.Texture).Width)

	errs := p.Errors()
	require.Len(t, errs, 1)
	require.Equal(t, missing, errs[0].Handle)
	require.Contains(t, errs[0].Message, "no such texture")
	require.Empty(t, p.Errors())
}

func TestEngine_LoadWithoutLoaderFails(t *testing.T) {
	rec := &recorder{}
	e, err := New(config.Default(), WithBackend(rec))
	require.NoError(t, err)
	ctx := context.Background()

	var h resource.Handle
	require.NoError(t, e.Step(ctx, 1, func(_ context.Context, p *Producer, _ uint64) error {
		h, err = p.Load(resource.KindSound, "beep")
		return err
	}))
	e.Drain(ctx)
	require.Equal(t, resource.StateFailed, e.Table.State(h))
}

func TestEngine_FreeReachesSubsystemsBeforeRelease(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()
	p := e.Producer()

	var h resource.Handle
	require.NoError(t, e.Step(ctx, 1, func(_ context.Context, p *Producer, _ uint64) error {
		var err error
		h, err = p.Load(resource.KindTexture, "hero")
		return err
	}))
	e.Drain(ctx)
	require.Equal(t, resource.StateLoaded, p.State(h))

	require.NoError(t, e.Step(ctx, 2, func(_ context.Context, p *Producer, _ uint64) error {
		p.Free(h, resource.KindTexture)
		return nil
	}))
	e.Drain(ctx)

	rec.mu.Lock()
	live := rec.liveFree
	rec.mu.Unlock()
	require.True(t, live)
	require.Equal(t, resource.StateInvalid, p.State(h))

	_, found := p.Resolve(h, resource.KindTexture)
	require.False(t, found)
}

func TestEngine_SubsystemsSeeFrameBoundariesInOrder(t *testing.T) {
	sub := &recorder{}
	e, rec := newTestEngine(t, WithSubsystem(sub))
	ctx := context.Background()

	require.NoError(t, e.Step(ctx, 1, func(_ context.Context, p *Producer, _ uint64) error {
		p.Audio(command.AudioUpdate{Op: command.AudioPlay, Voice: 1})
		p.Draw(rect(1, 0, 0))
		return nil
	}))
	e.Drain(ctx)

	want := []command.Kind{command.KindMeta, command.KindAudioUpdate, command.KindMeta}
	require.Equal(t, want, sub.kinds)
	require.Equal(t, want, rec.kinds)
}

func TestEngine_WindowUpdateRetargetsRender(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, ok := e.Window()
	require.False(t, ok)

	require.NoError(t, e.Step(ctx, 1, func(_ context.Context, p *Producer, _ uint64) error {
		p.Window(command.WindowUpdate{Width: 80, Height: 24, Title: "demo", RenderHz: 120})
		return nil
	}))
	e.Drain(ctx)

	w, ok := e.Window()
	require.True(t, ok)
	require.Equal(t, "demo", w.Title)
	require.Equal(t, 120.0, e.RenderHz())
	require.Equal(t, time.Second/120, e.renderPeriod())
}

func TestEngine_SingleFramePresentsOnce(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()
	p := e.Producer()

	require.NoError(t, p.BeginSingleFrame())
	p.Draw(draw.Command{Kind: draw.KindText, ID: 4, Text: "paused"})
	p.EndSingleFrame()
	e.Drain(ctx)

	executed := 0
	for i := 0; i < 5; i++ {
		ok, err := e.PresentAt(1)
		require.NoError(t, err)
		if ok {
			executed++
		}
	}
	require.Equal(t, 1, executed)
	require.Equal(t, 1, rec.flushCount())
	require.Equal(t, "paused", rec.drawsByID()[4].Text)
}

func TestEngine_RunUntilStopped(t *testing.T) {
	e, rec := newTestEngine(t)

	var (
		mu   sync.Mutex
		hero resource.Handle
	)
	logic := func(_ context.Context, p *Producer, tick uint64) error {
		if tick == 1 {
			h, err := p.Load(resource.KindTexture, "hero")
			if err != nil {
				return err
			}
			mu.Lock()
			hero = h
			mu.Unlock()
		}
		p.Draw(rect(1, float32(tick), 0))
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), logic) }()

	require.Eventually(t, func() bool { return rec.flushCount() >= 3 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return e.Table.State(hero) == resource.StateLoaded
	}, 5*time.Second, time.Millisecond)

	require.ErrorIs(t, e.Run(context.Background(), logic), ErrAlreadyRunning)

	e.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	require.ErrorIs(t, e.Run(context.Background(), logic), ErrFinished)

	st := e.Stats()
	require.Positive(t, st.LogicTicks)
	require.Positive(t, st.Presents)
	require.Equal(t, e.ID(), st.EngineID)
	require.Equal(t, 1, st.Resources.Loaded)
}

func TestEngine_LogicErrorStopsRun(t *testing.T) {
	e, _ := newTestEngine(t)
	boom := errors.New("boom")
	err := e.Run(context.Background(), func(_ context.Context, _ *Producer, tick uint64) error {
		if tick == 3 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}

func TestEngine_PanicIsFatal(t *testing.T) {
	var (
		mu     sync.Mutex
		reason any
	)
	e, _ := newTestEngine(t, WithFatalHandler(func(r any) {
		mu.Lock()
		reason = r
		mu.Unlock()
	}))

	err := e.Run(context.Background(), func(_ context.Context, p *Producer, _ uint64) error {
		// one page cannot hold this
		p.Draw(draw.Command{Kind: draw.KindText, Text: string(make([]byte, 8192))})
		return nil
	})
	require.ErrorIs(t, err, ErrFatal)
	require.True(t, e.Quitting())

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, reason)
}

func TestEngine_GoRecovers(t *testing.T) {
	got := make(chan any, 1)
	e, _ := newTestEngine(t, WithFatalHandler(func(r any) { got <- r }))

	e.Go("worker", func() { panic("bad worker") })

	select {
	case r := <-got:
		require.Equal(t, "bad worker", r)
	case <-time.After(5 * time.Second):
		t.Fatal("panic not reported")
	}
}

func TestEngine_StepWaitsForRenderBeforeReusingPages(t *testing.T) {
	paths := newPathLog()
	e, _ := newTestEngine(t, WithLoader(paths))
	ctx := context.Background()

	requested := make(map[resource.Handle]string)
	step := func(ctx context.Context, tick uint64) error {
		return e.Step(ctx, tick, func(_ context.Context, p *Producer, tick uint64) error {
			path := fmt.Sprintf("tex-%d", tick)
			h, err := p.Load(resource.KindTexture, path)
			if err != nil {
				return err
			}
			requested[h] = path
			p.Draw(draw.Command{Kind: draw.KindText, ID: tick, Text: "ZZZZZZZZZZ"})
			return nil
		})
	}

	for tick := uint64(0); tick < arena.Depth-1; tick++ {
		require.NoError(t, step(ctx, tick))
	}
	require.EqualValues(t, arena.Depth-1, e.FramesAhead())

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, step(short, 99), context.DeadlineExceeded)
	require.Len(t, requested, arena.Depth-1)

	e.Drain(ctx)
	require.Zero(t, e.FramesAhead())
	for tick := uint64(arena.Depth - 1); tick < 2*arena.Depth; tick++ {
		require.NoError(t, step(ctx, tick))
		e.Drain(ctx)
	}

	require.Equal(t, requested, paths.seen())
	for h, path := range requested {
		got, ok := e.Producer().Resolve(h, resource.KindTexture)
		require.True(t, ok)
		require.Equal(t, path, got)
	}
	require.Positive(t, e.Stats().PageWaits)
}

func TestEngine_SlowRenderLoadsEveryPathIntact(t *testing.T) {
	paths := newPathLog()
	cfg := config.Default()
	cfg.LogicHz = 200
	cfg.RenderHz = 10
	cfg.ArenaPageSize = 4096
	e, err := New(cfg, WithBackend(&recorder{}), WithLoader(paths))
	require.NoError(t, err)

	const want = 40
	var (
		requested = make(map[resource.Handle]string)
		maxAhead  uint64
	)
	logic := func(_ context.Context, p *Producer, tick uint64) error {
		maxAhead = max(maxAhead, e.FramesAhead())
		if len(requested) == want {
			return nil
		}
		path := fmt.Sprintf("tex-%04d", tick)
		h, err := p.Load(resource.KindTexture, path)
		if err != nil {
			return err
		}
		requested[h] = path
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), logic) }()

	require.Eventually(t, func() bool { return len(paths.seen()) == want }, 10*time.Second, 5*time.Millisecond)
	e.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	require.Equal(t, requested, paths.seen())
	require.LessOrEqual(t, maxAhead, uint64(arena.Depth-1))
	require.Positive(t, e.Stats().PageWaits)
}

type windowSink struct {
	last command.WindowUpdate
}

func (w *windowSink) ProcessCommand(kind command.Kind, cmd *command.Command) {
	if kind == command.KindWindowUpdate {
		w.last = cmd.Window
	}
}

func TestEngine_WindowTitleOutlivesFrameMemory(t *testing.T) {
	sink := &windowSink{}
	e, _ := newTestEngine(t, WithSubsystem(sink))
	ctx := context.Background()

	require.NoError(t, e.Step(ctx, 1, func(_ context.Context, p *Producer, _ uint64) error {
		p.Window(command.WindowUpdate{Title: "alpha"})
		return nil
	}))
	e.Drain(ctx)
	for tick := uint64(2); tick < 2+arena.Depth; tick++ {
		require.NoError(t, e.Step(ctx, tick, func(_ context.Context, p *Producer, _ uint64) error {
			p.Draw(draw.Command{Kind: draw.KindText, Text: "ZZZZZ"})
			return nil
		}))
		e.Drain(ctx)
	}

	w, ok := e.Window()
	require.True(t, ok)
	require.Equal(t, "alpha", w.Title)
	require.Equal(t, "alpha", sink.last.Title)
}
