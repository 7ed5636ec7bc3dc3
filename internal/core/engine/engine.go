package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zeusync/framesync/internal/core/arena"
	"github.com/zeusync/framesync/internal/core/clock"
	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/config"
	"github.com/zeusync/framesync/internal/core/draw"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/core/resource"
)

var (
	ErrNoBackend      = errors.New("engine has no render backend")
	ErrNoLoader       = errors.New("engine has no asset loader")
	ErrAlreadyRunning = errors.New("engine already running")
	ErrFinished       = errors.New("engine already ran; build a new one")
	ErrFatal          = errors.New("fatal engine fault")
)

// Subsystem consumes non-draw commands drained from the bus. Every
// registered subsystem sees every frame boundary.
type Subsystem interface {
	ProcessCommand(kind command.Kind, cmd *command.Command)
}

// Backend is the render collaborator. Draw receives interpolated commands of
// the presented frame; tex is the resolved texture, font or target slot, or
// nil when the command references none.
type Backend interface {
	Subsystem
	Draw(cmd *draw.Command, tex *resource.Slot)
	Flush() error
}

// Option customizes an Engine at construction.
type Option func(*Engine)

func WithLogger(l log.Log) Option {
	return func(e *Engine) { e.log = l }
}

func WithBackend(b Backend) Option {
	return func(e *Engine) { e.backend = b }
}

func WithLoader(l Loader) Option {
	return func(e *Engine) { e.loader = l }
}

func WithSubsystem(s Subsystem) Option {
	return func(e *Engine) { e.subsystems = append(e.subsystems, s) }
}

func WithClockSource(src clock.Source) Option {
	return func(e *Engine) { e.clockSource = src }
}

// WithFatalHandler replaces the default fatal path, which logs at fatal
// level and exits the process.
func WithFatalHandler(fn func(reason any)) Option {
	return func(e *Engine) { e.onFatal = fn }
}

// Engine owns every piece of pipeline state for one running instance. Nothing
// in the pipeline is process-global, so independent engines can coexist.
type Engine struct {
	id  string
	cfg config.Config
	log log.Log

	Bus   *command.Bus
	Arena *arena.Ring
	Table *resource.Table
	Store *draw.Store
	Clock *clock.Synchronizer

	backend     Backend
	subsystems  []Subsystem
	loader      Loader
	clockSource clock.Source
	onFatal     func(reason any)

	producer *Producer
	jobs     chan command.ResourceLoad
	results  chan loadResult

	// frame gate: logic may run at most arena.Depth-1 frames ahead of the
	// frames the render side has finished dispatching
	framesBegun atomic.Uint64
	framesDone  atomic.Uint64
	gateWaiting atomic.Bool
	frameDone   chan struct{}
	pageWaits   atomic.Uint64

	quit     atomic.Bool
	cancel   atomic.Pointer[context.CancelFunc]
	running  atomic.Bool
	finished atomic.Bool
	workers  atomic.Bool
	renderHz atomic.Uint64 // float64 bits

	logicTicks atomic.Uint64
	dispatched atomic.Uint64
	skipped    atomic.Uint64
	loads      atomic.Uint64
	dropped    atomic.Uint64
	window     atomic.Pointer[command.WindowUpdate]
}

// New builds an engine from cfg. Fatal handling, logger, backend and loader
// come from opts.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		id:  uuid.NewString(),
		cfg: cfg,
		log: log.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("engine").With(log.String("engine_id", e.id))
	if e.onFatal == nil {
		e.onFatal = func(reason any) {
			e.log.Fatal("fatal engine fault", log.Any("reason", reason))
		}
	}

	clk, err := clock.New(clock.Options{
		TickHz:     cfg.LogicHz,
		Resolution: cfg.ClockResolution,
		Source:     e.clockSource,
		Logger:     e.log.Named("clock"),
	})
	if err != nil {
		return nil, fmt.Errorf("create clock: %w", err)
	}

	e.Clock = clk
	e.Bus = command.NewBus(cfg.BusCapacity, command.Options{CheckOwnership: cfg.CheckOwnership})
	e.Arena = arena.NewRing(cfg.ArenaPageSize)
	e.Table = resource.NewTable(cfg.SlotCapacity, cfg.ErrorBufferSize)
	e.Store = draw.NewStore(cfg.BucketSize)
	e.jobs = make(chan command.ResourceLoad, cfg.LoaderQueue)
	e.results = make(chan loadResult, cfg.LoaderQueue+cfg.LoaderWorkers)
	e.frameDone = make(chan struct{}, 1)
	e.producer = newProducer(e)
	e.setRenderHz(cfg.RenderHz)

	return e, nil
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) Config() config.Config { return e.cfg }

func (e *Engine) Logger() log.Log { return e.log }

// Producer is the logic-side handle. Only the logic goroutine may use it.
func (e *Engine) Producer() *Producer { return e.producer }

// AddSubsystem registers s after construction, for subsystems that need
// the engine's table. It must be called before Run.
func (e *Engine) AddSubsystem(s Subsystem) {
	e.subsystems = append(e.subsystems, s)
}

// Quit raises the quit flag polled at the top of every engine loop.
func (e *Engine) Quit() { e.quit.Store(true) }

func (e *Engine) Quitting() bool { return e.quit.Load() }

// Window returns the last window update dispatched, if any.
func (e *Engine) Window() (command.WindowUpdate, bool) {
	if w := e.window.Load(); w != nil {
		return *w, true
	}
	return command.WindowUpdate{}, false
}
