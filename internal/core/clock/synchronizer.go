package clock

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/zeusync/framesync/internal/core/observability/log"
)

var (
	ErrStopped        = errors.New("clock synchronizer stopped")
	ErrAlreadyRunning = errors.New("clock synchronizer already running")
	ErrInvalidRate    = errors.New("tick rate must be positive")
)

// DefaultResolution bounds how long the pacing loop sleeps between fraction updates.
const DefaultResolution = 500 * time.Microsecond

type Options struct {
	TickHz     float64
	Resolution time.Duration
	Source     Source
	Logger     log.Log
}

// Synchronizer paces the logic goroutine at a fixed tick rate and publishes
// how far the current tick has progressed for the render goroutine.
//
// Each tick follows the same handshake: the pacing loop sends "go", then
// waits for the logic side's Ack before timing the next tick. The fraction
// is published continuously in between.
type Synchronizer struct {
	period     time.Duration
	resolution time.Duration
	src        Source
	log        log.Log

	fraction atomic.Uint64 // float64 bits
	ticks    atomic.Uint64
	late     atomic.Uint64
	running  atomic.Bool
	pending  atomic.Bool // a "go" was taken and not yet acknowledged

	goCh  chan uint64
	ackCh chan struct{}
	done  chan struct{}
}

func New(opts Options) (*Synchronizer, error) {
	if opts.TickHz <= 0 || math.IsInf(opts.TickHz, 0) || math.IsNaN(opts.TickHz) {
		return nil, ErrInvalidRate
	}
	resolution := opts.Resolution
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	src := opts.Source
	if src == nil {
		src = MonotonicSource{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Synchronizer{
		period:     time.Duration(float64(time.Second) / opts.TickHz),
		resolution: resolution,
		src:        src,
		log:        logger,
		goCh:       make(chan uint64),
		ackCh:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}, nil
}

// Period is the duration of one logic tick.
func (s *Synchronizer) Period() time.Duration { return s.period }

// Fraction is the latest published progress through the current tick, in [0,1].
func (s *Synchronizer) Fraction() float64 {
	return math.Float64frombits(s.fraction.Load())
}

func (s *Synchronizer) publish(f float64) {
	switch {
	case f < 0:
		f = 0
	case f > 1:
		f = 1
	}
	s.fraction.Store(math.Float64bits(f))
}

// Ticks is the number of "go" signals delivered.
func (s *Synchronizer) Ticks() uint64 { return s.ticks.Load() }

// LateTicks counts ticks where the loop fell far enough behind to re-anchor.
func (s *Synchronizer) LateTicks() uint64 { return s.late.Load() }

// Run executes the pacing loop until ctx ends. It may only be called once.
func (s *Synchronizer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	deadline := s.src.Now().Add(s.period)
	s.publish(0)
	s.log.Debug("clock started", log.Duration("period", s.period))

	timer := time.NewTimer(s.resolution)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		now := s.src.Now()
		if now.Before(deadline) {
			elapsed := s.period - deadline.Sub(now)
			s.publish(float64(elapsed) / float64(s.period))

			wait := deadline.Sub(now)
			if wait > s.resolution {
				wait = s.resolution
			}
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil
			}
			continue
		}

		s.publish(1)
		tick := s.ticks.Add(1)

		select {
		case s.goCh <- tick:
		case <-ctx.Done():
			return nil
		}
		select {
		case <-s.ackCh:
		case <-ctx.Done():
			return nil
		}

		deadline = deadline.Add(s.period)
		now = s.src.Now()
		if now.Sub(deadline) > 2*s.period {
			s.late.Add(1)
			s.log.Debug("clock re-anchored", log.Uint64("tick", tick), log.Duration("behind", now.Sub(deadline)))
			deadline = now.Add(s.period)
		}
	}
}

// Wait blocks the logic goroutine until the next tick is due and returns its number.
func (s *Synchronizer) Wait(ctx context.Context) (uint64, error) {
	select {
	case tick := <-s.goCh:
		s.pending.Store(true)
		return tick, nil
	case <-s.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Ack tells the pacing loop the logic side consumed the last "go" signal.
// An Ack without a preceding Wait is ignored.
func (s *Synchronizer) Ack() {
	if !s.pending.CompareAndSwap(true, false) {
		return
	}
	select {
	case s.ackCh <- struct{}{}:
	default:
	}
}

// Done is closed once Run returns.
func (s *Synchronizer) Done() <-chan struct{} { return s.done }
