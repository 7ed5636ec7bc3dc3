package command

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/petermattis/goid"
)

var (
	ErrSecondProducer = errors.New("command bus: push from a second goroutine")
	ErrSecondConsumer = errors.New("command bus: pop from a second goroutine")
)

// DefaultSpins is how many times a waiting side yields before parking.
const DefaultSpins = 64

// Options tunes a Bus.
type Options struct {
	// Spins bounds the yield loop before a full Push parks. Zero uses DefaultSpins.
	Spins int
	// CheckOwnership records the first pushing and popping goroutines and
	// panics when another goroutine takes either role.
	CheckOwnership bool
}

// Bus is a single-producer/single-consumer ring of Command records.
//
// Thread-Safety:
//   - Push/PushContext: producer goroutine only
//   - Pop/Drain/WaitReadable: consumer goroutine only
//   - Len/Cap/Stats: any goroutine
//
// A full Push waits for the consumer; nothing is ever dropped.
type Bus struct {
	_     [64]byte
	read  atomic.Uint64
	_     [56]byte
	write atomic.Uint64
	_     [56]byte

	slots []Command
	size  uint64
	spins int

	// park/wake for a producer facing a full ring
	producerWaiting atomic.Bool
	space           chan struct{}
	// park/wake for a consumer facing an empty ring
	consumerWaiting atomic.Bool
	items           chan struct{}

	checkOwner bool
	producer   atomic.Int64
	consumer   atomic.Int64

	pushes atomic.Uint64
	blocks atomic.Uint64
}

// NewBus creates a bus holding up to capacity unread commands.
func NewBus(capacity int, opts Options) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	spins := opts.Spins
	if spins <= 0 {
		spins = DefaultSpins
	}
	return &Bus{
		slots:      make([]Command, capacity),
		size:       uint64(capacity),
		spins:      spins,
		space:      make(chan struct{}, 1),
		items:      make(chan struct{}, 1),
		checkOwner: opts.CheckOwnership,
	}
}

func (b *Bus) claim(owner *atomic.Int64, err error) {
	gid := goid.Get()
	if owner.CompareAndSwap(0, gid) {
		return
	}
	if cur := owner.Load(); cur != gid {
		panic(fmt.Errorf("%w: owner %d, caller %d", err, cur, gid))
	}
}

func (b *Bus) full(w uint64) bool {
	return w-b.read.Load() >= b.size
}

// Push copies cmd into the ring, waiting while the ring is full.
func (b *Bus) Push(cmd *Command) {
	_ = b.push(context.Background(), cmd)
}

// PushContext is Push that gives up with ctx.Err() if ctx ends while the ring is full.
func (b *Bus) PushContext(ctx context.Context, cmd *Command) error {
	return b.push(ctx, cmd)
}

func (b *Bus) push(ctx context.Context, cmd *Command) error {
	if b.checkOwner {
		b.claim(&b.producer, ErrSecondProducer)
	}

	w := b.write.Load()
	if b.full(w) {
		b.blocks.Add(1)
		if err := b.waitSpace(ctx, w); err != nil {
			return err
		}
	}

	b.slots[w%b.size] = *cmd
	b.write.Store(w + 1)
	b.pushes.Add(1)

	if b.consumerWaiting.Load() {
		select {
		case b.items <- struct{}{}:
		default:
		}
	}
	return nil
}

// waitSpace spins, then parks until the consumer frees a slot.
func (b *Bus) waitSpace(ctx context.Context, w uint64) error {
	for i := 0; i < b.spins; i++ {
		runtime.Gosched()
		if !b.full(w) {
			return nil
		}
	}
	for {
		b.producerWaiting.Store(true)
		if !b.full(w) {
			b.producerWaiting.Store(false)
			return nil
		}
		select {
		case <-b.space:
		case <-ctx.Done():
			b.producerWaiting.Store(false)
			return ctx.Err()
		}
		b.producerWaiting.Store(false)
		if !b.full(w) {
			return nil
		}
	}
}

// Pop copies the oldest command into out. It returns false at once when the ring is empty.
func (b *Bus) Pop(out *Command) bool {
	if b.checkOwner {
		b.claim(&b.consumer, ErrSecondConsumer)
	}

	r := b.read.Load()
	if r == b.write.Load() {
		return false
	}

	idx := r % b.size
	*out = b.slots[idx]
	b.slots[idx] = Command{}
	b.read.Store(r + 1)

	if b.producerWaiting.Load() {
		select {
		case b.space <- struct{}{}:
		default:
		}
	}
	return true
}

// Drain pops every available command into fn, in order, and returns the count.
func (b *Bus) Drain(fn func(cmd *Command)) int {
	var cmd Command
	n := 0
	for b.Pop(&cmd) {
		fn(&cmd)
		n++
	}
	return n
}

// WaitReadable parks the consumer until at least one command is queued or ctx ends.
func (b *Bus) WaitReadable(ctx context.Context) error {
	for {
		if b.read.Load() != b.write.Load() {
			return nil
		}
		b.consumerWaiting.Store(true)
		if b.read.Load() != b.write.Load() {
			b.consumerWaiting.Store(false)
			return nil
		}
		select {
		case <-b.items:
		case <-ctx.Done():
			b.consumerWaiting.Store(false)
			return ctx.Err()
		}
		b.consumerWaiting.Store(false)
	}
}

// Len is the approximate number of unread commands.
func (b *Bus) Len() int {
	return int(b.write.Load() - b.read.Load())
}

func (b *Bus) Cap() int { return int(b.size) }

// BusStats are cumulative counters.
type BusStats struct {
	Pushes uint64 `json:"pushes"`
	Blocks uint64 `json:"blocks"`
	Depth  int    `json:"depth"`
}

func (b *Bus) Stats() BusStats {
	return BusStats{Pushes: b.pushes.Load(), Blocks: b.blocks.Load(), Depth: b.Len()}
}

// ResetOwnership forgets the recorded producer and consumer goroutines.
func (b *Bus) ResetOwnership() {
	b.producer.Store(0)
	b.consumer.Store(0)
}
