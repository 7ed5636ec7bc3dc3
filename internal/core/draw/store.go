package draw

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// BufferCount is the number of frame buffers the store rotates through: one
// being written, one being presented, one holding the presented frame's predecessor.
const BufferCount = 3

// DefaultBucketSize is used when a store is created with a non-positive size.
const DefaultBucketSize = 1024

// entry indexes one command of a buffer by correlation id. An entry is live
// only while its stamp matches the stamp being searched for, so buckets are
// never cleared between frames.
type entry struct {
	stamp uint64
	id    uint64
	index int32
	next  int32 // overflow index, -1 terminates
}

// frameBuffer holds one logic frame's draw list and its id index.
type frameBuffer struct {
	commands []Command
	buckets  []entry
	overflow []entry
	ovCount  int

	stamp    atomic.Uint64
	single   atomic.Bool
	executed atomic.Bool
}

func (b *frameBuffer) reset() {
	b.commands = b.commands[:0]
	b.ovCount = 0
	b.stamp.Store(0)
	b.single.Store(false)
	b.executed.Store(false)
}

// Store is the triple-buffered draw list with previous-frame lookup.
//
// Append and the boundary methods are called by the goroutine draining the
// command bus. Present reads the buffer one behind the current one and its
// predecessor, which rotation never touches until the next boundary.
type Store struct {
	buffers    [BufferCount]frameBuffer
	current    atomic.Uint32
	stamp      atomic.Uint64
	bucketSize uint64

	rotations atomic.Uint64
	presents  atomic.Uint64
}

func NewStore(bucketSize int) *Store {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	s := &Store{bucketSize: uint64(bucketSize)}
	for i := range s.buffers {
		s.buffers[i].buckets = make([]entry, bucketSize)
	}
	return s
}

func (s *Store) bucket(id uint64) uint64 {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], id)
	return xxhash.Sum64(key[:]) % s.bucketSize
}

func (s *Store) cur() *frameBuffer {
	return &s.buffers[s.current.Load()]
}

// begin stamps the current buffer with the next global stamp if it has not
// been stamped since its last reset.
func (s *Store) begin(single bool) *frameBuffer {
	b := s.cur()
	if b.stamp.Load() == 0 {
		b.stamp.Store(s.stamp.Add(1))
	}
	if single {
		b.single.Store(true)
	}
	return b
}

// StartFrame opens a logic frame in the current buffer.
func (s *Store) StartFrame() { s.begin(false) }

// StartSingleFrame opens a frame whose draw list executes exactly once.
func (s *Store) StartSingleFrame() { s.begin(true) }

// EndFrame rotates to the next buffer and truncates it. Its bucket slots keep
// their stale stamps.
func (s *Store) EndFrame() {
	next := (s.current.Load() + 1) % BufferCount
	s.buffers[next].reset()
	s.current.Store(next)
	s.rotations.Add(1)
}

// EndSingleFrame closes a single-shot frame.
func (s *Store) EndSingleFrame() {
	s.cur().single.Store(true)
	s.EndFrame()
}

// Append adds cmd to the current buffer and indexes it when it is interpolatable.
func (s *Store) Append(cmd *Command) {
	b := s.cur()
	stamp := b.stamp.Load()
	if stamp == 0 {
		stamp = s.begin(false).stamp.Load()
	}

	idx := int32(len(b.commands))
	b.commands = append(b.commands, *cmd)
	if cmd.Mask == MaskNone {
		return
	}

	slot := &b.buckets[s.bucket(cmd.ID)]
	if slot.stamp != stamp {
		*slot = entry{stamp: stamp, id: cmd.ID, index: idx, next: -1}
		return
	}

	// occupied this frame: chain through overflow instead of rehashing
	e := entry{stamp: stamp, id: cmd.ID, index: idx, next: slot.next}
	if b.ovCount < len(b.overflow) {
		b.overflow[b.ovCount] = e
	} else {
		b.overflow = append(b.overflow, e)
	}
	slot.next = int32(b.ovCount)
	b.ovCount++
}

// lookup finds id among b's entries carrying stamp.
func (s *Store) lookup(b *frameBuffer, id uint64, stamp uint64) *Command {
	if stamp == 0 {
		return nil
	}
	e := b.buckets[s.bucket(id)]
	if e.stamp != stamp {
		return nil
	}
	for {
		if e.id == id && int(e.index) < len(b.commands) {
			return &b.commands[e.index]
		}
		if e.next < 0 || int(e.next) >= b.ovCount {
			return nil
		}
		e = b.overflow[e.next]
		if e.stamp != stamp {
			return nil
		}
	}
}

// FindPrevious returns the command with id from the frame preceding the one
// being written, or nil if the id did not appear there.
func (s *Store) FindPrevious(id uint64) *Command {
	stamp := s.stamp.Load()
	if stamp <= 1 {
		return nil
	}
	prev := &s.buffers[(s.current.Load()+BufferCount-1)%BufferCount]
	return s.lookup(prev, id, stamp-1)
}

// FindCurrent returns the command with id appended to the frame being written.
func (s *Store) FindCurrent(id uint64) *Command {
	b := s.cur()
	return s.lookup(b, id, b.stamp.Load())
}

// Present walks the last completed frame, blending each interpolatable
// command with its match in the frame before at fraction t, and hands every
// result to fn. It returns false when nothing was executed: no completed
// frame yet, or a single-shot frame that already ran.
func (s *Store) Present(t float32, fn func(cmd *Command)) bool {
	cur := s.current.Load()
	presented := &s.buffers[(cur+BufferCount-1)%BufferCount]
	source := &s.buffers[(cur+BufferCount-2)%BufferCount]

	stamp := presented.stamp.Load()
	if stamp == 0 {
		return false
	}
	if presented.single.Load() && !presented.executed.CompareAndSwap(false, true) {
		return false
	}

	switch {
	case t < 0:
		t = 0
	case t > 1:
		t = 1
	}

	for i := range presented.commands {
		c := &presented.commands[i]
		var prev *Command
		if c.Mask != MaskNone {
			if p := s.lookup(source, c.ID, stamp-1); p != nil && p.Kind == c.Kind {
				prev = p
			}
		}
		out := Interpolate(prev, c, t)
		fn(&out)
	}
	s.presents.Add(1)
	return true
}

// Len is the number of commands in the frame being written.
func (s *Store) Len() int { return len(s.cur().commands) }

// Stamp is the global frame stamp.
func (s *Store) Stamp() uint64 { return s.stamp.Load() }

// Rotations counts EndFrame calls.
func (s *Store) Rotations() uint64 { return s.rotations.Load() }

// Presents counts Present calls that executed a frame.
func (s *Store) Presents() uint64 { return s.presents.Load() }
