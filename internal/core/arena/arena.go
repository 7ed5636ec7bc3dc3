package arena

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Depth is the number of pages the ring cycles through. With four pages the
// logic side can run two ticks ahead of a consumer still reading frame N
// without ever waiting for it.
const Depth = 4

// ExhaustedError is the panic value raised when a page cannot satisfy an
// allocation. It is a sizing defect, never a runtime condition to recover from.
type ExhaustedError struct {
	Page      int
	Requested int
	Used      int
	Size      int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("frame arena page %d exhausted: requested %d bytes, %d/%d in use",
		e.Page, e.Requested, e.Used, e.Size)
}

// Arena is a bump allocator over a single backing buffer.
type Arena struct {
	data   []byte
	offset atomic.Int64
}

func NewArena(size int) *Arena {
	return &Arena{data: make([]byte, size)}
}

// Allocate carves size bytes. ok is false when the arena cannot fit them.
func (a *Arena) Allocate(size int) (buf []byte, ok bool) {
	if size < 0 {
		return nil, false
	}
	for {
		cur := a.offset.Load()
		next := cur + int64(size)
		if next > int64(len(a.data)) {
			return nil, false
		}
		if a.offset.CompareAndSwap(cur, next) {
			return a.data[cur:next:next], true
		}
	}
}

// Reset truncates the arena. Memory is kept for reuse.
func (a *Arena) Reset() { a.offset.Store(0) }

func (a *Arena) Used() int { return int(a.offset.Load()) }

func (a *Arena) Size() int { return len(a.data) }

// Ring cycles Depth arenas. Allocations come from the active page; BeginFrame
// moves to the next page and truncates it.
type Ring struct {
	pages  [Depth]*Arena
	active atomic.Uint32
	frames atomic.Uint64
}

// NewRing creates Depth pages of pageSize bytes each.
func NewRing(pageSize int) *Ring {
	r := &Ring{}
	for i := range r.pages {
		r.pages[i] = NewArena(pageSize)
	}
	return r
}

// BeginFrame advances the active page and resets it before the logic side
// fills it with this tick's payloads.
func (r *Ring) BeginFrame() {
	next := (r.active.Load() + 1) % Depth
	r.pages[next].Reset()
	r.active.Store(next)
	r.frames.Add(1)
}

// GetFrameMemory returns size zeroed bytes valid until this page is re-entered.
func (r *Ring) GetFrameMemory(size int) []byte {
	buf := r.alloc(size)
	clear(buf)
	return buf
}

// CopyIntoFrameMemory copies src into frame memory and returns the copy.
func (r *Ring) CopyIntoFrameMemory(src []byte) []byte {
	buf := r.alloc(len(src))
	copy(buf, src)
	return buf
}

// CopyString copies s into frame memory. The result aliases the page, so it
// must not outlive the page's next reset.
func (r *Ring) CopyString(s string) string {
	if len(s) == 0 {
		return ""
	}
	buf := r.alloc(len(s))
	copy(buf, s)
	return unsafe.String(&buf[0], len(buf))
}

func (r *Ring) alloc(size int) []byte {
	idx := r.active.Load()
	page := r.pages[idx]
	buf, ok := page.Allocate(size)
	if !ok {
		panic(&ExhaustedError{Page: int(idx), Requested: size, Used: page.Used(), Size: page.Size()})
	}
	return buf
}

// Active is the index of the page receiving allocations.
func (r *Ring) Active() int { return int(r.active.Load()) }

// Used reports bytes carved from page i.
func (r *Ring) Used(i int) int { return r.pages[i%Depth].Used() }

// Frames counts BeginFrame calls.
func (r *Ring) Frames() uint64 { return r.frames.Load() }
