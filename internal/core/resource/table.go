package resource

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTableFull      = errors.New("resource table is full")
	ErrInvalidHandle  = errors.New("invalid resource handle")
	ErrStaleHandle    = errors.New("stale resource handle")
	ErrNotReserved    = errors.New("resource slot is not reserved")
	ErrAlreadySettled = errors.New("resource slot already loaded or failed")
	ErrInvalidKind    = errors.New("invalid resource kind")
)

// State is the observable lifecycle stage of a handle.
type State uint8

const (
	StateInvalid State = iota
	StatePending
	StateLoaded
	StateFailed
)

// Slot is one entry of the table. All fields are atomics so GetSafe can run
// on either side of the pipeline while the consumer fulfills or releases.
type Slot struct {
	kind       atomic.Uint32
	reserved   atomic.Bool
	loaded     atomic.Bool
	failed     atomic.Bool
	generation atomic.Uint32
	payload    atomic.Pointer[payloadBox]
}

type payloadBox struct {
	value any
}

func (s *Slot) Kind() Kind { return Kind(s.kind.Load()) }

func (s *Slot) Generation() uint32 { return s.generation.Load() }

// Payload returns whatever the loader stored on fulfill, or nil.
func (s *Slot) Payload() any {
	if box := s.payload.Load(); box != nil {
		return box.value
	}
	return nil
}

// LoadError is a failure report queued by Fail.
type LoadError struct {
	Handle  Handle
	Kind    Kind
	Message string
	At      time.Time
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Handle, e.Message)
}

// Stats is a point-in-time scan of the table.
type Stats struct {
	Capacity      int    `json:"capacity"`
	Reserved      int    `json:"reserved"`
	Loaded        int    `json:"loaded"`
	Failed        int    `json:"failed"`
	DroppedErrors uint64 `json:"dropped_errors"`
}

// Table is a fixed-capacity array of generation-checked resource slots.
//
// Reserve runs on the producer side, Fulfill/Fail/Release on the consumer
// side, GetSafe anywhere. The error buffer is the only locked state.
type Table struct {
	slots []Slot

	errMu     sync.Mutex
	errs      []LoadError
	errCap    int
	errDrops  atomic.Uint64
	failCount atomic.Uint64
}

// NewTable creates a table with capacity slots and an error buffer holding at
// most errorCapacity unread failures.
func NewTable(capacity, errorCapacity int) *Table {
	if capacity <= 0 {
		capacity = 1
	}
	if errorCapacity <= 0 {
		errorCapacity = 1
	}
	return &Table{
		slots:  make([]Slot, capacity),
		errCap: errorCapacity,
		errs:   make([]LoadError, 0, errorCapacity),
	}
}

func (t *Table) Capacity() int { return len(t.slots) }

// Reserve claims the first unreserved slot and returns its handle.
func (t *Table) Reserve(kind Kind) (Handle, error) {
	if kind == KindNone {
		return Nil, ErrInvalidKind
	}
	for i := range t.slots {
		s := &t.slots[i]
		if s.reserved.Load() {
			continue
		}
		if !s.reserved.CompareAndSwap(false, true) {
			continue
		}
		s.loaded.Store(false)
		s.failed.Store(false)
		s.payload.Store(nil)
		s.kind.Store(uint32(kind))
		return NewHandle(uint32(i), s.generation.Load()), nil
	}
	return Nil, ErrTableFull
}

// lookup resolves h to a reserved slot of the current generation.
func (t *Table) lookup(h Handle) (*Slot, error) {
	idx := h.Index()
	if h.IsNil() || int(idx) >= len(t.slots) {
		return nil, ErrInvalidHandle
	}
	s := &t.slots[idx]
	if s.generation.Load() != h.Generation() {
		return nil, ErrStaleHandle
	}
	if !s.reserved.Load() {
		return nil, ErrNotReserved
	}
	return s, nil
}

// Fulfill stores payload and publishes the slot as loaded.
func (t *Table) Fulfill(h Handle, payload any) error {
	s, err := t.lookup(h)
	if err != nil {
		return fmt.Errorf("fulfill %s: %w", h, err)
	}
	if s.loaded.Load() || s.failed.Load() {
		return fmt.Errorf("fulfill %s: %w", h, ErrAlreadySettled)
	}
	s.payload.Store(&payloadBox{value: payload})
	s.loaded.Store(true)
	return nil
}

// Fail marks the slot failed and queues message on the shared error buffer.
func (t *Table) Fail(h Handle, message string) error {
	s, err := t.lookup(h)
	if err != nil {
		return fmt.Errorf("fail %s: %w", h, err)
	}
	if s.loaded.Load() || s.failed.Load() {
		return fmt.Errorf("fail %s: %w", h, ErrAlreadySettled)
	}
	s.failed.Store(true)
	t.failCount.Add(1)

	t.errMu.Lock()
	if len(t.errs) == t.errCap {
		copy(t.errs, t.errs[1:])
		t.errs = t.errs[:len(t.errs)-1]
		t.errDrops.Add(1)
	}
	t.errs = append(t.errs, LoadError{Handle: h, Kind: s.Kind(), Message: message, At: time.Now()})
	t.errMu.Unlock()
	return nil
}

// Release clears the slot and bumps its generation so every outstanding
// handle to it stops resolving.
func (t *Table) Release(h Handle) error {
	s, err := t.lookup(h)
	if err != nil {
		return fmt.Errorf("release %s: %w", h, err)
	}
	s.loaded.Store(false)
	s.failed.Store(false)
	s.payload.Store(nil)
	s.kind.Store(uint32(KindNone))
	s.generation.Add(1)
	// reserved goes last: a producer may claim the slot as soon as it flips
	s.reserved.Store(false)
	return nil
}

// GetSafe returns the slot behind h only if the index is in range and the
// generation, kind and loaded flag all agree.
func (t *Table) GetSafe(h Handle, kind Kind) (*Slot, bool) {
	idx := h.Index()
	if h.IsNil() || int(idx) >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[idx]
	if !s.loaded.Load() {
		return nil, false
	}
	if s.generation.Load() != h.Generation() || Kind(s.kind.Load()) != kind {
		return nil, false
	}
	return s, true
}

// Get is GetSafe plus a typed payload assertion.
func Get[T any](t *Table, h Handle, kind Kind) (T, bool) {
	var zero T
	s, ok := t.GetSafe(h, kind)
	if !ok {
		return zero, false
	}
	v, ok := s.Payload().(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// State reports the lifecycle stage of h.
func (t *Table) State(h Handle) State {
	s, err := t.lookup(h)
	if err != nil {
		return StateInvalid
	}
	switch {
	case s.loaded.Load():
		return StateLoaded
	case s.failed.Load():
		return StateFailed
	default:
		return StatePending
	}
}

func (t *Table) Failed(h Handle) bool { return t.State(h) == StateFailed }

// Errors drains and returns queued load failures, oldest first.
func (t *Table) Errors() []LoadError {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if len(t.errs) == 0 {
		return nil
	}
	out := make([]LoadError, len(t.errs))
	copy(out, t.errs)
	t.errs = t.errs[:0]
	return out
}

// FailureCount is the total number of Fail calls since creation.
func (t *Table) FailureCount() uint64 { return t.failCount.Load() }

func (t *Table) Stats() Stats {
	st := Stats{Capacity: len(t.slots), DroppedErrors: t.errDrops.Load()}
	for i := range t.slots {
		s := &t.slots[i]
		if !s.reserved.Load() {
			continue
		}
		st.Reserved++
		if s.loaded.Load() {
			st.Loaded++
		}
		if s.failed.Load() {
			st.Failed++
		}
	}
	return st
}
