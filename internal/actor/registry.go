package actor

import (
	"fmt"
	"sync"
)

// defaultTableSize is the registry's initial closed-hash table size. It
// doubles on demand up to maxTableSize.
const (
	defaultTableSize = 1 << 8
	maxTableSize     = 1 << 24
)

// ErrRegistryFull is returned by Register when the handle table has
// grown to maxTableSize and is still full.
var ErrRegistryFull = fmt.Errorf("actor: registry full")

// ErrNameTaken is returned by Name when the global name is already bound.
var ErrNameTaken = fmt.Errorf("actor: name already bound")

// Registry assigns handles, maps handle to *Service, and maps global
// names to handles. It is the Go rendition of skynet_server.c's
// handle_storage: a closed hash keyed by a monotonically advancing
// 24-bit counter, probing forward on collision.
type Registry struct {
	nodeID uint8

	mu      sync.RWMutex
	table   []*Service // closed hash, index = serviceID & (len-1)
	count   int
	counter uint32 // next candidate service id, wraps skipping 0

	namesMu sync.RWMutex
	names   map[string]Handle
}

// NewRegistry creates an empty registry for the given node id.
func NewRegistry(nodeID uint8) *Registry {
	return &Registry{
		nodeID:  nodeID,
		table:   make([]*Service, defaultTableSize),
		counter: 1,
		names:   make(map[string]Handle),
	}
}

// Register assigns svc a fresh handle and publishes it. The returned
// handle's ref-count starts at zero; callers that intend to keep using
// svc immediately should call svc.Retain() themselves (mirrors the C
// runtime: registration alone does not pin).
func (r *Registry) Register(svc *Service) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count*2 >= len(r.table) {
		if len(r.table) >= maxTableSize {
			return 0, ErrRegistryFull
		}
		r.rehashLocked()
	}

	mask := uint32(len(r.table) - 1)
	for tries := 0; tries < len(r.table); tries++ {
		id := r.counter
		r.counter++
		if r.counter > serviceMax {
			r.counter = 1 // wrap within the 24-bit space, skipping zero
		}
		slot := id & mask
		if r.table[slot] == nil {
			h := NewHandle(r.nodeID, id)
			svc.Handle = h
			r.table[slot] = svc
			r.count++
			return h, nil
		}
	}
	return 0, ErrRegistryFull
}

// rehashLocked doubles the table and re-inserts every live service.
// Caller holds r.mu.
func (r *Registry) rehashLocked() {
	old := r.table
	newTable := make([]*Service, len(old)*2)
	mask := uint32(len(newTable) - 1)
	for _, svc := range old {
		if svc == nil {
			continue
		}
		slot := svc.Handle.Service() & mask
		for newTable[slot] != nil {
			slot = (slot + 1) & mask
		}
		newTable[slot] = svc
	}
	r.table = newTable
}

// Lookup finds the service for h and increments its ref-count. A nil
// result means h is unknown; no release is needed in that case. Every
// non-nil result must be matched with Release.
func (r *Registry) Lookup(h Handle) *Service {
	if h.Node() != r.nodeID {
		return nil
	}
	r.mu.RLock()
	mask := uint32(len(r.table) - 1)
	id := h.Service()
	for slot := id & mask; r.table[slot] != nil; slot = (slot + 1) & mask {
		if r.table[slot].Handle == h {
			svc := r.table[slot]
			r.mu.RUnlock()
			svc.Retain()
			return svc
		}
	}
	r.mu.RUnlock()
	return nil
}

// Retire removes h from the table so it can no longer be looked up. It is
// a no-op if h is unknown. The service struct itself is not freed until
// its ref-count reaches zero.
func (r *Registry) Retire(h Handle) *Service {
	if h.Node() != r.nodeID {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	mask := uint32(len(r.table) - 1)
	id := h.Service()
	for slot := id & mask; r.table[slot] != nil; slot = (slot + 1) & mask {
		if r.table[slot].Handle == h {
			svc := r.table[slot]
			r.table[slot] = nil
			r.count--
			r.closeProbeChainLocked(slot, mask)
			return svc
		}
	}
	return nil
}

// closeProbeChainLocked re-inserts the tail of a probe chain after a
// deletion so later lookups along that chain still terminate correctly.
// Caller holds r.mu.
func (r *Registry) closeProbeChainLocked(hole uint32, mask uint32) {
	slot := (hole + 1) & mask
	for r.table[slot] != nil {
		svc := r.table[slot]
		r.table[slot] = nil
		home := svc.Handle.Service() & mask
		ins := home
		for r.table[ins] != nil {
			ins = (ins + 1) & mask
		}
		r.table[ins] = svc
		slot = (slot + 1) & mask
	}
}

// RetireAll returns every currently registered service and empties the
// table (used by the ABORT command).
func (r *Registry) RetireAll() []*Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Service, 0, r.count)
	for i, svc := range r.table {
		if svc != nil {
			out = append(out, svc)
			r.table[i] = nil
		}
	}
	r.count = 0
	return out
}

// Services returns every currently registered service without removing
// them, for diagnostics (the admin surface's STAT/snapshot views). Unlike
// Lookup this does not retain; callers must not outlive the snapshot.
func (r *Registry) Services() []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Service, 0, r.count)
	for _, svc := range r.table {
		if svc != nil {
			out = append(out, svc)
		}
	}
	return out
}

// Name binds name to h. Names must be bound exactly once.
func (r *Registry) Name(name string, h Handle) error {
	r.namesMu.Lock()
	defer r.namesMu.Unlock()
	if _, exists := r.names[name]; exists {
		return ErrNameTaken
	}
	r.names[name] = h
	return nil
}

// Find returns the handle bound to name, or (0, false).
func (r *Registry) Find(name string) (Handle, bool) {
	r.namesMu.RLock()
	defer r.namesMu.RUnlock()
	h, ok := r.names[name]
	return h, ok
}

// Count returns the number of currently registered services.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
