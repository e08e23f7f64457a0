package actor

import "testing"

func newTestService() *Service {
	return NewService(nil, nil)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(0)
	svc := newTestService()

	h, err := r.Register(svc)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.Node() != 0 {
		t.Fatalf("handle node = %d, want 0", h.Node())
	}

	got := r.Lookup(h)
	if got != svc {
		t.Fatalf("Lookup returned %+v, want %+v", got, svc)
	}
	if got.RefCount() != 1 {
		t.Fatalf("RefCount after Lookup = %d, want 1", got.RefCount())
	}
	got.Release()

	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistryLookupUnknownHandle(t *testing.T) {
	r := NewRegistry(0)
	if got := r.Lookup(NewHandle(0, 999)); got != nil {
		t.Fatalf("expected nil for unknown handle, got %+v", got)
	}
}

func TestRegistryLookupWrongNode(t *testing.T) {
	r := NewRegistry(1)
	svc := newTestService()
	h, err := r.Register(svc)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	wrongNode := NewHandle(2, h.Service())
	if got := r.Lookup(wrongNode); got != nil {
		t.Fatal("expected nil when node id does not match registry")
	}
}

func TestRegistryRetireRemovesFromLookup(t *testing.T) {
	r := NewRegistry(0)
	svc := newTestService()
	h, _ := r.Register(svc)

	retired := r.Retire(h)
	if retired != svc {
		t.Fatalf("Retire returned %+v, want %+v", retired, svc)
	}
	if got := r.Lookup(h); got != nil {
		t.Fatal("expected handle to be gone after Retire")
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistryRetireUnknownIsNoop(t *testing.T) {
	r := NewRegistry(0)
	if got := r.Retire(NewHandle(0, 12345)); got != nil {
		t.Fatal("expected nil retiring an unknown handle")
	}
}

func TestRegistryProbeChainSurvivesDeletion(t *testing.T) {
	r := NewRegistry(0)
	var handles []Handle
	for i := 0; i < 20; i++ {
		svc := newTestService()
		h, err := r.Register(svc)
		if err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
		handles = append(handles, h)
	}

	// Retire a middle entry, then make sure every other entry (which may
	// have probed past it) is still reachable.
	mid := handles[len(handles)/2]
	r.Retire(mid)

	for i, h := range handles {
		if h == mid {
			continue
		}
		if got := r.Lookup(h); got == nil {
			t.Fatalf("handle %d (%v) unreachable after unrelated deletion", i, h)
		} else {
			got.Release()
		}
	}
}

func TestRegistryRehashesOnDemand(t *testing.T) {
	r := NewRegistry(0)
	n := defaultTableSize // past the 2x load factor this should trigger growth
	var handles []Handle
	for i := 0; i < n; i++ {
		svc := newTestService()
		h, err := r.Register(svc)
		if err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
		handles = append(handles, h)
	}
	for i, h := range handles {
		if got := r.Lookup(h); got == nil {
			t.Fatalf("handle %d lost after growth", i)
		} else {
			got.Release()
		}
	}
}

func TestRegistryRetireAll(t *testing.T) {
	r := NewRegistry(0)
	for i := 0; i < 5; i++ {
		r.Register(newTestService())
	}
	all := r.RetireAll()
	if len(all) != 5 {
		t.Fatalf("RetireAll returned %d services, want 5", len(all))
	}
	if r.Count() != 0 {
		t.Fatalf("Count() after RetireAll = %d, want 0", r.Count())
	}
}

func TestRegistryNameBindingExactlyOnce(t *testing.T) {
	r := NewRegistry(0)
	svc := newTestService()
	h, _ := r.Register(svc)

	if err := r.Name("svc.one", h); err != nil {
		t.Fatalf("Name: %v", err)
	}
	if err := r.Name("svc.one", h); err != ErrNameTaken {
		t.Fatalf("second Name() err = %v, want ErrNameTaken", err)
	}

	got, ok := r.Find("svc.one")
	if !ok || got != h {
		t.Fatalf("Find() = (%v, %v), want (%v, true)", got, ok, h)
	}

	if _, ok := r.Find("nope"); ok {
		t.Fatal("expected Find to report false for unbound name")
	}
}
