package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/actorcore/actorcored/internal/actor"
)

func TestWeightTable(t *testing.T) {
	cases := map[int]int{
		0: -1, 1: -1, 2: -1, 3: -1,
		4: 0, 5: 0, 6: 0, 7: 0,
		8: 1, 9: 1, 10: 1, 11: 1,
		12: 2, 13: 2, 14: 2, 15: 2,
		16: 3, 17: 3, 18: 3, 19: 3,
		20: 0, 100: 0,
	}
	for id, want := range cases {
		if got := weight(id); got != want {
			t.Errorf("weight(%d) = %d, want %d", id, got, want)
		}
	}
}

func TestBatchSize(t *testing.T) {
	cases := []struct{ w, n, want int }{
		{-1, 100, 1},
		{0, 50, 50},
		{1, 16, 8},
		{2, 16, 4},
		{3, 16, 2},
		{3, 1, 1},
	}
	for _, c := range cases {
		if got := batchSize(c.w, c.n); got != c.want {
			t.Errorf("batchSize(%d, %d) = %d, want %d", c.w, c.n, got, c.want)
		}
	}
}

type countingModule struct {
	mu       sync.Mutex
	sessions []int32
}

func (m *countingModule) Create() (any, error) { return m, nil }
func (m *countingModule) Init(instance any, ctx actor.Context, args []string) error {
	return nil
}
func (m *countingModule) Release(instance any)       {}
func (m *countingModule) Signal(instance any, n int) {}
func (m *countingModule) Dispatch(instance any) actor.Callback {
	return func(typ actor.Type, session int32, source actor.Handle, payload []byte) bool {
		cm := instance.(*countingModule)
		cm.mu.Lock()
		cm.sessions = append(cm.sessions, session)
		cm.mu.Unlock()
		return false
	}
}

func (m *countingModule) snapshot() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int32, len(m.sessions))
	copy(out, m.sessions)
	return out
}

func TestSchedulerDispatchesAllMessages(t *testing.T) {
	reg := actor.NewRegistry(0)
	ready := actor.NewReadyQueue(4)
	sched := NewScheduler(ready, reg, 4)

	mod := &countingModule{}
	svc := actor.NewService(mod, mod)
	h, err := reg.Register(svc)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	svc.Mailbox = actor.NewMailbox(h)

	sched.Start()
	defer sched.Stop()

	const n = 20
	for i := 1; i <= n; i++ {
		ready.PushMessage(svc.Mailbox, actor.Message{Session: int32(i)})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.MessageCount() == n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := svc.MessageCount(); got != n {
		t.Fatalf("MessageCount() = %d, want %d", got, n)
	}
	if got := sched.Dispatched(); got != n {
		t.Fatalf("Dispatched() = %d, want %d", got, n)
	}

	sessions := mod.snapshot()
	if len(sessions) != n {
		t.Fatalf("callback observed %d sessions, want %d", len(sessions), n)
	}
	seen := make(map[int32]bool)
	for _, s := range sessions {
		seen[s] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[int32(i)] {
			t.Fatalf("session %d never dispatched", i)
		}
	}
}

func TestSchedulerDropsMessagesForRetiredService(t *testing.T) {
	reg := actor.NewRegistry(0)
	ready := actor.NewReadyQueue(2)
	sched := NewScheduler(ready, reg, 2)

	mod := &countingModule{}
	svc := actor.NewService(mod, mod)
	h, _ := reg.Register(svc)
	svc.Mailbox = actor.NewMailbox(h)

	reg.Retire(h) // retire before any message is pushed

	sched.Start()
	defer sched.Stop()

	ready.PushMessage(svc.Mailbox, actor.Message{Session: 1})

	time.Sleep(50 * time.Millisecond)
	if got := len(mod.snapshot()); got != 0 {
		t.Fatalf("expected retired service's callback never invoked, got %d calls", got)
	}
}
