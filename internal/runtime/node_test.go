package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/actorcore/actorcored/internal/actor"
)

// echoModule is the smallest possible actor.Module: it replies to every
// TypeText message with the same payload, letting tests exercise the
// full launch → send → dispatch → reply path without any socket or
// timer involvement.
type echoModule struct{}

type echoInstance struct {
	mu       sync.Mutex
	ctx      actor.Context
	received [][]byte
}

func (echoModule) Create() (any, error) { return &echoInstance{}, nil }

func (echoModule) Init(inst any, ctx actor.Context, args []string) error {
	inst.(*echoInstance).ctx = ctx
	return nil
}

func (echoModule) Release(inst any) {}

func (echoModule) Signal(inst any, n int) {}

func (echoModule) Dispatch(inst any) actor.Callback {
	in := inst.(*echoInstance)
	return func(typ actor.Type, session int32, source actor.Handle, payload []byte) bool {
		in.mu.Lock()
		in.received = append(in.received, payload)
		in.mu.Unlock()
		if typ == actor.TypeText && source.Valid() {
			in.ctx.Send(source, actor.TypeText, session, payload, 0)
		}
		return false
	}
}

type failInitModule struct{}

func (failInitModule) Create() (any, error) { return struct{}{}, nil }
func (failInitModule) Init(inst any, ctx actor.Context, args []string) error {
	return errFailInit
}
func (failInitModule) Release(inst any)    {}
func (failInitModule) Signal(inst any, n int) {}
func (failInitModule) Dispatch(inst any) actor.Callback {
	return func(actor.Type, int32, actor.Handle, []byte) bool { return false }
}

var errFailInit = testErr("init failed")

type testErr string

func (e testErr) Error() string { return string(e) }

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := NewNode(Config{NodeID: 1, Workers: 2})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	n.RegisterModule("echo", echoModule{})
	n.RegisterModule("failinit", failInitModule{})
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(n.Stop)
	return n
}

func TestLaunchAndStatMqlen(t *testing.T) {
	n := newTestNode(t)

	h, err := n.launchModule("echo", nil)
	if err != nil {
		t.Fatalf("launchModule: %v", err)
	}

	if err := n.Send(actor.InvalidHandle, h, actor.TypeText, 0, []byte("hi"), 0); err != nil {
		t.Fatalf("Send: %v", err)
	}

	result, err := n.stat(h, "mqlen")
	if err != nil {
		t.Fatalf("stat mqlen: %v", err)
	}
	if result == "" {
		t.Fatal("expected a numeric mqlen result")
	}
}

func TestLaunchFailedInitRetiresService(t *testing.T) {
	n := newTestNode(t)

	_, err := n.launchModule("failinit", nil)
	if err == nil {
		t.Fatal("expected launchModule to surface Init's error")
	}
	if got := n.registry.Count(); got != 0 {
		t.Fatalf("registry.Count() = %d after a failed Init, want 0", got)
	}
}

func TestLaunchUnknownModule(t *testing.T) {
	n := newTestNode(t)

	if _, err := n.launchModule("does-not-exist", nil); err == nil {
		t.Fatal("expected an error for an unregistered module name")
	}
}

func TestSendRoundTrip(t *testing.T) {
	n := newTestNode(t)

	senderHandle, err := n.launchModule("echo", nil)
	if err != nil {
		t.Fatalf("launchModule sender: %v", err)
	}
	receiverHandle, err := n.launchModule("echo", nil)
	if err != nil {
		t.Fatalf("launchModule receiver: %v", err)
	}

	if err := n.Send(senderHandle, receiverHandle, actor.TypeText, 0, []byte("ping"), 0); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		svc := n.registry.Lookup(senderHandle)
		in := svc.Instance().(*echoInstance)
		svc.Release()
		in.mu.Lock()
		got := len(in.received)
		in.mu.Unlock()
		if got > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sender never received the echoed reply")
}

func TestStatUnknownHandle(t *testing.T) {
	n := newTestNode(t)
	if _, err := n.stat(actor.NewHandle(1, 999999), "mqlen"); err == nil {
		t.Fatal("expected an error for an unregistered handle")
	}
}

func TestStatUnknownCounter(t *testing.T) {
	n := newTestNode(t)
	h, err := n.launchModule("echo", nil)
	if err != nil {
		t.Fatalf("launchModule: %v", err)
	}
	if _, err := n.stat(h, "bogus"); err == nil {
		t.Fatal("expected an error for an unknown STAT counter")
	}
}

func TestExecuteCommandAuditsLaunch(t *testing.T) {
	n, err := NewNode(Config{NodeID: 1, Workers: 2, Audit: AuditConfig{Driver: "memory"}})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	n.RegisterModule("echo", echoModule{})
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	if _, err := n.executeCommand("LAUNCH", "echo"); err != nil {
		t.Fatalf("executeCommand LAUNCH: %v", err)
	}
	// The audit writer drains asynchronously; give it a moment before
	// Stop()'s drain-and-close runs as part of test cleanup.
	time.Sleep(50 * time.Millisecond)
	if got := n.auditWriter.Dropped(); got != 0 {
		t.Fatalf("Dropped() = %d, want 0 for a single LAUNCH under an unbounded-ish queue", got)
	}
}
