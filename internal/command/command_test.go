package command

import (
	"fmt"
	"strings"
	"testing"

	"github.com/actorcore/actorcored/internal/actor"
	"github.com/actorcore/actorcored/internal/timer"
)

func newTestDispatcher() (*Dispatcher, *actor.Registry) {
	reg := actor.NewRegistry(0)
	wheel := timer.NewWheel(func(actor.Handle, int32) {})
	return NewDispatcher(reg, wheel), reg
}

func registerService(t *testing.T, reg *actor.Registry) actor.Handle {
	t.Helper()
	svc := actor.NewService(nil, nil)
	h, err := reg.Register(svc)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	svc.Mailbox = actor.NewMailbox(h)
	return h
}

func TestTimeoutAllocatesSession(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)

	out, err := d.Execute(h, "TIMEOUT", "5")
	if err != nil {
		t.Fatalf("Execute TIMEOUT: %v", err)
	}
	if out == "" || out == "0" {
		t.Fatalf("expected a positive session id, got %q", out)
	}
}

func TestRegAndQuery(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)

	out, err := d.Execute(h, "REG", "")
	if err != nil || out != h.String() {
		t.Fatalf("REG with empty arg: out=%q err=%v, want %v", out, err, h)
	}

	if _, err := d.Execute(h, "REG", ".alpha"); err != nil {
		t.Fatalf("REG .alpha: %v", err)
	}

	out, err = d.Execute(h, "QUERY", ".alpha")
	if err != nil || out != h.String() {
		t.Fatalf("QUERY .alpha: out=%q err=%v", out, err)
	}

	out, err = d.Execute(h, "QUERY", ".nope")
	if err != nil || out != "" {
		t.Fatalf("QUERY .nope: out=%q err=%v, want empty", out, err)
	}
}

func TestNameBindsByHex(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)

	arg := fmt.Sprintf(".beta %s", h.String())
	if _, err := d.Execute(h, "NAME", arg); err != nil {
		t.Fatalf("NAME: %v", err)
	}
	out, err := d.Execute(h, "QUERY", ".beta")
	if err != nil || out != h.String() {
		t.Fatalf("QUERY .beta: out=%q err=%v", out, err)
	}
}

func TestKillRetiresAndNotifiesSender(t *testing.T) {
	d, reg := newTestDispatcher()
	target := registerService(t, reg)

	var sent []actor.Type
	d.Send = func(dst actor.Handle, typ actor.Type, session int32, payload []byte) error {
		sent = append(sent, typ)
		return nil
	}

	svc := reg.Lookup(target)
	svc.Mailbox.Push(actor.Message{Source: registerService(t, reg), Session: 7})
	svc.Release()

	if _, err := d.Execute(target, "KILL", target.String()); err != nil {
		t.Fatalf("KILL: %v", err)
	}
	if reg.Lookup(target) != nil {
		t.Fatal("expected target to be retired")
	}
	if len(sent) != 1 || sent[0] != actor.TypeError {
		t.Fatalf("expected one error notification, got %v", sent)
	}
}

func TestExitKillsCaller(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)
	if _, err := d.Execute(h, "EXIT", ""); err != nil {
		t.Fatalf("EXIT: %v", err)
	}
	if reg.Lookup(h) != nil {
		t.Fatal("expected caller to be retired by EXIT")
	}
}

func TestLaunchUsesInjectedLauncher(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)

	var gotModule string
	var gotArgs []string
	want := registerService(t, reg)
	d.Launch = func(module string, args []string) (actor.Handle, error) {
		gotModule = module
		gotArgs = args
		return want, nil
	}

	out, err := d.Execute(h, "LAUNCH", "echo foo bar")
	if err != nil {
		t.Fatalf("LAUNCH: %v", err)
	}
	if out != want.String() {
		t.Fatalf("LAUNCH result = %q, want %q", out, want.String())
	}
	if gotModule != "echo" || strings.Join(gotArgs, ",") != "foo,bar" {
		t.Fatalf("launcher got module=%q args=%v", gotModule, gotArgs)
	}
}

func TestGetenvSetenv(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)

	if out := d.getenv("missing"); out != "" {
		t.Fatalf("GETENV missing = %q, want empty", out)
	}
	if _, err := d.Execute(h, "SETENV", "k v"); err != nil {
		t.Fatalf("SETENV: %v", err)
	}
	out, err := d.Execute(h, "GETENV", "k")
	if err != nil || out != "v" {
		t.Fatalf("GETENV k: out=%q err=%v", out, err)
	}
}

func TestStarttime(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)
	out, err := d.Execute(h, "STARTTIME", "")
	if err != nil {
		t.Fatalf("STARTTIME: %v", err)
	}
	if out == "" || out == "0" {
		t.Fatalf("expected a nonzero start time, got %q", out)
	}
}

func TestAbortRetiresEverything(t *testing.T) {
	d, reg := newTestDispatcher()
	registerService(t, reg)
	registerService(t, reg)
	h := registerService(t, reg)

	if _, err := d.Execute(h, "ABORT", ""); err != nil {
		t.Fatalf("ABORT: %v", err)
	}
	if reg.Count() != 0 {
		t.Fatalf("Count() after ABORT = %d, want 0", reg.Count())
	}
}

func TestMonitorSetAndQuery(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)
	watcher := registerService(t, reg)

	if _, err := d.Execute(h, "MONITOR", watcher.String()); err != nil {
		t.Fatalf("MONITOR set: %v", err)
	}
	out, err := d.Execute(h, "MONITOR", "")
	if err != nil || out != watcher.String() {
		t.Fatalf("MONITOR query: out=%q err=%v, want %v", out, err, watcher)
	}
}

func TestStatUsesInjectedHook(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)

	d.Stat = func(target actor.Handle, stat string) (string, error) {
		if stat == "mqlen" {
			return "3", nil
		}
		return "", fmt.Errorf("unsupported stat %q", stat)
	}
	out, err := d.Execute(h, "STAT", "mqlen")
	if err != nil || out != "3" {
		t.Fatalf("STAT mqlen: out=%q err=%v", out, err)
	}
}

func TestLogonLogoffUseInjectedHooks(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)

	var on, off bool
	d.LogOn = func(target actor.Handle) error { on = true; return nil }
	d.LogOff = func(target actor.Handle) error { off = true; return nil }

	if _, err := d.Execute(h, "LOGON", h.String()); err != nil {
		t.Fatalf("LOGON: %v", err)
	}
	if _, err := d.Execute(h, "LOGOFF", h.String()); err != nil {
		t.Fatalf("LOGOFF: %v", err)
	}
	if !on || !off {
		t.Fatalf("expected both hooks invoked: on=%v off=%v", on, off)
	}
}

func TestSignalUsesInjectedHook(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)

	var gotN int
	d.Signal = func(target actor.Handle, n int) error { gotN = n; return nil }

	if _, err := d.Execute(h, "SIGNAL", h.String()+" 9"); err != nil {
		t.Fatalf("SIGNAL: %v", err)
	}
	if gotN != 9 {
		t.Fatalf("gotN = %d, want 9", gotN)
	}
}

func TestUnknownCommand(t *testing.T) {
	d, reg := newTestDispatcher()
	h := registerService(t, reg)
	if _, err := d.Execute(h, "BOGUS", ""); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}
