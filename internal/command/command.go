// Package command implements the administrative command channel:
// the string-in/string-out verb table every service calls
// through its Context.Command method. Grounded on the teacher's GoCMD
// façade (pkg/core/gocmd.go) — one object fronting registry, scheduling
// and deployment concerns behind a narrow method surface — generalized
// from verticle deployment IDs to skynet-style handles and verbs.
package command

import (
	"fmt"
	"sync"

	"github.com/actorcore/actorcored/internal/actor"
	"github.com/actorcore/actorcored/internal/timer"
)

// Launcher creates a new service from a named module and returns its
// handle. internal/runtime supplies the concrete implementation (module
// lookup, instantiation, registration, mailbox wiring).
type Launcher func(module string, args []string) (actor.Handle, error)

// Sender delivers typ/session/payload to dst. Used by KILL/EXIT to notify
// an exit watcher and, when KILL/EXIT/ABORT retire a service, to answer
// its pending callers with TypeError; TIMEOUT itself goes through Wheel.
type Sender func(dst actor.Handle, typ actor.Type, session int32, payload []byte) error

// LogToggler opens or closes a service's raw-message log file.
type LogToggler func(h actor.Handle) error

// Signaler delivers a module-defined out-of-band signal to target.
type Signaler func(target actor.Handle, n int) error

// StatQuery answers one STAT sub-query for h.
type StatQuery func(h actor.Handle, stat string) (string, error)

// Dispatcher executes administrative commands on behalf of a calling
// service. It owns nothing it wasn't explicitly
// given: handle allocation lives in Registry, timed delivery in Wheel,
// everything else is injected as a narrow function hook so this package
// never depends on internal/runtime (avoiding an import cycle symmetric
// to internal/actor.Context).
type Dispatcher struct {
	Registry *actor.Registry
	Wheel    *timer.Wheel

	Launch   Launcher
	Send     Sender
	LogOn    LogToggler
	LogOff   LogToggler
	Signal   Signaler
	Stat     StatQuery

	envMu sync.RWMutex
	env   map[string]string

	monitorMu sync.RWMutex
	monitor   map[actor.Handle]actor.Handle // service -> exit-watch handle
}

// NewDispatcher creates a dispatcher wired to registry and wheel. The
// Launch/Send/LogOn/LogOff/Signal/Stat hooks may be set afterward, before
// the first Execute call.
func NewDispatcher(registry *actor.Registry, wheel *timer.Wheel) *Dispatcher {
	return &Dispatcher{
		Registry: registry,
		Wheel:    wheel,
		env:      make(map[string]string),
		monitor:  make(map[actor.Handle]actor.Handle),
	}
}

// Execute runs one command on behalf of caller. The returned
// string is the command's result; an empty string is itself a valid
// result (e.g. QUERY on an unbound name).
func (d *Dispatcher) Execute(caller actor.Handle, name, arg string) (string, error) {
	switch name {
	case "TIMEOUT":
		return d.timeout(caller, arg)
	case "REG":
		return d.reg(caller, arg)
	case "QUERY":
		return d.query(arg)
	case "NAME":
		return d.name(arg)
	case "EXIT":
		return "", d.exit(caller)
	case "KILL":
		return "", d.kill(arg)
	case "LAUNCH":
		return d.launch(arg)
	case "GETENV":
		return d.getenv(arg), nil
	case "SETENV":
		return "", d.setenv(arg)
	case "STARTTIME":
		return fmt.Sprintf("%d", d.Wheel.StartTime()), nil
	case "ABORT":
		return "", d.abort()
	case "MONITOR":
		return d.monitorCmd(caller, arg)
	case "STAT":
		return d.stat(caller, arg)
	case "LOGON":
		return "", d.logon(arg)
	case "LOGOFF":
		return "", d.logoff(arg)
	case "SIGNAL":
		return "", d.signal(arg)
	default:
		return "", fmt.Errorf("command: unknown command %q", name)
	}
}

func (d *Dispatcher) timeout(caller actor.Handle, arg string) (string, error) {
	var ticks int
	if _, err := fmt.Sscanf(arg, "%d", &ticks); err != nil {
		return "", fmt.Errorf("command: TIMEOUT: bad argument %q: %w", arg, err)
	}
	svc := d.Registry.Lookup(caller)
	if svc == nil {
		return "", fmt.Errorf("command: TIMEOUT: unknown caller %v", caller)
	}
	defer svc.Release()

	session := svc.NextSession()
	d.Wheel.Schedule(caller, session, ticks)
	return fmt.Sprintf("%d", session), nil
}

func (d *Dispatcher) reg(caller actor.Handle, arg string) (string, error) {
	if arg == "" {
		return caller.String(), nil
	}
	if len(arg) < 2 || arg[0] != '.' {
		return "", fmt.Errorf("command: REG: expected .name, got %q", arg)
	}
	if err := d.Registry.Name(arg[1:], caller); err != nil {
		return "", err
	}
	return caller.String(), nil
}

func (d *Dispatcher) query(arg string) (string, error) {
	if len(arg) < 2 || arg[0] != '.' {
		return "", fmt.Errorf("command: QUERY: expected .name, got %q", arg)
	}
	h, ok := d.Registry.Find(arg[1:])
	if !ok {
		return "", nil
	}
	return h.String(), nil
}

func (d *Dispatcher) name(arg string) (string, error) {
	var name, hex string
	if _, err := fmt.Sscanf(arg, "%s %s", &name, &hex); err != nil {
		return "", fmt.Errorf("command: NAME: expected \".name :hex\", got %q", arg)
	}
	if len(name) < 2 || name[0] != '.' {
		return "", fmt.Errorf("command: NAME: expected .name, got %q", name)
	}
	h, err := actor.ParseHandle(hex)
	if err != nil {
		return "", fmt.Errorf("command: NAME: %w", err)
	}
	if err := d.Registry.Name(name[1:], h); err != nil {
		return "", err
	}
	return "", nil
}

func (d *Dispatcher) exit(caller actor.Handle) error {
	return d.kill(caller.String())
}

func (d *Dispatcher) kill(arg string) error {
	h, err := d.resolve(arg)
	if err != nil {
		return err
	}
	svc := d.Registry.Retire(h)
	if svc == nil {
		return fmt.Errorf("command: KILL: unknown target %q", arg)
	}
	d.retireService(svc)
	if watcher, ok := d.monitorTarget(h); ok && d.Send != nil {
		d.Send(watcher, actor.TypeSystem, 0, []byte("EXIT "+h.String()))
	}
	return nil
}

// retireService finishes tearing down a service Registry.Retire has
// already removed from the handle table: its mailbox is marked
// release-pending (so a worker that already popped it for dispatch drains
// it instead of invoking the callback again) and drained with TypeError
// responses to any callers still waiting on a session, then the module
// instance itself is released. Shared by kill and abort.
func (d *Dispatcher) retireService(svc *actor.Service) {
	if svc.Mailbox != nil {
		svc.Mailbox.MarkReleasePending()
		svc.Mailbox.Drain(func(msg actor.Message) {
			if d.Send != nil && msg.Session != 0 {
				d.Send(msg.Source, actor.TypeError, msg.Session, nil)
			}
		})
	}
	if svc.Module != nil {
		svc.Module.Release(svc.Instance())
	}
}

func (d *Dispatcher) launch(arg string) (string, error) {
	if d.Launch == nil {
		return "", fmt.Errorf("command: LAUNCH: no launcher configured")
	}
	fields := splitFields(arg)
	if len(fields) == 0 {
		return "", fmt.Errorf("command: LAUNCH: missing module name")
	}
	h, err := d.Launch(fields[0], fields[1:])
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

func (d *Dispatcher) getenv(key string) string {
	d.envMu.RLock()
	defer d.envMu.RUnlock()
	return d.env[key]
}

func (d *Dispatcher) setenv(arg string) error {
	fields := splitFields(arg)
	if len(fields) < 2 {
		return fmt.Errorf("command: SETENV: expected \"key value\", got %q", arg)
	}
	d.envMu.Lock()
	d.env[fields[0]] = fields[1]
	d.envMu.Unlock()
	return nil
}

func (d *Dispatcher) abort() error {
	for _, svc := range d.Registry.RetireAll() {
		d.retireService(svc)
	}
	return nil
}

func (d *Dispatcher) monitorCmd(caller actor.Handle, arg string) (string, error) {
	d.monitorMu.Lock()
	defer d.monitorMu.Unlock()
	if arg == "" {
		if watcher, ok := d.monitor[caller]; ok {
			return watcher.String(), nil
		}
		return "", nil
	}
	h, err := d.resolve(arg)
	if err != nil {
		return "", err
	}
	d.monitor[caller] = h
	return h.String(), nil
}

func (d *Dispatcher) monitorTarget(h actor.Handle) (actor.Handle, bool) {
	d.monitorMu.RLock()
	defer d.monitorMu.RUnlock()
	watcher, ok := d.monitor[h]
	return watcher, ok
}

func (d *Dispatcher) stat(caller actor.Handle, arg string) (string, error) {
	if d.Stat == nil {
		return "", fmt.Errorf("command: STAT: no stat hook configured")
	}
	return d.Stat(caller, arg)
}

func (d *Dispatcher) logon(arg string) error {
	h, err := d.resolve(arg)
	if err != nil {
		return err
	}
	if d.LogOn == nil {
		return fmt.Errorf("command: LOGON: no log hook configured")
	}
	return d.LogOn(h)
}

func (d *Dispatcher) logoff(arg string) error {
	h, err := d.resolve(arg)
	if err != nil {
		return err
	}
	if d.LogOff == nil {
		return fmt.Errorf("command: LOGOFF: no log hook configured")
	}
	return d.LogOff(h)
}

func (d *Dispatcher) signal(arg string) error {
	fields := splitFields(arg)
	if len(fields) == 0 {
		return fmt.Errorf("command: SIGNAL: missing target")
	}
	h, err := d.resolve(fields[0])
	if err != nil {
		return err
	}
	n := 0
	if len(fields) > 1 {
		fmt.Sscanf(fields[1], "%d", &n)
	}
	if d.Signal == nil {
		return fmt.Errorf("command: SIGNAL: no signal hook configured")
	}
	return d.Signal(h, n)
}

// resolve parses arg as either ":hex" (a handle) or ".name" (a bound
// global name), the two target forms used throughout this verb table.
func (d *Dispatcher) resolve(arg string) (actor.Handle, error) {
	if arg == "" {
		return 0, fmt.Errorf("command: empty target")
	}
	if arg[0] == '.' {
		h, ok := d.Registry.Find(arg[1:])
		if !ok {
			return 0, fmt.Errorf("command: unbound name %q", arg)
		}
		return h, nil
	}
	return actor.ParseHandle(arg)
}

func splitFields(s string) []string {
	var fields []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}
