// Package runtime wires the core data model (internal/actor), the
// scheduler, the timer wheel, the socket reactor, the command channel,
// and the optional harbor/admin/audit/tracing subsystems into one
// process, grounded on the teacher's GoCMD (pkg/core/gocmd.go): a single
// façade object owning context and lifecycle, generalized here from
// verticle deployments to skynet-style services addressed by handle.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/actorcore/actorcored/internal/actor"
	"github.com/actorcore/actorcored/internal/adminapi"
	"github.com/actorcore/actorcored/internal/audit"
	"github.com/actorcore/actorcored/internal/command"
	"github.com/actorcore/actorcored/internal/failfast"
	"github.com/actorcore/actorcored/internal/harbor"
	"github.com/actorcore/actorcored/internal/observability"
	"github.com/actorcore/actorcored/internal/reactor"
	"github.com/actorcore/actorcored/internal/scheduler"
	"github.com/actorcore/actorcored/internal/timer"
	"github.com/actorcore/actorcored/pkg/svclog"
)

// Node owns every subsystem of one running process.
type Node struct {
	cfg Config

	registry *actor.Registry
	ready    *actor.ReadyQueue
	sched    *scheduler.Scheduler
	wheel    *timer.Wheel
	react    *reactor.Reactor
	cmd      *command.Dispatcher

	harborHook harbor.Hook
	log        observability.Logger
	metrics    *observability.Metrics

	tracingShutdown func(context.Context) error

	auditWriter *audit.Writer
	admin       *adminapi.API

	modulesMu sync.RWMutex
	modules   map[string]actor.Module

	stopOnce sync.Once
}

// NewNode constructs a Node from cfg. Every optional subsystem
// (metrics/harbor/admin/audit/tracing) stays nil/no-op unless cfg configures it:
// every section is optional and defaults to feature off.
func NewNode(cfg Config) (*Node, error) {
	failfast.If(cfg.Workers > 0, "runtime: Config.Workers must be positive, got %d", cfg.Workers)

	n := &Node{
		cfg:      cfg,
		registry: actor.NewRegistry(cfg.NodeID),
		modules:  make(map[string]actor.Module),
		log:      observability.NewStdLogger(),
	}
	if cfg.Metrics.Enabled {
		n.metrics = observability.GetMetrics()
	}
	n.ready = actor.NewReadyQueue(cfg.Workers)
	n.sched = scheduler.NewScheduler(n.ready, n.registry, cfg.Workers)
	n.sched.SetMetrics(n.metrics)
	n.sched.SetLogger(n.log)
	n.wheel = timer.NewWheel(n.deliverTimeout)
	n.cmd = command.NewDispatcher(n.registry, n.wheel)
	n.cmd.Launch = n.launchModule
	n.cmd.Send = n.sendSystem
	n.cmd.LogOn = n.logOn
	n.cmd.LogOff = n.logOff
	n.cmd.Signal = n.signal
	n.cmd.Stat = n.stat
	// Execute nil-checks every Dispatcher hook and fails the verb (or skips
	// the notice) when one is unset; Launch, Send and Stat are checked here
	// as well, since a nil one of those is a wiring bug, not a runtime
	// condition to recover from.
	failfast.NotNil(n.cmd.Launch, "command.Dispatcher.Launch")
	failfast.NotNil(n.cmd.Send, "command.Dispatcher.Send")
	failfast.NotNil(n.cmd.Stat, "command.Dispatcher.Stat")

	react, err := reactor.New(n.deliverSocket)
	if err != nil {
		return nil, fmt.Errorf("runtime: start reactor: %w", err)
	}
	react.SetMetrics(n.metrics)
	n.react = react

	n.harborHook = harbor.NoopHook{}
	if cfg.Harbor.NATSURL != "" {
		hook, err := harbor.NewNATSHook(harbor.NATSConfig{
			URL:    cfg.Harbor.NATSURL,
			Prefix: cfg.Harbor.Prefix,
			Name:   fmt.Sprintf("actorcored-node-%d", cfg.NodeID),
		})
		if err != nil {
			return nil, fmt.Errorf("runtime: harbor: %w", err)
		}
		if err := hook.Subscribe(cfg.NodeID, n.deliverHarbor); err != nil {
			return nil, fmt.Errorf("runtime: harbor subscribe: %w", err)
		}
		n.harborHook = hook
	}

	store, err := newAuditStore(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("runtime: audit: %w", err)
	}
	if store != nil {
		n.auditWriter = audit.NewWriter(store, 0)
	}

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		Enabled:     cfg.Tracing.Exporter != "" && cfg.Tracing.Exporter != "none",
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: tracing: %w", err)
	}
	n.tracingShutdown = shutdown

	if cfg.Admin.Addr != "" || cfg.Admin.WSAddr != "" {
		n.admin = adminapi.New(adminapi.Config{
			Addr:      cfg.Admin.Addr,
			WSAddr:    cfg.Admin.WSAddr,
			JWTSecret: cfg.Admin.JWTSecret,
		}, n.executeCommand, n.snapshot, n.log)
	}

	return n, nil
}

// newAuditStore builds the Store cfg names, or nil if auditing is
// disabled (the zero-value driver).
func newAuditStore(cfg AuditConfig) (audit.Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "memory":
		return audit.NewMemoryStore(0), nil
	case "sqlite":
		return audit.NewSQLiteStore(cfg.DSN)
	case "postgres":
		return audit.NewPostgresStore(context.Background(), cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.Driver)
	}
}

// RegisterModule makes mod available to LAUNCH under name. Must be called
// before Start bootstraps configured modules.
func (n *Node) RegisterModule(name string, mod actor.Module) {
	n.modulesMu.Lock()
	defer n.modulesMu.Unlock()
	n.modules[name] = mod
}

// Start launches the scheduler, timer wheel, and reactor event loop, then
// bootstraps every module cfg.Bootstrap names.
func (n *Node) Start() error {
	n.sched.Start()
	n.wheel.Run()
	go n.react.Run()
	if n.admin != nil {
		if err := n.admin.Start(); err != nil {
			return fmt.Errorf("runtime: admin surface: %w", err)
		}
	}
	for _, b := range n.cfg.Bootstrap {
		if _, err := n.launchModule(b.Module, b.Args); err != nil {
			return fmt.Errorf("runtime: bootstrap %s: %w", b.Module, err)
		}
	}
	return nil
}

// Stop shuts every subsystem down in dependency order: reactor and timer
// first (stop producing new work), then the scheduler (drain in-flight
// dispatch), then the admin surface, audit writer, and tracing exporter.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.react.Exit()
		n.react.Stop()
		n.wheel.Stop()
		n.sched.Stop()
		if n.admin != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n.admin.Stop(ctx)
			cancel()
		}
		if n.auditWriter != nil {
			n.auditWriter.Stop()
		}
		if n.harborHook != nil {
			n.harborHook.Close()
		}
		if n.tracingShutdown != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n.tracingShutdown(ctx)
			cancel()
		}
	})
}

// serviceContext is the per-service actor.Context handed to Module.Init.
type serviceContext struct {
	node *Node
	self actor.Handle
}

func (c *serviceContext) Self() actor.Handle { return c.self }

func (c *serviceContext) Send(dst actor.Handle, typ actor.Type, session int32, payload []byte, flags actor.SendFlags) error {
	return c.node.Send(c.self, dst, typ, session, payload, flags)
}

func (c *serviceContext) NewSession() int32 {
	svc := c.node.registry.Lookup(c.self)
	if svc == nil {
		return 0
	}
	defer svc.Release()
	return svc.NextSession()
}

func (c *serviceContext) Command(name, arg string) (string, error) {
	return c.node.cmd.Execute(c.self, name, arg)
}

// Send delivers payload from source to dst, locally or via harbor
// depending on dst's node byte (a handle encodes the owning node in its
// high byte).
func (n *Node) Send(source, dst actor.Handle, typ actor.Type, session int32, payload []byte, flags actor.SendFlags) error {
	if flags&actor.FlagAllocSession != 0 {
		if srcSvc := n.registry.Lookup(source); srcSvc != nil {
			session = srcSvc.NextSession()
			srcSvc.Release()
		}
	}
	if len(payload) > actor.MaxPayloadSize {
		return actor.ErrPayloadTooLarge
	}
	if flags&actor.FlagDontCopy == 0 && payload != nil {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		payload = cp
	}

	msg := actor.Message{Source: source, Session: session, Type: typ, Payload: payload}

	if dst.Node() != n.cfg.NodeID {
		return n.harborHook.Send(dst.Node(), dst, msg)
	}
	return n.deliverLocal(dst, msg)
}

func (n *Node) deliverLocal(dst actor.Handle, msg actor.Message) error {
	svc := n.registry.Lookup(dst)
	if svc == nil {
		return fmt.Errorf("runtime: unknown destination %v", dst)
	}
	defer svc.Release()
	if svc.Mailbox == nil {
		return fmt.Errorf("runtime: destination %v has no mailbox", dst)
	}
	if svc.LogFile != nil {
		svc.LogFile.LogMessage("IN", msg.Source.String(), dst.String(), uint8(msg.Type), msg.Session, msg.Payload)
	}
	n.ready.PushMessage(svc.Mailbox, msg)
	if n.metrics != nil {
		n.metrics.MailboxLength.WithLabelValues(dst.String(), moduleNameOf(svc)).Set(float64(svc.Mailbox.Length()))
	}
	return nil
}

// deliverHarbor is harbor.Hook.Subscribe's callback for inbound
// cross-node messages.
func (n *Node) deliverHarbor(dst actor.Handle, msg actor.Message) {
	n.deliverLocal(dst, msg)
}

// deliverSocket is reactor.Deliver: one socket event becomes one
// TypeSocket message to the owning service.
func (n *Node) deliverSocket(owner actor.Handle, typ actor.Type, session int32, payload []byte) {
	n.deliverLocal(owner, actor.Message{Source: actor.InvalidHandle, Session: session, Type: typ, Payload: payload})
}

// deliverTimeout is timer.Deliver: a fired timeout becomes a
// TypeResponse message to the waiting service.
func (n *Node) deliverTimeout(handle actor.Handle, session int32) {
	n.deliverLocal(handle, actor.Message{Source: actor.InvalidHandle, Session: session, Type: actor.TypeResponse})
}

// sendSystem is command.Sender: used by KILL/EXIT to notify an exit
// watcher with a TypeSystem message and by KILL/EXIT/ABORT to drain
// pending callers with TypeError messages.
func (n *Node) sendSystem(dst actor.Handle, typ actor.Type, session int32, payload []byte) error {
	return n.Send(actor.InvalidHandle, dst, typ, session, payload, 0)
}

// launchModule implements command.Launcher, the LAUNCH verb's backing
// call: instantiate, register, wire a mailbox and Context, and run Init.
func (n *Node) launchModule(name string, args []string) (actor.Handle, error) {
	n.modulesMu.RLock()
	mod, ok := n.modules[name]
	n.modulesMu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("runtime: unknown module %q", name)
	}

	instance, err := mod.Create()
	if err != nil {
		return 0, fmt.Errorf("runtime: %s.Create: %w", name, err)
	}

	svc := actor.NewService(mod, instance)
	handle, err := n.registry.Register(svc)
	if err != nil {
		return 0, fmt.Errorf("runtime: register %s: %w", name, err)
	}
	svc.Mailbox = actor.NewMailbox(handle)

	ctx := &serviceContext{node: n, self: handle}
	if err := mod.Init(instance, ctx, args); err != nil {
		n.registry.Retire(handle)
		svc.Mailbox.MarkReleasePending()
		svc.Mailbox.Drain(func(msg actor.Message) {
			if msg.Session != 0 {
				n.sendSystem(msg.Source, actor.TypeError, msg.Session, nil)
			}
		})
		return 0, fmt.Errorf("runtime: %s.Init: %w", name, err)
	}
	svc.MarkInitialized()
	return handle, nil
}

func (n *Node) logOn(h actor.Handle) error {
	svc := n.registry.Lookup(h)
	if svc == nil {
		return fmt.Errorf("runtime: LOGON: unknown handle %v", h)
	}
	defer svc.Release()
	if svc.LogFile != nil {
		return nil
	}
	logger, err := svclog.NewLogger(n.cfg.SvclogDir, h.String())
	if err != nil {
		return err
	}
	svc.LogFile = logger
	return nil
}

func (n *Node) logOff(h actor.Handle) error {
	svc := n.registry.Lookup(h)
	if svc == nil {
		return fmt.Errorf("runtime: LOGOFF: unknown handle %v", h)
	}
	defer svc.Release()
	if svc.LogFile == nil {
		return nil
	}
	err := svc.LogFile.Close()
	svc.LogFile = nil
	return err
}

func (n *Node) signal(target actor.Handle, v int) error {
	svc := n.registry.Lookup(target)
	if svc == nil {
		return fmt.Errorf("runtime: SIGNAL: unknown target %v", target)
	}
	defer svc.Release()
	svc.Module.Signal(svc.Instance(), v)
	return nil
}

// stat answers one STAT sub-query: mqlen, endless, cpu, time, message,
// overload.
func (n *Node) stat(h actor.Handle, which string) (string, error) {
	svc := n.registry.Lookup(h)
	if svc == nil {
		return "", fmt.Errorf("runtime: STAT: unknown handle %v", h)
	}
	defer svc.Release()

	switch which {
	case "mqlen":
		return fmt.Sprintf("%d", svc.Mailbox.Length()), nil
	case "endless":
		if svc.ConsumeEndless() {
			return "1", nil
		}
		return "0", nil
	case "cpu":
		return fmt.Sprintf("%.9f", float64(svc.CPUCost())/1e9), nil
	case "time":
		return fmt.Sprintf("%d", n.wheel.Now()), nil
	case "message":
		return fmt.Sprintf("%d", svc.MessageCount()), nil
	case "overload":
		return fmt.Sprintf("%d", svc.Mailbox.Overload()), nil
	default:
		return "", fmt.Errorf("runtime: STAT: unknown counter %q", which)
	}
}

// executeCommand is adminapi.CommandFunc: it runs one administrative
// command on behalf of the admin surface itself (caller handle zero,
// since no service is asking), logs a correlation id per invocation
// (grounded on the teacher's pkg/core/request_id.go), and records the
// outcome to the audit sink when one is configured (the
// LAUNCH/KILL/NAME/ABORT audit trail).
func (n *Node) executeCommand(name, arg string) (string, error) {
	reqID := uuid.New().String()
	n.log.Infof("admin command %s %q [request %s]", name, arg, reqID)

	result, err := n.cmd.Execute(actor.InvalidHandle, name, arg)

	if n.auditWriter != nil && isAuditedCommand(name) {
		outcome := result
		if err != nil {
			outcome = "error: " + err.Error()
		}
		n.auditWriter.Record(name, arg, outcome)
	}
	return result, err
}

// isAuditedCommand reports whether name is one of the externally visible
// side-effecting verbs that require an audit trail entry.
func isAuditedCommand(name string) bool {
	switch name {
	case "LAUNCH", "KILL", "NAME", "ABORT":
		return true
	default:
		return false
	}
}

// snapshot is adminapi.SnapshotFunc: the live diagnostics payload
// /debug/stream pushes once per second.
func (n *Node) snapshot() adminapi.Snapshot {
	services := n.registry.Services()
	mailboxLengths := make(map[string]int, len(services))
	var endless []string
	for _, svc := range services {
		mailboxLengths[svc.Handle.String()] = svc.Mailbox.Length()
		if svc.Endless() {
			endless = append(endless, svc.Handle.String())
		}
	}
	return adminapi.Snapshot{
		DispatchedTotal: n.sched.Dispatched(),
		MailboxLengths:  mailboxLengths,
		ReactorSlots:    len(services),
		EndlessServices: endless,
	}
}

func moduleNameOf(svc *actor.Service) string {
	return svc.ModuleName()
}

// Registry exposes the registry for reference modules that need to parse
// handles passed to them as arguments (e.g. a gate module forwarding
// accepted connections to a named peer service).
func (n *Node) Registry() *actor.Registry { return n.registry }

// Reactor exposes the socket reactor for reference modules that listen,
// connect, or send over sockets (modules/gate, modules/udpecho).
func (n *Node) Reactor() *reactor.Reactor { return n.react }
