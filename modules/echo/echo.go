// Package echo is a reference service module implementing a TCP echo
// scenario: listen, accept, and write every received chunk back
// to its sender. Grounded on original_source/skynet-src/socket_server.c's
// accept-then-echo pattern, expressed here against internal/reactor's Go
// rendition of the same socket state machine.
package echo

import (
	"fmt"
	"sync"

	"github.com/actorcore/actorcored/internal/actor"
	"github.com/actorcore/actorcored/internal/reactor"
)

// Module is an actor.Module factory for TCP echo services. One Module
// value can back any number of LAUNCH'd instances; react is shared, each
// instance gets its own listener and connection set.
type Module struct {
	react *reactor.Reactor
}

// New wires Module to the process's socket reactor.
func New(react *reactor.Reactor) *Module {
	return &Module{react: react}
}

type instance struct {
	react    *reactor.Reactor
	self     actor.Handle
	listenID int32

	mu    sync.Mutex
	conns map[int32]struct{}
}

func (m *Module) Create() (any, error) {
	return &instance{react: m.react, conns: make(map[int32]struct{})}, nil
}

// Init listens on args[0] (default "127.0.0.1:0") and starts accepting.
func (m *Module) Init(inst any, ctx actor.Context, args []string) error {
	in := inst.(*instance)
	in.self = ctx.Self()

	addr := "127.0.0.1:0"
	if len(args) > 0 && args[0] != "" {
		addr = args[0]
	}

	id, err := in.react.Listen(in.self, addr)
	if err != nil {
		return fmt.Errorf("echo: listen %s: %w", addr, err)
	}
	if err := in.react.Start(id); err != nil {
		return fmt.Errorf("echo: start listener: %w", err)
	}
	in.listenID = id
	return nil
}

func (m *Module) Release(inst any) {
	in := inst.(*instance)
	in.mu.Lock()
	conns := make([]int32, 0, len(in.conns))
	for id := range in.conns {
		conns = append(conns, id)
	}
	in.mu.Unlock()
	for _, id := range conns {
		in.react.Close(id, true)
	}
	in.react.Close(in.listenID, true)
}

// Signal is unused by this module.
func (m *Module) Signal(inst any, n int) {}

func (m *Module) Dispatch(inst any) actor.Callback {
	in := inst.(*instance)
	return func(typ actor.Type, session int32, source actor.Handle, payload []byte) bool {
		if typ != actor.TypeSocket {
			return false
		}
		kind, id, data, err := reactor.DecodeEnvelope(payload)
		if err != nil {
			return false
		}
		switch kind {
		case reactor.EventAccept:
			in.mu.Lock()
			in.conns[id] = struct{}{}
			in.mu.Unlock()
			in.react.Start(id)
		case reactor.EventData:
			in.react.Send(id, append([]byte(nil), data...), false)
		case reactor.EventClose:
			in.mu.Lock()
			delete(in.conns, id)
			in.mu.Unlock()
		}
		return false
	}
}
