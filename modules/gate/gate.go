// Package gate is a reference service module implementing a connection
// multiplexer: it listens on one TCP address and relays every accepted
// connection's data frames to a single named downstream service, tagging
// each frame with its connection id as the message session (the
// reactor's socket events, fanned out to an ordinary service mailbox
// instead of handled inline). Grounded on the accept/read socket-event handling
// of original_source/skynet-src/socket_server.c; the fan-out-to-an-agent
// shape itself is skynet's well-known "gate" idiom, not present verbatim
// in this pack, so this module documents its own framing rather than
// claiming a specific teacher file for that part.
package gate

import (
	"fmt"

	"github.com/actorcore/actorcored/internal/actor"
	"github.com/actorcore/actorcored/internal/reactor"
)

type Module struct {
	react *reactor.Reactor
}

func New(react *reactor.Reactor) *Module {
	return &Module{react: react}
}

type instance struct {
	react    *reactor.Reactor
	self     actor.Handle
	listenID int32
	target   actor.Handle
	send     func(dst actor.Handle, typ actor.Type, session int32, payload []byte, flags actor.SendFlags) error
}

func (m *Module) Create() (any, error) {
	return &instance{react: m.react}, nil
}

// Init listens on args[0] and relays frames to the service named args[1]
// (resolved once, at startup, via QUERY; args[1] must already be
// registered).
func (m *Module) Init(inst any, ctx actor.Context, args []string) error {
	in := inst.(*instance)
	if len(args) < 2 {
		return fmt.Errorf("gate: expected \"<addr> <target-name>\" args")
	}
	in.self = ctx.Self()
	in.send = ctx.Send

	result, err := ctx.Command("QUERY", args[1])
	if err != nil {
		return fmt.Errorf("gate: resolve target %q: %w", args[1], err)
	}
	target, err := actor.ParseHandle(result)
	if err != nil {
		return fmt.Errorf("gate: target %q not registered", args[1])
	}
	in.target = target

	id, err := in.react.Listen(in.self, args[0])
	if err != nil {
		return fmt.Errorf("gate: listen %s: %w", args[0], err)
	}
	if err := in.react.Start(id); err != nil {
		return fmt.Errorf("gate: start listener: %w", err)
	}
	in.listenID = id
	return nil
}

func (m *Module) Release(inst any) {
	in := inst.(*instance)
	in.react.Close(in.listenID, true)
}

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
			in.react.Start(id)
			in.send(in.target, actor.TypeSystem, id, []byte("connect"), actor.FlagDontCopy)
		case reactor.EventData:
			frame := append([]byte(nil), data...)
			in.send(in.target, actor.TypeClient, id, frame, actor.FlagDontCopy)
		case reactor.EventClose:
			in.send(in.target, actor.TypeSystem, id, []byte("close"), actor.FlagDontCopy)
		}
		return false
	}
}
