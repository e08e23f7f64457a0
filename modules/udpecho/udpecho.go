// Package udpecho is a reference service module implementing a UDP
// round-trip scenario: bind an ephemeral UDP socket and answer
// every inbound datagram with a fixed reply, echoing the peer address the
// reactor appended to the event payload. Grounded on
// original_source/skynet-src/socket_server.c's UDP read/send path
// (recvfrom + sendto with a raw sockaddr), expressed here against
// internal/reactor's net.UDPAddr-based Go rendition of the same thing.
package udpecho

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
	react *reactor.Reactor
	self  actor.Handle
	id    int32
}

func (m *Module) Create() (any, error) {
	return &instance{react: m.react}, nil
}

// Init binds a UDP socket to args[0] (empty string picks an ephemeral
// unbound socket, for outbound-only use).
func (m *Module) Init(inst any, ctx actor.Context, args []string) error {
	in := inst.(*instance)
	in.self = ctx.Self()

	addr := ""
	if len(args) > 0 {
		addr = args[0]
	}
	id, err := in.react.UDPListen(in.self, addr)
	if err != nil {
		return fmt.Errorf("udpecho: udp listen %s: %w", addr, err)
	}
	in.id = id
	return nil
}

func (m *Module) Release(inst any) {
	in := inst.(*instance)
	in.react.Close(in.id, true)
}

func (m *Module) Signal(inst any, n int) {}

func (m *Module) Dispatch(inst any) actor.Callback {
	in := inst.(*instance)
	return func(typ actor.Type, session int32, source actor.Handle, payload []byte) bool {
		if typ != actor.TypeSocket {
			return false
		}
		kind, id, raw, err := reactor.DecodeEnvelope(payload)
		if err != nil || kind != reactor.EventUDP {
			return false
		}
		_, addr, err := reactor.SplitUDPEvent(raw)
		if err != nil {
			return false
		}
		in.react.SendUDP(id, addr, []byte("PONG"))
		return false
	}
}
