// Package harbor implements cross-node message delivery, the pluggable
// collaborator layered on top of the single-hook remote-delivery design.
// The runtime calls Send whenever a destination
// handle's node id differs from the local node; Subscribe registers the
// local node's inbound callback.
package harbor

import "github.com/actorcore/actorcored/internal/actor"

// Hook is the cross-node transport collaborator. Disabled deployments get
// NoopHook; enabled ones get a NATSHook.
type Hook interface {
	// Send delivers msg to handle on node dstNode.
	Send(dstNode uint8, handle actor.Handle, msg actor.Message) error

	// Subscribe registers deliver as the callback for messages addressed
	// to nodeID, invoked once per inbound message. Subscribe is called
	// once at startup with the local node's id.
	Subscribe(nodeID uint8, deliver func(actor.Handle, actor.Message)) error

	// Close releases the hook's transport resources.
	Close() error
}

// ErrUnknownDestination is returned by NoopHook.Send, matching the
// single-node default: a handle whose node differs from the local node
// is simply an unknown destination when no harbor transport is wired up.
var ErrUnknownDestination = errUnknownDestination{}

type errUnknownDestination struct{}

func (errUnknownDestination) Error() string { return "harbor: unknown destination (no harbor hook configured)" }

// NoopHook is the zero-configuration fallback: every send fails as an
// unknown destination, and Subscribe is a no-op. This is what a
// single-node deployment runs with harbor disabled in config.
type NoopHook struct{}

func (NoopHook) Send(uint8, actor.Handle, actor.Message) error { return ErrUnknownDestination }
func (NoopHook) Subscribe(uint8, func(actor.Handle, actor.Message)) error { return nil }
func (NoopHook) Close() error { return nil }
