package actor

// Context is what a module's Init sees: the narrow slice of the runtime a
// service is allowed to touch. It is implemented by internal/runtime's
// per-service serviceContext so that internal/actor itself stays free of registry/scheduler/timer
// dependencies (avoiding an import cycle) while still giving modules a
// capability-scoped handle to the runtime.
type Context interface {
	// Self returns the handle of the service this context belongs to.
	Self() Handle

	// Send delivers a message to dst. flags is a bitmask of SendFlags.
	Send(dst Handle, typ Type, session int32, payload []byte, flags SendFlags) error

	// NewSession allocates the next strictly-increasing session id for
	// this service: positive, monotonic, wraps skipping zero.
	NewSession() int32

	// Command runs one administrative command on behalf of
	// this service and returns its string result.
	Command(name, arg string) (string, error)
}
