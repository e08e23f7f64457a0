package harbor

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/actorcore/actorcored/internal/actor"
)

// NATSConfig configures the NATS-backed harbor, grounded on the teacher's
// pkg/core/eventbus_cluster_nats.go ClusterNATSConfig.
type NATSConfig struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222".
	URL string
	// Prefix is prepended to every harbor subject. Default: "actorcored".
	Prefix string
	// Name is an optional NATS connection name.
	Name string
}

// wireMessage is the JSON envelope carried over a harbor subject,
// mirroring actor.Message's fields one-for-one.
type wireMessage struct {
	Source  uint32 `json:"source"`
	Session int32  `json:"session"`
	Type    uint8  `json:"type"`
	Handle  uint32 `json:"handle"`
	Payload []byte `json:"payload"`
}

// NATSHook is a Hook backed by nats.go, one subject per node:
// "<prefix>.harbor.<node-id>". Grounded on the teacher's
// clusterNATSEventBus (pkg/core/eventbus_cluster_nats.go): same
// connect-once-subscribe-per-address shape, narrowed from a generic
// pub/sub event bus down to harbor's single send-to-node operation.
type NATSHook struct {
	nc     *nats.Conn
	prefix string
	sub    *nats.Subscription
}

// NewNATSHook dials url and prepares the hook; call Subscribe once to
// start receiving for the local node.
func NewNATSHook(cfg NATSConfig) (*NATSHook, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "actorcored"
	}
	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("harbor: nats connect: %w", err)
	}
	return &NATSHook{nc: nc, prefix: prefix}, nil
}

func (h *NATSHook) subject(node uint8) string {
	return fmt.Sprintf("%s.harbor.%d", h.prefix, node)
}

func (h *NATSHook) Send(dstNode uint8, handle actor.Handle, msg actor.Message) error {
	wm := wireMessage{
		Source:  uint32(msg.Source),
		Session: msg.Session,
		Type:    uint8(msg.Type),
		Handle:  uint32(handle),
		Payload: msg.Payload,
	}
	data, err := json.Marshal(wm)
	if err != nil {
		return fmt.Errorf("harbor: encode: %w", err)
	}
	return h.nc.Publish(h.subject(dstNode), data)
}

func (h *NATSHook) Subscribe(nodeID uint8, deliver func(actor.Handle, actor.Message)) error {
	sub, err := h.nc.Subscribe(h.subject(nodeID), func(nm *nats.Msg) {
		var wm wireMessage
		if err := json.Unmarshal(nm.Data, &wm); err != nil {
			return
		}
		deliver(actor.Handle(wm.Handle), actor.Message{
			Source:  actor.Handle(wm.Source),
			Session: wm.Session,
			Type:    actor.Type(wm.Type),
			Payload: wm.Payload,
		})
	})
	if err != nil {
		return fmt.Errorf("harbor: subscribe: %w", err)
	}
	h.sub = sub
	return nil
}

func (h *NATSHook) Close() error {
	if h.sub != nil {
		_ = h.sub.Unsubscribe()
	}
	return h.nc.Drain()
}
