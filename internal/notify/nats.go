package notify

import "github.com/nats-io/nats.go"

// NATSBus publishes events to a NATS broker.
type NATSBus struct {
	nc *nats.Conn
}

func NewNATSBus(nc *nats.Conn) *NATSBus { return &NATSBus{nc: nc} }

func (b *NATSBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}
