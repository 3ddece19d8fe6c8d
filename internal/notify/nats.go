package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// NATSBackend publishes event documents to a NATS subject.
type NATSBackend struct {
	conn    *nats.Conn
	subject string
}

func NewNATSBackend(url, subject string) (*NATSBackend, error) {
	if subject == "" {
		subject = "vaultoss.events"
	}
	conn, err := nats.Connect(url, nats.Name("vaultoss"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return &NATSBackend{conn: conn, subject: subject}, nil
}

func (n *NATSBackend) Name() string {
	return "nats"
}

// Publish returns once the server has acknowledged the flush or ctx is done.
func (n *NATSBackend) Publish(ctx context.Context, payload []byte) error {
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		return n.conn.FlushTimeout(flushTimeout)
	}
	return n.conn.FlushWithContext(ctx)
}

func (n *NATSBackend) Close() error {
	return n.conn.Drain()
}
