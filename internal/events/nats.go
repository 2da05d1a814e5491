package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seantiz/relay/internal/model"
)

// publisher is the subset of *nats.Conn used by NATSSink.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on "<prefix>.<kind>", e.g.
// relay.events.step.completed.
type NATSSink struct {
	conn   publisher
	prefix string
}

// NewNATSSink returns a sink publishing on nc under subject prefix.
func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{conn: nc, prefix: prefix}
}

// Subject returns the subject an event of kind is published on.
func (s *NATSSink) Subject(kind model.EventKind) string {
	return s.prefix + "." + string(kind)
}

// Publish encodes ev and publishes it. NATS buffers the message; ctx is not
// consulted.
func (s *NATSSink) Publish(_ context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.conn.Publish(s.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// ConnectNATS dials url with reconnect handling that reports through logger.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("relay"),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}
