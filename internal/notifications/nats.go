package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn is the part of *nats.Conn the subscriber uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSSubscriber publishes each event as JSON on a subject.
type NATSSubscriber struct {
	conn    natsConn
	subject string
}

// DialNATS connects to url and publishes to subject.
func DialNATS(url, subject string) (*NATSSubscriber, error) {
	nc, err := nats.Connect(url,
		nats.Name("mediapipe"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return newNATSSubscriber(nc, subject), nil
}

func newNATSSubscriber(conn natsConn, subject string) *NATSSubscriber {
	return &NATSSubscriber{conn: conn, subject: subject}
}

func (s *NATSSubscriber) Name() string { return "nats" }

// Notify publishes the event and waits for the server to acknowledge the flush.
func (s *NATSSubscriber) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", s.subject, err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSSubscriber) Close() error {
	return s.conn.Drain()
}
