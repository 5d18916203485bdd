package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lychee-technology/formflow"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes events on <topic>.<formId>.
type NATSPublisher struct {
	conn  natsConn
	topic string
}

var _ formflow.EventPublisher = (*NATSPublisher)(nil)

func NewNATSPublisher(url, topic string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("formflow"))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats server %s: %w", url, err)
	}
	zap.S().Infow("nats publisher connected", "url", url, "topic", topic)
	return newNATSPublisher(nc, topic), nil
}

func newNATSPublisher(conn natsConn, topic string) *NATSPublisher {
	return &NATSPublisher{conn: conn, topic: topic}
}

func (p *NATSPublisher) Subject(formID string) string {
	return p.topic + "." + formID
}

// Publish sends the event and waits until the server has received it.
func (p *NATSPublisher) Publish(ctx context.Context, event formflow.SubmissionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.FormID), data); err != nil {
		return fmt.Errorf("error publishing message: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("error flushing nats connection: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
