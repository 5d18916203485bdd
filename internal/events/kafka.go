package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lychee-technology/formflow"
	gokafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const eventTypeHeader = "formflow-event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...gokafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by form id, so the
// submissions of one form keep their order within a partition.
type KafkaPublisher struct {
	writer messageWriter
	once   sync.Once
}

var _ formflow.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	zap.S().Infow("kafka publisher started", "brokers", brokers, "topic", topic)
	return newKafkaPublisher(&gokafka.Writer{
		Addr:                   gokafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &gokafka.Hash{},
		AllowAutoTopicCreation: true,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event formflow.SubmissionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := gokafka.Message{
		Key:   []byte(event.FormID),
		Value: value,
		Headers: []gokafka.Header{
			{Key: eventTypeHeader, Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("error publishing message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	var err error
	p.once.Do(func() {
		err = p.writer.Close()
	})
	return err
}
