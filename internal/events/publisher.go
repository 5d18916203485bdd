package events

import (
	"context"
	"fmt"

	"github.com/lychee-technology/formflow"
)

// New returns the publisher selected by cfg.Driver. Broker-backed
// publishers are wrapped with Guard.
func New(cfg formflow.EventsConfig) (formflow.EventPublisher, error) {
	switch cfg.Driver {
	case "", formflow.EventsDriverNone:
		return NopPublisher{}, nil
	case formflow.EventsDriverNATS:
		p, err := NewNATSPublisher(cfg.NATSURL, cfg.Topic)
		if err != nil {
			return nil, err
		}
		return Guard(p), nil
	case formflow.EventsDriverKafka:
		return Guard(NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)), nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.Driver)
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

var _ formflow.EventPublisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, formflow.SubmissionEvent) error { return nil }
func (NopPublisher) Close() error                                            { return nil }
