package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lychee-technology/formflow"
	gokafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() formflow.SubmissionEvent {
	return formflow.SubmissionEvent{
		Type:         formflow.EventSubmissionCreated,
		FormID:       "form-1",
		SubmissionID: "submission_1_abc",
		SubmittedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Data:         map[string]any{"name": "Jo"},
	}
}

type fakeNATS struct {
	subjects []string
	payloads [][]byte
	flushes  int
	drained  bool
	err      error
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeNATS) FlushWithContext(context.Context) error {
	f.flushes++
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeNATS{}
	p := newNATSPublisher(conn, "formflow.submissions")

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, []string{"formflow.submissions.form-1"}, conn.subjects)
	assert.Equal(t, 1, conn.flushes)

	var decoded formflow.SubmissionEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, sampleEvent(), decoded)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestNATSPublisher_Errors(t *testing.T) {
	conn := &fakeNATS{err: errors.New("connection closed")}
	p := newNATSPublisher(conn, "t")
	err := p.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, newNATSPublisher(&fakeNATS{}, "t").Publish(ctx, sampleEvent()), context.Canceled)
}

type fakeWriter struct {
	messages []gokafka.Message
	closed   int
	err      error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...gokafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed++
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "form-1", string(msg.Key))
	assert.Equal(t, []gokafka.Header{{Key: eventTypeHeader, Value: []byte("submission.created")}}, msg.Headers)

	var decoded formflow.SubmissionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "submission_1_abc", decoded.SubmissionID)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{err: errors.New("leader not available")})
	err := p.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNew(t *testing.T) {
	p, err := New(formflow.EventsConfig{Driver: formflow.EventsDriverNone})
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), sampleEvent()))

	p, err = New(formflow.EventsConfig{Driver: formflow.EventsDriverKafka, KafkaBrokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	require.IsType(t, &GuardedPublisher{}, p)
	assert.IsType(t, &KafkaPublisher{}, p.(*GuardedPublisher).next)
	assert.NoError(t, p.Close())

	_, err = New(formflow.EventsConfig{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}
