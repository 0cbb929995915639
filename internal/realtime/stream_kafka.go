package realtime

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Stream is the outbound event log consumed by analytics.
type Stream interface {
	Emit(ctx context.Context, ev Event, payload []byte) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStream writes events keyed by call id, so one call's events share a
// partition.
type KafkaStream struct {
	w messageWriter
}

func NewKafkaStream(brokers []string, topic string) *KafkaStream {
	return &KafkaStream{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}}
}

func (s *KafkaStream) Emit(ctx context.Context, ev Event, payload []byte) error {
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.Key()),
		Value:   payload,
		Time:    ev.OccurredAt,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(ev.Type)}},
	})
}

func (s *KafkaStream) Close() error {
	return s.w.Close()
}
