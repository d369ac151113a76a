package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSubscriber writes each event as a JSON message keyed by asset id, so
// events for one asset land on one partition in order.
type KafkaSubscriber struct {
	writer messageWriter
	topic  string
}

// NewKafkaSubscriber writes to topic on brokers.
func NewKafkaSubscriber(brokers []string, topic string) *KafkaSubscriber {
	return newKafkaSubscriber(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}, topic)
}

func newKafkaSubscriber(w messageWriter, topic string) *KafkaSubscriber {
	return &KafkaSubscriber{writer: w, topic: topic}
}

func (k *KafkaSubscriber) Name() string { return "kafka" }

func (k *KafkaSubscriber) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.AssetID, 10)),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (k *KafkaSubscriber) Close() error {
	return k.writer.Close()
}
