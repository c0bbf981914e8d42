package stream

import (
	"context"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/segmentio/kafka-go"
)

// KafkaSource consumes stock-update events published on a Kafka topic.
type KafkaSource struct {
	brokers []string
	topic   string
	groupID string
}

func NewKafkaSource(brokers []string, topic, groupID string) *KafkaSource {
	return &KafkaSource{brokers: brokers, topic: topic, groupID: groupID}
}

func (s *KafkaSource) Name() string { return "kafka" }

func (s *KafkaSource) Open(ctx context.Context) (inventory.Stream, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.brokers,
		Topic:    s.topic,
		GroupID:  s.groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &kafkaStream{reader: r}, nil
}

type kafkaStream struct {
	reader *kafka.Reader
}

func (s *kafkaStream) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		return nil, err
	}
	return msg.Value, nil
}

func (s *kafkaStream) Close() error {
	return s.reader.Close()
}
