package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"credits/internal/events"
)

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) PublishEntry(ctx context.Context, event events.EntryCommitted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Entry.AccountID),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
