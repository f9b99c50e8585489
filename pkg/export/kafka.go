// Package export mirrors committed global messages onto a Kafka topic for
// side-effect consumers (the archiver, notification services). It sits
// outside the acknowledgment path: a failed publish never fails the send.
package export

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-core/pkg/model"
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

func (p *Publisher) Publish(ctx context.Context, msg *model.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.ID, 10)),
		Value: value,
		Time:  msg.Timestamp,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
