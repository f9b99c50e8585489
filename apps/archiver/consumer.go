package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-core/pkg/history"
	"github.com/mahaj/chat-core/pkg/model"
)

type consumer struct {
	reader *kafka.Reader
	store  *history.ScyllaStore
	log    zerolog.Logger
}

func newConsumer(brokers []string, topic, groupID string, session *gocql.Session, log zerolog.Logger) *consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &consumer{reader: r, store: history.NewScyllaStore(session), log: log}
}

func (c *consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn().Err(err).Msg("read failed, retrying in 1s")
			time.Sleep(1 * time.Second)
			continue
		}

		var msg model.Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			c.log.Warn().Err(err).Msg("unmarshal failed, skipping")
			continue
		}

		// The export only carries global messages, but a private one
		// slipping through must never land in shared history.
		if msg.Private {
			c.log.Warn().Int64("id", msg.ID).Msg("skipping private message")
			continue
		}

		if err := c.store.Append(ctx, &msg); err != nil {
			c.log.Error().Err(err).Int64("id", msg.ID).Msg("persist failed")
			continue
		}
		c.log.Debug().Int64("id", msg.ID).Msg("message archived")
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}
