// The archiver consumes exported global messages from Kafka and persists
// them to ScyllaDB, giving deployments a durable history collaborator behind
// the same read shape the in-memory store serves.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-core/pkg/history"
)

type config struct {
	KafkaBrokers  string `env:"KAFKA_BROKERS" envDefault:"localhost:19092"`
	KafkaTopic    string `env:"KAFKA_TOPIC" envDefault:"chat-messages"`
	ConsumerGroup string `env:"KAFKA_CONSUMER_GROUP" envDefault:"chat-archiver"`
	ScyllaHosts   string `env:"SCYLLA_HOSTS" envDefault:"localhost:9042"`
	Keyspace      string `env:"SCYLLA_KEYSPACE" envDefault:"chat"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	_ = godotenv.Load()

	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load failed")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	hosts := strings.Split(cfg.ScyllaHosts, ",")

	// Schema creation needs a session without the keyspace first. In
	// production this belongs to a migration tool.
	sysSession, err := history.NewScyllaSession(hosts, "system")
	if err != nil {
		log.Fatal().Err(err).Msg("scylla connect failed")
	}
	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS ` + cfg.Keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		log.Fatal().Err(err).Msg("keyspace create failed")
	}
	sysSession.Close()

	session, err := history.NewScyllaSession(hosts, cfg.Keyspace)
	if err != nil {
		log.Fatal().Err(err).Msg("scylla connect failed")
	}
	defer session.Close()

	err = session.Query(`CREATE TABLE IF NOT EXISTS messages (
		room text,
		id bigint,
		sender_id text,
		sender text,
		content text,
		timestamp timestamp,
		PRIMARY KEY (room, id)
	) WITH CLUSTERING ORDER BY (id DESC)`).Exec()
	if err != nil {
		log.Fatal().Err(err).Msg("table create failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := newConsumer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic, cfg.ConsumerGroup, session, log)
	defer consumer.Close()

	log.Info().Str("topic", cfg.KafkaTopic).Str("group", cfg.ConsumerGroup).Msg("archiver starting")
	consumer.Consume(ctx)
}
