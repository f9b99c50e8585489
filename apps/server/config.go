package main

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all server configuration. ENV vars win over the optional .env
// file, which wins over defaults. Redis, Kafka, Scylla, and JWT are all
// optional collaborators: leave their settings empty and the server runs
// fully in-process.
type Config struct {
	Addr string `env:"CHAT_ADDR" envDefault:":8080"`

	// History
	HistoryCapacity int    `env:"CHAT_HISTORY_CAPACITY" envDefault:"100"`
	ScyllaHosts     string `env:"SCYLLA_HOSTS"` // set to back history with ScyllaDB
	ScyllaKeyspace  string `env:"SCYLLA_KEYSPACE" envDefault:"chat"`

	// Presence mirror
	RedisAddr string `env:"REDIS_ADDR"`

	// Message export
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"chat-messages"`

	// Optional token identity at the transport edge
	JWTSecret string        `env:"CHAT_JWT_SECRET"`
	TokenTTL  time.Duration `env:"CHAT_TOKEN_TTL" envDefault:"24h"`

	// Per-connection send rate limit
	SendRate  float64 `env:"CHAT_SEND_RATE" envDefault:"10"`
	SendBurst int     `env:"CHAT_SEND_BURST" envDefault:"20"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

func loadConfig() (*Config, error) {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) scyllaHostList() []string {
	if c.ScyllaHosts == "" {
		return nil
	}
	return strings.Split(c.ScyllaHosts, ",")
}

func (c *Config) kafkaBrokerList() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	return strings.Split(c.KafkaBrokers, ",")
}
