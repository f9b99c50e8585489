package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-core/pkg/auth"
	"github.com/mahaj/chat-core/pkg/export"
	"github.com/mahaj/chat-core/pkg/history"
	"github.com/mahaj/chat-core/pkg/presence"
	"github.com/mahaj/chat-core/pkg/router"
	"github.com/mahaj/chat-core/pkg/snowflake"
)

// app wires the messaging core to its transports and optional collaborators.
type app struct {
	cfg      *Config
	log      zerolog.Logger
	router   *router.Router
	registry *presence.Registry
	store    history.Store
	issuer   *auth.Issuer
	mux      *http.ServeMux
}

func newApp(cfg *Config, log zerolog.Logger) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		registry: presence.NewRegistry(),
	}

	if hosts := cfg.scyllaHostList(); hosts != nil {
		session, err := history.NewScyllaSession(hosts, cfg.ScyllaKeyspace)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, session.Close)
		a.store = history.NewScyllaStore(session)
		log.Info().Strs("hosts", hosts).Msg("history backed by ScyllaDB")
	} else {
		a.store = history.NewMemoryStore(cfg.HistoryCapacity)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, cleanup, err
	}

	opts := []router.Option{router.WithLogger(log)}

	if cfg.RedisAddr != "" {
		mirror := presence.NewRedisMirror(cfg.RedisAddr)
		closers = append(closers, func() { mirror.Close() })
		opts = append(opts, router.WithMirror(mirror))
		log.Info().Str("addr", cfg.RedisAddr).Msg("presence mirrored to Redis")
	}

	if brokers := cfg.kafkaBrokerList(); brokers != nil {
		publisher := export.NewPublisher(brokers, cfg.KafkaTopic)
		closers = append(closers, func() { publisher.Close() })
		opts = append(opts, router.WithSink(publisher))
		log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("global messages exported to Kafka")
	}

	if cfg.JWTSecret != "" {
		a.issuer = auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	}

	a.router = router.New(a.store, a.registry, node, opts...)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.serveWs)
	mux.Handle("/api/messages", corsMiddleware(http.HandlerFunc(a.handleMessages)))
	mux.Handle("/api/users", corsMiddleware(http.HandlerFunc(a.handleUsers)))
	if a.issuer != nil {
		mux.Handle("/api/login", corsMiddleware(http.HandlerFunc(a.handleLogin)))
	}
	mux.Handle("/metrics", promhttp.Handler())
	a.mux = mux

	return a, cleanup, nil
}

func setupLogger(cfg *Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load failed")
	}
	log := setupLogger(cfg)

	a, cleanup, err := newApp(cfg, log)
	defer cleanup()
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.router.Run(ctx)

	srv := &http.Server{Addr: cfg.Addr, Handler: a.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Addr).Msg("chat server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("chat server stopped")
}
