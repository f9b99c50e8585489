package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections",
		Help: "Currently open websocket connections.",
	})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Messages accepted by the router, by scope.",
	}, []string{"scope"})

	acksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_acks_total",
		Help: "Acknowledgments sent to origin connections, by outcome.",
	}, []string{"status"})
)
