package poa

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_challenges_issued_total",
		Help: "Total proof-of-access challenges issued.",
	})
	challengesSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_challenges_succeeded_total",
		Help: "Total proof-of-access challenges verified successfully.",
	})
	challengesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poa_challenges_failed_total",
		Help: "Total proof-of-access challenges that failed, by reason.",
	}, []string{"reason"})
	nodesBanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_nodes_banned_total",
		Help: "Total storage nodes banned by the engine.",
	})
	daemonOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poa_daemon_online",
		Help: "Whether the local storage daemon is reachable (1) or not (0).",
	})
)
