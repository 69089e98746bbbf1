package encoding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoding_jobs_claimed_total",
		Help: "Total encoding jobs leased to agents.",
	})
	jobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoding_jobs_completed_total",
		Help: "Total encoding jobs completed.",
	})
	jobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoding_jobs_failed_total",
		Help: "Total encoding jobs that failed terminally.",
	})
	jobsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoding_jobs_requeued_total",
		Help: "Total encoding jobs returned to the queue for retry.",
	})
	leasesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoding_leases_expired_total",
		Help: "Total leases recycled by the reaper.",
	})
	webhookFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoding_webhook_failures_total",
		Help: "Total webhook deliveries that did not succeed.",
	})
)
