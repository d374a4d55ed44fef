package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"nft-ticket/utils"
)

var (
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Requests to the chain and pinning APIs",
		},
		[]string{"service", "operation", "code"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Latency of requests to the chain and pinning APIs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	mintOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mint_outcomes_total",
			Help: "Terminal outcomes of polled mint transactions",
		},
		[]string{"outcome"},
	)

	pollAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tx_poll_attempts_total",
			Help: "Transaction status queries issued by pollers",
		},
	)

	activePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tx_pollers_active",
			Help: "Pollers currently waiting on a transaction",
		},
	)

	ticketsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_reconciled_total",
			Help: "Ticket records written by reconciliation",
		},
		[]string{"result"},
	)

	pendingMintJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mint_jobs_pending",
			Help: "Mint jobs not yet in a terminal state",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstream_breaker_state",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open)",
		},
		[]string{"service"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// PendingMintsKey is the Redis set of mint tx ids still being polled.
const PendingMintsKey = "mint:pending"

type Monitor struct {
	redis    *redis.Client
	interval time.Duration
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	return &Monitor{redis: redisClient, interval: 30 * time.Second}
}

// Run samples Redis-backed gauges until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.collect(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	n, err := m.redis.SCard(ctx, PendingMintsKey).Result()
	if err != nil {
		slog.Warn("monitor.collect()", "key", PendingMintsKey, "error", err)
	} else {
		pendingMintJobs.Set(float64(n))
	}
	goroutineCount.Set(float64(runtime.NumGoroutine()))
}

func ObserveUpstream(service, operation, code string, d time.Duration) {
	upstreamRequests.WithLabelValues(service, operation, code).Inc()
	upstreamDuration.WithLabelValues(service, operation).Observe(d.Seconds())
}

func TrackMintOutcome(outcome string) {
	mintOutcomes.WithLabelValues(outcome).Inc()
}

func TrackPollAttempt() {
	pollAttempts.Inc()
}

func PollerStarted() {
	activePollers.Inc()
}

func PollerStopped() {
	activePollers.Dec()
}

func TrackTicketReconciled(duplicate bool) {
	if duplicate {
		ticketsReconciled.WithLabelValues("duplicate").Inc()
		return
	}
	ticketsReconciled.WithLabelValues("created").Inc()
}

// BreakerStateChanged is a utils.BreakerConfig.OnStateChange hook.
func BreakerStateChanged(name string, from, to utils.State) {
	breakerState.WithLabelValues(name).Set(float64(to))
	slog.Warn("circuit breaker state changed", "service", name, "from", from.String(), "to", to.String())
}
