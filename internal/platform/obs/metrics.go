package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_operation_duration_seconds",
			Help:    "Duration of timed service and adapter operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	RoutePlansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_route_plans_total",
			Help: "Total number of route plans computed",
		},
	)

	BlocksMinedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_ledger_blocks_mined_total",
			Help: "Total number of ledger blocks sealed",
		},
	)

	MiningFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_ledger_mining_failures_total",
			Help: "Total number of failed or timed out sealing attempts",
		},
	)

	MiningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_ledger_mining_duration_seconds",
			Help:    "Time spent sealing a ledger block",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	ComplianceAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_compliance_alerts_total",
			Help: "Total number of compliance alerts raised",
		},
		[]string{"type", "severity"},
	)

	WalletRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_wallet_rejections_total",
			Help: "Total number of driver assignments rejected by the wallet ceiling",
		},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(OperationDuration)
		prometheus.MustRegister(RoutePlansTotal)
		prometheus.MustRegister(BlocksMinedTotal)
		prometheus.MustRegister(MiningFailuresTotal)
		prometheus.MustRegister(MiningDuration)
		prometheus.MustRegister(ComplianceAlertsTotal)
		prometheus.MustRegister(WalletRejectionsTotal)
	})
}
