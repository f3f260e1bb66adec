package oauth

import "github.com/prometheus/client_golang/prometheus"

var (
	exchangeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airthings_oauth_exchange_total",
			Help: "Client-credentials token exchanges by result",
		},
		[]string{"provider", "result"},
	)
	tokenValid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "airthings_oauth_token_valid",
			Help: "1 while a cached access token is usable",
		},
		[]string{"provider"},
	)
	tokenExpiry = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "airthings_oauth_token_expiry_timestamp_seconds",
			Help: "Expiry of the cached access token (epoch seconds)",
		},
		[]string{"provider"},
	)
)

func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{exchangeTotal, tokenValid, tokenExpiry}
}
