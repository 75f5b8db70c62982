package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrialsSimulated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chamberodds_trials_simulated_total",
			Help: "Total Monte Carlo trials simulated",
		},
		[]string{"chamber", "method"},
	)

	SimulationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chamberodds_simulation_duration_seconds",
			Help:    "Duration of one chamber ensemble in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"chamber", "method"},
	)

	NeutralSeats = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chamberodds_neutral_seats",
			Help: "Seats in the latest current-day run with no usable signal",
		},
		[]string{"chamber"},
	)

	ControlProbability = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chamberodds_control_probability",
			Help: "Latest current-day Democratic control probability",
		},
		[]string{"chamber"},
	)

	SeriesDays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chamberodds_series_days_total",
			Help: "Historical dates replayed by the time-series engine",
		},
		[]string{"chamber"},
	)

	PollAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chamberodds_poll_api_calls_total",
			Help: "Total poll API calls",
		},
		[]string{"status"},
	)

	PollAPILatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chamberodds_poll_api_latency_seconds",
			Help:    "Poll API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PollRangeSplits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chamberodds_poll_range_splits_total",
			Help: "Poll fetch ranges split after exhausting retries",
		},
	)

	PollsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chamberodds_polls_rejected_total",
			Help: "Poll rows dropped by validation",
		},
		[]string{"flag"},
	)
)
