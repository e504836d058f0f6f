// Package metrics exposes run, step and wait counters on the default
// Prometheus registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by runs and steps.
var outcomes = []string{"success", "failure", "cancelled"}

var (
	initOnce sync.Once

	runsTotalCounter    *prometheus.CounterVec
	stepsTotalCounter   *prometheus.CounterVec
	stepDurationMetric  prometheus.Histogram
	waitDurationMetric  *prometheus.HistogramVec
	waitSamplesCounter  prometheus.Counter
	runsInFlightGauge   prometheus.Gauge
	runDurationMetric   prometheus.Histogram
	runsRejectedCounter prometheus.Counter
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		runsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uiwalk_runs_total",
				Help: "Total number of recipe runs by outcome.",
			},
			[]string{"outcome"},
		)

		stepsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uiwalk_steps_total",
				Help: "Total number of finished steps by outcome.",
			},
			[]string{"outcome"},
		)

		stepDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uiwalk_step_duration_seconds",
				Help:    "Duration of steps including waits and settle delays.",
				Buckets: prometheus.DefBuckets,
			},
		)

		waitDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uiwalk_wait_duration_seconds",
				Help:    "Duration of condition waits by result.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
			},
			[]string{"result"},
		)

		waitSamplesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "uiwalk_wait_samples_total",
				Help: "Total number of condition samples taken.",
			},
		)

		runsInFlightGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "uiwalk_runs_in_flight",
				Help: "Number of runs currently executing.",
			},
		)

		runDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uiwalk_run_duration_seconds",
				Help:    "Duration of recipe runs in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		runsRejectedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "uiwalk_runs_rejected_total",
				Help: "Total number of runs rejected because another run was active.",
			},
		)

		prometheus.MustRegister(
			runsTotalCounter,
			stepsTotalCounter,
			stepDurationMetric,
			waitDurationMetric,
			waitSamplesCounter,
			runsInFlightGauge,
			runDurationMetric,
			runsRejectedCounter,
		)

		for _, outcome := range outcomes {
			runsTotalCounter.WithLabelValues(outcome)
			stepsTotalCounter.WithLabelValues(outcome)
		}
		for _, result := range []string{"satisfied", "timeout", "cancelled"} {
			waitDurationMetric.WithLabelValues(result)
		}
	})
}

func IncRunOutcome(outcome string) {
	Init()
	runsTotalCounter.WithLabelValues(outcome).Inc()
}

func IncStepOutcome(outcome string) {
	Init()
	stepsTotalCounter.WithLabelValues(outcome).Inc()
}

func ObserveStepDuration(d time.Duration) {
	Init()
	stepDurationMetric.Observe(d.Seconds())
}

// ObserveWait records one finished wait and its sample count.
func ObserveWait(result string, d time.Duration, samples int) {
	Init()
	waitDurationMetric.WithLabelValues(result).Observe(d.Seconds())
	waitSamplesCounter.Add(float64(samples))
}

func ObserveRunDuration(d time.Duration) {
	Init()
	runDurationMetric.Observe(d.Seconds())
}

// RunStarted increments the in-flight gauge and returns its decrement.
func RunStarted() func() {
	Init()
	runsInFlightGauge.Inc()
	return runsInFlightGauge.Dec
}

func IncRunsRejected() {
	Init()
	runsRejectedCounter.Inc()
}
