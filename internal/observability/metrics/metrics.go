// Package metrics exposes Prometheus collectors for the daily cycle, the
// supervisor and the status API.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "faucetpilot"

var (
	registry = prometheus.NewRegistry()

	actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "Attempted cycle actions by action and result.",
	}, []string{"action", "result"})

	actionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "action_duration_seconds",
		Help:      "Duration of cycle actions including confirmation waits.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 180},
	}, []string{"action"})

	cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Terminal cycle signals by status.",
	}, []string{"status"})

	cycleRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycle_retries_total",
		Help:      "Cycles restarted from the first state after an escaping error.",
	})

	unitsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "units_running",
		Help:      "Account execution units currently running.",
	})

	rollovers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rollovers_total",
		Help:      "Accounts minted at the daily reset.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Status API requests.",
	}, []string{"handler", "method", "code"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Status API latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})
)

func init() {
	registry.MustRegister(
		actionsTotal, actionDuration, cyclesTotal, cycleRetries,
		unitsRunning, rollovers, httpRequests, httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveAction records one attempted cycle action.
func ObserveAction(action string, succeeded bool, duration time.Duration) {
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	actionsTotal.WithLabelValues(action, result).Inc()
	actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveCycle records a terminal signal emitted by an execution unit.
func ObserveCycle(status string) {
	cyclesTotal.WithLabelValues(status).Inc()
}

// ObserveRetry counts a cycle restarted after backoff.
func ObserveRetry() { cycleRetries.Inc() }

// ObserveRollover counts a minted replacement account.
func ObserveRollover() { rollovers.Inc() }

// UnitStarted and UnitStopped track running execution units.
func UnitStarted() { unitsRunning.Inc() }

// UnitStopped 见 UnitStarted。
func UnitStopped() { unitsRunning.Dec() }

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Gatherer returns the registry backing Handler.
func Gatherer() prometheus.Gatherer { return registry }

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
