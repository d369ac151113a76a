package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediapipe/internal/logging"
)

const namespace = "mediapipe"

// Recorder collects pipeline metrics.
type Recorder struct {
	registry *prometheus.Registry

	stageAttempts *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	queueJobs     *prometheus.GaugeVec
	activeJobs    prometheus.Gauge
}

// New builds a Recorder with a private registry that also carries the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		stageAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_attempts_total",
			Help:      "Stage attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a single stage attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 9),
		}, []string{"stage"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_transitions_total",
			Help:      "Applied asset status transitions by target status.",
		}, []string{"status"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Completion event deliveries by subscriber and outcome.",
		}, []string{"subscriber", "outcome"}),
		queueJobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_jobs",
			Help:      "Durable queue jobs by status.",
		}, []string{"status"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently held by workers.",
		}),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// StageAttempt records one stage attempt.
func (r *Recorder) StageAttempt(stage, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageAttempts.WithLabelValues(stage, outcome).Inc()
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Transition records an applied status transition.
func (r *Recorder) Transition(status string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(status).Inc()
}

// Notification records a delivery attempt to one subscriber.
func (r *Recorder) Notification(subscriber string, err error) {
	if r == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	r.notifications.WithLabelValues(subscriber, outcome).Inc()
}

// QueueDepth replaces the per-status job gauges.
func (r *Recorder) QueueDepth(counts map[string]int) {
	if r == nil {
		return
	}
	for status, n := range counts {
		r.queueJobs.WithLabelValues(status).Set(float64(n))
	}
}

// JobStarted and JobFinished track jobs held by workers.
func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.activeJobs.Inc()
}

func (r *Recorder) JobFinished() {
	if r == nil {
		return
	}
	r.activeJobs.Dec()
}

// Serve exposes /metrics on bind until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, bind string, logger *slog.Logger) error {
	if r == nil || bind == "" {
		return nil
	}
	logger = logging.NewComponentLogger(logger, "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics listener started", logging.String("bind", bind))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
