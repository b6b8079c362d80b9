// Package metrics publishes the outcome of a run to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Pusher collects run gauges on a private registry and pushes them.
type Pusher struct {
	url      string
	job      string
	client   push.HTTPDoer
	registry *prometheus.Registry
	services *prometheus.GaugeVec
	duration prometheus.Gauge
	success  prometheus.Gauge
	fullRun  prometheus.Gauge
	logger   *zap.Logger
}

// NewPusher creates a Pusher. An empty url disables pushing.
func NewPusher(url, job string, logger *zap.Logger) *Pusher {
	p := &Pusher{
		url:      url,
		job:      job,
		client:   http.DefaultClient,
		registry: prometheus.NewRegistry(),
		services: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "apisync_services",
			Help: "Services per final state in the last run",
		}, []string{"state"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apisync_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apisync_last_run_success",
			Help: "1 when the last run finished without failures",
		}),
		fullRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apisync_full_reconciliation",
			Help: "1 when the last run reconciled every service",
		}),
		logger: logger,
	}
	p.registry.MustRegister(p.services, p.duration, p.success, p.fullRun)
	return p
}

// Observe records a finished run. A nil report counts as a failed run.
func (p *Pusher) Observe(report *models.RunReport, err error, elapsed time.Duration) {
	p.duration.Set(elapsed.Seconds())
	if report == nil {
		p.success.Set(0)
		return
	}
	p.services.WithLabelValues("created").Set(float64(report.Summary.Created()))
	p.services.WithLabelValues("updated").Set(float64(report.Summary.Updated()))
	p.services.WithLabelValues("skipped").Set(float64(report.Summary.Skipped()))
	p.services.WithLabelValues("failed").Set(float64(report.Summary.Failed()))

	if err == nil && report.Err() == nil {
		p.success.Set(1)
	} else {
		p.success.Set(0)
	}
	if report.Mode == "full" {
		p.fullRun.Set(1)
	} else {
		p.fullRun.Set(0)
	}
}

// Push sends the gauges to the Pushgateway.
func (p *Pusher) Push(ctx context.Context) error {
	if p.url == "" {
		return nil
	}
	err := push.New(p.url, p.job).
		Client(p.client).
		Gatherer(p.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", p.url, err)
	}
	p.logger.Debug("Metrics pushed", zap.String("pushgateway", p.url), zap.String("job", p.job))
	return nil
}
