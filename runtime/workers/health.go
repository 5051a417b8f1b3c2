package workers

import (
	"chat-router/observability"
	"context"
	"log/slog"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthSource is implemented by observability.MonitoringService.
type HealthSource interface {
	Health() observability.Health
}

// StatusSetter is implemented by the gRPC health server.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// HealthWorker keeps the health endpoint in line with the monitoring verdict.
type HealthWorker struct {
	log      *slog.Logger
	source   HealthSource
	setter   StatusSetter
	service  string
	interval time.Duration
	last     observability.HealthStatus
}

func NewHealthWorker(log *slog.Logger, source HealthSource, setter StatusSetter,
	service string, interval time.Duration) *HealthWorker {
	return &HealthWorker{
		log:      log,
		source:   source,
		setter:   setter,
		service:  service,
		interval: interval,
	}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.refresh()
	for {
		select {
		case <-ctx.Done():
			w.setter.SetServingStatus(w.service, healthpb.HealthCheckResponse_NOT_SERVING)
			return nil
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *HealthWorker) refresh() {
	health := w.source.Health()
	status := healthpb.HealthCheckResponse_SERVING
	if health.Status != observability.Healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	w.setter.SetServingStatus(w.service, status)
	if health.Status != w.last {
		w.log.Info("Health changed", "status", health.Status,
			"error_rate", health.ErrorRate, "rss_bytes", health.MemoryRSS)
		w.last = health.Status
	}
}
