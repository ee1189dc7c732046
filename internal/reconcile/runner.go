package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/oemhub/identity-broker/pkg/logger"
)

// Runner drives periodic reconciliation passes. It stops when its context
// is cancelled; a pass already in flight finishes first.
type Runner struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

func NewRunner(service *Service, interval time.Duration, lg *slog.Logger) *Runner {
	if lg == nil {
		lg = logger.L()
	}
	return &Runner{
		service:  service,
		interval: interval,
		logger:   lg,
	}
}

func (r *Runner) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("periodic reconciliation disabled")
		return
	}

	r.logger.Info("periodic reconciliation started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.service.Reconcile(ctx); err != nil {
				// transient remote outages are retried on the next tick
				r.logger.Error("reconciliation pass failed", "error", err)
			}
		case <-ctx.Done():
			r.logger.Info("periodic reconciliation stopped")
			return
		}
	}
}
