// Package sweep runs a periodic scan of every pool's quota and hands each
// Alert to a caller-supplied sink as a standing background daemon, without
// changing pkg/quota's pure semantics.
package sweep

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/metrics"
	"github.com/hodei/orchestrator/pkg/quota"
)

// AlertSink receives every Alert found during a sweep, tagged by pool id.
type AlertSink func(poolID string, alert quota.Alert)

// Sweeper periodically scans a quota.Manager's pools for violations and
// soft-threshold crossings, forwarding every Alert to a sink.
type Sweeper struct {
	manager *quota.Manager
	thresholds quota.Thresholds
	sink AlertSink
	cron *cron.Cron
	logger zerolog.Logger
}

// DefaultSchedule runs the sweep once a minute.
const DefaultSchedule = "@every 1m"

func New(manager *quota.Manager, thresholds quota.Thresholds, sink AlertSink) *Sweeper {
	return &Sweeper{
		manager: manager,
		thresholds: thresholds,
		sink: sink,
		cron: cron.New(),
		logger: log.WithComponent("quota-sweep"),
	}
}

// Start schedules the sweep and begins running it in the background.
// Callers stop it via Stop; ctx cancellation alone does not unschedule it.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	_, err := s.cron.AddFunc(schedule, func() { s.sweepOnce(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	for poolID, q := range s.manager.All() {
		alerts := q.Alerts(s.thresholds)
		for _, alert := range alerts {
			s.logger.Debug().Str("pool_id", poolID).Str("resource", alert.Resource).
				Str("severity", string(alert.Severity)).Str("action", string(alert.Action)).Msg("quota alert")
			metrics.QuotaAlertsTotal.WithLabelValues(poolID).Inc()
			if s.sink != nil {
				s.sink(poolID, alert)
			}
		}
	}
}
