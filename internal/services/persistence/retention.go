package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Purger interface {
	PurgeExpired(ctx context.Context, logsBefore, ackAlertsBefore time.Time) (logs, alerts int64, err error)
}

type RetentionConfig struct {
	Interval           time.Duration `yaml:"interval"`
	ActionLogs         time.Duration `yaml:"action_logs"`
	AcknowledgedAlerts time.Duration `yaml:"acknowledged_alerts"`
}

func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		Interval:           time.Hour,
		ActionLogs:         90 * 24 * time.Hour,
		AcknowledgedAlerts: 30 * 24 * time.Hour,
	}
}

// Sweeper periodically deletes expired action logs and acknowledged alerts.
type Sweeper struct {
	store Purger
	cfg   RetentionConfig
	log   *zap.Logger
	now   func() time.Time
}

func NewSweeper(store Purger, cfg RetentionConfig, log *zap.Logger) *Sweeper {
	def := DefaultRetention()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ActionLogs <= 0 {
		cfg.ActionLogs = def.ActionLogs
	}
	if cfg.AcknowledgedAlerts <= 0 {
		cfg.AcknowledgedAlerts = def.AcknowledgedAlerts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{store: store, cfg: cfg, log: log, now: time.Now}
}

func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now().UTC()
	logs, alerts, err := s.store.PurgeExpired(ctx, now.Add(-s.cfg.ActionLogs), now.Add(-s.cfg.AcknowledgedAlerts))
	if err != nil {
		s.log.Error("retention sweep failed", zap.Error(err))
		return
	}
	if logs > 0 || alerts > 0 {
		s.log.Info("retention sweep", zap.Int64("action_logs", logs), zap.Int64("alerts", alerts))
	}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx)
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}
