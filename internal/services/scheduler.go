package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// SweepConfig controls the background sweeps. A non-positive interval
// disables that sweep.
type SweepConfig struct {
	CascadeInterval time.Duration
	CascadeMinAge   time.Duration
	CascadeBatch    int
	VoucherInterval time.Duration
}

// StartSweeps schedules the pending-cascade re-drive and the voucher expiry
// sweeps. The caller shuts the returned scheduler down.
func (e *Engine) StartSweeps(cfg SweepConfig) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	if cfg.CascadeInterval > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.CascadeInterval),
			gocron.NewTask(func() {
				count, err := e.Redrive(context.Background(), cfg.CascadeMinAge, cfg.CascadeBatch)
				if err != nil {
					e.log.Warn("cascade sweep incomplete", zap.Int("tasks", count), zap.Error(err))
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	if cfg.VoucherInterval > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.VoucherInterval),
			gocron.NewTask(func() {
				expired, err := e.ExpireVouchers(context.Background())
				if err != nil {
					e.log.Error("voucher expiry sweep failed", zap.Error(err))
					return
				}
				if expired > 0 {
					e.log.Info("expired shopping vouchers", zap.Int64("count", expired))
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
