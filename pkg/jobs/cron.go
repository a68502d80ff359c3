package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/logger"
	"github.com/jordanlanch/salespilot/pkg/scheduler"
	"github.com/jordanlanch/salespilot/pkg/scoring"
)

// CronManager manages scheduled maintenance jobs: the nightly tenant-wide
// rescore and the stale-claim recovery sweep.
type CronManager struct {
	cron    *cron.Cron
	scoring *scoring.Service
	tenants domain.TenantSource
	pool    *scheduler.Pool
	log     logger.Logger
}

// NewCronManager creates a new cron manager.
func NewCronManager(scoringService *scoring.Service, tenants domain.TenantSource, pool *scheduler.Pool, log logger.Logger) *CronManager {
	return &CronManager{
		cron:    cron.New(),
		scoring: scoringService,
		tenants: tenants,
		pool:    pool,
		log:     log,
	}
}

// SetupJobs configures all scheduled jobs.
func (cm *CronManager) SetupJobs() error {
	// Every minute: return steps stuck in PROCESSING to PENDING.
	_, err := cm.cron.AddFunc("* * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cm.pool.ReclaimStale(ctx)
	})
	if err != nil {
		return err
	}

	// Daily at 3 AM: rescore every lead of every tenant. Engagement
	// recency decays even when nothing else changes.
	_, err = cm.cron.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		tenantIDs, err := cm.tenants.ListTenantIDs(ctx)
		if err != nil {
			cm.log.Error("nightly rescore failed to list tenants", "error", err)
			return
		}

		for _, tenantID := range tenantIDs {
			result, err := cm.scoring.RecomputeBatch(ctx, tenantID)
			if err != nil {
				cm.log.Error("nightly rescore failed for tenant", "tenant_id", tenantID, "error", err)
				continue
			}
			cm.log.Info("nightly rescore completed",
				"tenant_id", tenantID, "scored", result.Scored, "failed", result.Failed)
		}
	})
	if err != nil {
		return err
	}

	cm.log.Info("cron jobs configured",
		"jobs", []string{"reclaim stale steps (every minute)", "nightly rescore (03:00)"})
	return nil
}

// Start starts the cron scheduler.
func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop stops the cron scheduler.
func (cm *CronManager) Stop() {
	cm.cron.Stop()
}
