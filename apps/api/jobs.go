package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
)

const purgeTimeout = time.Minute

// purgePendingJob returns the job deleting the expired pending enrollments of purger.
func purgePendingJob(purger enrollment.Purger, logger core.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()

		n, err := purger.PurgeExpired(ctx)
		if err != nil {
			logger.Error(fmt.Sprintf("purging pending enrollments: %v", err), err)
			return
		}
		if n > 0 {
			logger.Info(fmt.Sprintf("purged %d expired pending enrollments", n))
		}
	}
}

// newScheduler schedules the periodic jobs. It returns nil when there is nothing to schedule:
// stores expiring records on their own (redis) need no purge.
func newScheduler(conf *core.Config, store enrollment.RecoveryStore, logger core.Logger) (*cron.Cron, error) {
	purger, ok := store.(enrollment.Purger)
	if !ok || conf.Enrollment.PurgeSchedule == "" {
		return nil, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.Enrollment.PurgeSchedule, purgePendingJob(purger, logger)); err != nil {
		return nil, errors.Wrapf(err, "scheduling pending enrollments purge %q", conf.Enrollment.PurgeSchedule)
	}
	return c, nil
}
