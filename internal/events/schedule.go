package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const redeliveryTimeout = 30 * time.Second

// ScheduleRedelivery registers a cron job that retries failed deliveries.
func ScheduleRedelivery(c *cron.Cron, d *Dispatcher, spec string, logger *slog.Logger) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if d.Pending() == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), redeliveryTimeout)
		defer cancel()
		if remaining := d.Redeliver(ctx); remaining > 0 {
			logger.Warn("event redelivery incomplete", "remaining", remaining)
		}
	})
}
