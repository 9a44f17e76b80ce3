package app

import (
	"context"
	"fmt"
	"strings"

	"orderbot/internal/config"
	logx "orderbot/pkg/logx"
)

const broadcastSchedulePrefix = "broadcast@"

// registerBroadcasts replaces the daily broadcast entries with one per configured time.
func (a *App) registerBroadcasts(bc config.BroadcastConfig) error {
	a.sched.RemovePrefix(broadcastSchedulePrefix)
	if !bc.IsEnabled() {
		a.log.Info("scheduled broadcast disabled")
		return nil
	}
	for _, at := range bc.Times {
		at = strings.TrimSpace(at)
		if err := a.sched.AddDaily(broadcastSchedulePrefix+at, at, 0, a.scheduledBroadcast); err != nil {
			return fmt.Errorf("schedule broadcast at %s: %w", at, err)
		}
	}
	a.log.Info("broadcast scheduled", logx.Any("times", bc.Times), logx.String("tz", bc.Timezone))
	return nil
}

// scheduledBroadcast fails only when nothing could be delivered to a non-empty registry.
func (a *App) scheduledBroadcast(ctx context.Context) error {
	rep := a.job.Run(ctx, "schedule")
	if !rep.Skipped && rep.Total > 0 && rep.Sent == 0 {
		return fmt.Errorf("broadcast %s: all %d sends failed", rep.ID, rep.Failed)
	}
	return nil
}
