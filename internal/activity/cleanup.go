package activity

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"rocket-console/internal/logger"
	"rocket-console/internal/store"
)

// CleanupOldEntries deletes entries older than retentionDays.
func CleanupOldEntries(ctx context.Context, s *store.Store, retentionDays int) (int64, error) {
	pb := s.Dialect.NewParamBuilder()
	whereExpr := s.Dialect.IntervalDeleteExpr("created_at", pb, fmt.Sprintf("%d", retentionDays))
	sqlStr := fmt.Sprintf("DELETE FROM _console_activity WHERE %s", whereExpr)
	n, err := store.Exec(ctx, s.DB, sqlStr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("activity cleanup: %w", err)
	}
	return n, nil
}

// NewScheduler returns a cron accepting five-field specs and descriptors
// such as "@every 1h".
func NewScheduler() *cron.Cron {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return cron.New(cron.WithParser(parser))
}

// ScheduleCleanup adds a retention job to c.
func ScheduleCleanup(c *cron.Cron, s *store.Store, spec string, retentionDays int, log logger.Logger) error {
	_, err := c.AddFunc(spec, func() {
		n, err := CleanupOldEntries(context.Background(), s, retentionDays)
		if err != nil {
			log.Errorw("activity cleanup failed", "error", err)
			return
		}
		if n > 0 {
			log.Infow("activity cleanup", "deleted", n, "retention_days", retentionDays)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule activity cleanup %q: %w", spec, err)
	}
	return nil
}
