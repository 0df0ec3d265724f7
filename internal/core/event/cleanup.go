package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

// StartCleanupWorker 启动定时清理协程，每 24 小时清理一次过期检测事件
// days 指定保留天数，超期事件将被删除
func (c Core) StartCleanupWorker(ctx context.Context, days int) {
	if days <= 0 {
		slog.Info("event cleanup disabled", "days", days)
		return
	}

	slog.Info("event cleanup worker started", "retain_days", days)

	// 启动时先执行一次
	c.cleanupExpiredEvents(days)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanupExpiredEvents(days)
		}
	}
}

// cleanupExpiredEvents 分批删除过期事件，避免一次性加载过多数据
func (c Core) cleanupExpiredEvents(days int) {
	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -days)
	cutoffMs := cutoff.UnixMilli()

	slog.Info("starting event cleanup", "cutoff_time", cutoff.Format(time.DateTime), "retain_days", days)

	batchSize := 100
	totalDeleted := 0

	for {
		var events []*Event
		pager := web.PagerFilter{Page: 1, Size: batchSize}
		_, err := c.store.Event().Find(ctx, &events, &pager,
			orm.Where("started_at < ?", cutoffMs),
		)
		if err != nil {
			slog.Error("failed to query expired events", "err", err)
			break
		}
		if len(events) == 0 {
			break
		}

		ids := make([]int64, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}

		err = c.store.Event().Session(ctx, func(tx *gorm.DB) error {
			return tx.Where("id IN ?", ids).Delete(&Event{}).Error
		})
		if err != nil {
			slog.Warn("failed to batch delete events", "count", len(ids), "err", err)
			break
		}
		totalDeleted += len(ids)
	}

	slog.Info("event cleanup completed", "events_deleted", totalDeleted)
}
