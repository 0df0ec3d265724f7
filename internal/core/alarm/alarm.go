package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound 按编号查找不到报警记录
var ErrNotFound = errors.New("alarm record not found")

// Storer data persistence
type Storer interface {
	Alarm() RecordStorer
}

// RecordStorer 报警记录的持久化接口
type RecordStorer interface {
	// Append 追加一条记录，记录立即落盘
	Append(ctx context.Context, r *Record) error
	// UpdateFields 按 alarm_id 更新指定字段，其余字段保持不变
	UpdateFields(ctx context.Context, alarmID string, fields map[string]any) error
	// Get 按 alarm_id 查找，未找到返回 ErrNotFound
	Get(ctx context.Context, alarmID string) (*Record, error)
	// ListRecent 倒序返回最近 limit 条记录，limit <= 0 返回全部
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
}

// Core business domain
type Core struct {
	store Storer

	idMu     sync.Mutex
	lastID   string
	idSuffix int
}

// NewCore create business domain
func NewCore(store Storer) *Core {
	return &Core{store: store}
}

// NewAlarmID 生成毫秒精度的报警编号，如 20250901_153012_042
// 同一毫秒内并发触发时追加序号保证唯一
func (c *Core) NewAlarmID(ts time.Time) string {
	id := ts.Format("20060102_150405") + fmt.Sprintf("_%03d", ts.Nanosecond()/1e6)
	c.idMu.Lock()
	defer c.idMu.Unlock()
	if id == c.lastID {
		c.idSuffix++
		return fmt.Sprintf("%s_%d", id, c.idSuffix)
	}
	c.lastID = id
	c.idSuffix = 0
	return id
}

// Save 持久化一条新报警
func (c *Core) Save(ctx context.Context, r *Record) error {
	return c.store.Alarm().Append(ctx, r)
}

// SetClipURL 剪辑完成后回填播放地址
func (c *Core) SetClipURL(ctx context.Context, alarmID, clipURL string) error {
	return c.store.Alarm().UpdateFields(ctx, alarmID, map[string]any{"clip_url": clipURL})
}

// ClearMedia 关联媒体被淘汰后清掉记录里的引用
func (c *Core) ClearMedia(ctx context.Context, alarmID string, fields ...string) error {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f] = ""
	}
	return c.store.Alarm().UpdateFields(ctx, alarmID, m)
}

func (c *Core) Get(ctx context.Context, alarmID string) (*Record, error) {
	return c.store.Alarm().Get(ctx, alarmID)
}

func (c *Core) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	return c.store.Alarm().ListRecent(ctx, limit)
}
