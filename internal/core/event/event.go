package event

import (
	"context"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// Storer data persistence
type Storer interface {
	Event() EventStorer
}

type EventStorer interface {
	Add(ctx context.Context, e *Event) error
	Find(ctx context.Context, out *[]*Event, pager orm.Pager, opts ...orm.QueryOption) (int64, error)
	Session(ctx context.Context, fn func(*gorm.DB) error) error
}

// Core business domain
type Core struct {
	store Storer
}

// NewCore create business domain
func NewCore(store Storer) Core {
	return Core{store: store}
}

// AddEventInput 单条检测结果入库参数
type AddEventInput struct {
	AlarmID   string  `json:"alarm_id"`
	CameraID  string  `json:"camera_id"`
	Algorithm string  `json:"algorithm"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Triggered bool    `json:"triggered"`
	Objects   int     `json:"objects"`
	StartedAt int64   `json:"started_at"`
}

// AddEvent 写入一条检测事件
func (c Core) AddEvent(ctx context.Context, in *AddEventInput) (*Event, error) {
	var e Event
	if err := copier.Copy(&e, in); err != nil {
		return nil, reason.ErrServer.Withf("copy event err[%s]", err)
	}
	e.CreatedAt = orm.Now()
	if err := c.store.Event().Add(ctx, &e); err != nil {
		return nil, reason.ErrDB.Withf("add event err[%s]", err)
	}
	return &e, nil
}

// FindEventsInput 事件查询条件
type FindEventsInput struct {
	web.PagerFilter
	CameraID  string `form:"camera_id"`
	AlarmID   string `form:"alarm_id"`
	Triggered *bool  `form:"triggered"`
}

// FindEvents 分页倒序查询检测事件
func (c Core) FindEvents(ctx context.Context, in *FindEventsInput) ([]*Event, int64, error) {
	events := make([]*Event, 0, in.Limit())
	opts := []orm.QueryOption{orm.OrderBy("started_at DESC")}
	if in.CameraID != "" {
		opts = append(opts, orm.Where("camera_id = ?", in.CameraID))
	}
	if in.AlarmID != "" {
		opts = append(opts, orm.Where("alarm_id = ?", in.AlarmID))
	}
	if in.Triggered != nil {
		opts = append(opts, orm.Where("triggered = ?", *in.Triggered))
	}
	total, err := c.store.Event().Find(ctx, &events, &in.PagerFilter, opts...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf("find events err[%s]", err)
	}
	return events, total, nil
}
