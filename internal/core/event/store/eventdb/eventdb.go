package eventdb

import (
	"context"

	"github.com/gowvp/kestrel/internal/core/event"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ event.Storer = DB{}

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		_ = d.db.AutoMigrate(&event.Event{})
	}
	return d
}

func (d DB) Event() event.EventStorer {
	return NewEvent(d.db)
}

type Event struct {
	db *gorm.DB
}

func NewEvent(db *gorm.DB) Event {
	return Event{db: db}
}

// Add implements event.EventStorer.
func (e Event) Add(ctx context.Context, v *event.Event) error {
	return e.db.WithContext(ctx).Create(v).Error
}

// Find implements event.EventStorer.
func (e Event) Find(ctx context.Context, out *[]*event.Event, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := e.db.WithContext(ctx).Model(&event.Event{})
	for _, opt := range opts {
		db = opt(db)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	if err := db.Limit(pager.Limit()).Offset(pager.Offset()).Find(out).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Session implements event.EventStorer.
func (e Event) Session(ctx context.Context, fn func(*gorm.DB) error) error {
	return e.db.WithContext(ctx).Transaction(fn)
}
