package eventdb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gowvp/kestrel/internal/core/event"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func generateMockDB() (*gorm.DB, sqlmock.Sqlmock, error) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	return db, mock, nil
}

func TestEventAdd(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	eventDB := NewEvent(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "events"`).
		WithArgs("a1", "cam1", "person", 0.91, 0.8, true, 2, int64(1756728000000), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	e := event.Event{
		AlarmID:   "a1",
		CameraID:  "cam1",
		Algorithm: "person",
		Score:     0.91,
		Threshold: 0.8,
		Triggered: true,
		Objects:   2,
		StartedAt: 1756728000000,
		CreatedAt: orm.Now(),
	}
	if err := eventDB.Add(context.Background(), &e); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}

func TestEventFind(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	eventDB := NewEvent(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "events" WHERE camera_id=\$1`).
		WithArgs("cam1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "events" WHERE camera_id=\$1 (.+) LIMIT \$2`).
		WithArgs("cam1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "alarm_id", "camera_id"}).AddRow(1, "a1", "cam1"))

	var out []*event.Event
	pager := web.PagerFilter{Page: 1, Size: 10}
	total, err := eventDB.Find(context.Background(), &out, &pager,
		orm.Where("camera_id=?", "cam1"),
		orm.OrderBy("started_at DESC"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(out) != 1 || out[0].AlarmID != "a1" {
		t.Fatalf("unexpected result: total=%d out=%+v", total, out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}
