package event

import "github.com/ixugo/goddd/pkg/orm"

// Event 一次推理检测事件，按报警维度冗余存储每个算法的得分
type Event struct {
	ID        int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	AlarmID   string   `gorm:"column:alarm_id;index" json:"alarm_id"`
	CameraID  string   `gorm:"column:camera_id;index" json:"camera_id"`
	Algorithm string   `gorm:"column:algorithm" json:"algorithm"`
	Score     float64  `gorm:"column:score" json:"score"`
	Threshold float64  `gorm:"column:threshold" json:"threshold"`
	Triggered bool     `gorm:"column:triggered" json:"triggered"`
	Objects   int      `gorm:"column:objects" json:"objects"`
	StartedAt int64    `gorm:"column:started_at;index" json:"started_at"` // 毫秒时间戳
	CreatedAt orm.Time `gorm:"column:created_at" json:"created_at"`
}

func (*Event) TableName() string {
	return "events"
}
