package alarm

// Record 单条报警记录，持久化为 JSON Lines 中的一行
// 字段名即落盘格式，改名会破坏既有报警文件
type Record struct {
	AlarmID      string         `json:"alarm_id"`
	CameraID     string         `json:"camera_id"`
	RTSPURL      string         `json:"rtsp_url,omitempty"`
	Timestamp    int64          `json:"timestamp"` // 秒级 unix 时间
	Msg          string         `json:"msg"`
	SnapshotPath string         `json:"snapshot_path,omitempty"`
	SnapshotURL  string         `json:"snapshot_url,omitempty"`
	ClipURL      string         `json:"clip_url,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}
