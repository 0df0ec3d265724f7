package conf

// EffectiveStream 单路摄像头合并后的生效配置
// 所有可覆盖字段都已落定，下游不再关心默认值来源
type EffectiveStream struct {
	CameraID          string
	RTSPURL           string
	EnableInference   bool
	CaptureInterval   int
	SendClip          bool
	ClipBeforeSeconds int
	ClipAfterSeconds  int
	Algorithms        []string
}

// MergeStream 显式合并：全局默认值 + 单条流的可选覆盖
// 覆盖只发生在字段显式设置时（指针非空）
func MergeStream(b *Bootstrap, item StreamItem) EffectiveStream {
	out := EffectiveStream{
		CameraID:          item.CameraID,
		RTSPURL:           item.RTSPURL,
		EnableInference:   true,
		CaptureInterval:   b.Streams.DefaultCaptureInterval,
		SendClip:          true,
		ClipBeforeSeconds: b.Alarm.ClipBeforeSeconds,
		ClipAfterSeconds:  b.Alarm.ClipAfterSeconds,
		Algorithms:        item.Algorithms,
	}
	if item.EnableInference != nil {
		out.EnableInference = *item.EnableInference
	}
	if item.CaptureInterval != nil {
		out.CaptureInterval = *item.CaptureInterval
	}
	if item.SendClip != nil {
		out.SendClip = *item.SendClip
	}
	if item.ClipBeforeSeconds != nil {
		out.ClipBeforeSeconds = *item.ClipBeforeSeconds
	}
	if item.ClipAfterSeconds != nil {
		out.ClipAfterSeconds = *item.ClipAfterSeconds
	}
	return out
}
