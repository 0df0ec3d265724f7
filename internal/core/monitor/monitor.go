// Package monitor 实现摄像头监控主链路
// 每路摄像头一个 Worker：拉流、抽帧送推理、响应报警、录制剪辑
package monitor

import (
	"context"

	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/pkg/ffwork"
)

// Frame 单帧 bgr24 图像，时间戳为秒（毫秒精度）
type Frame struct {
	TS   float64
	Data []byte
}

// FrameSource 帧来源，生产环境由 ffwork.Capture 适配
type FrameSource interface {
	Frames() <-chan Frame
	Close() error
}

// SourceFactory 按单路配置创建帧源，测试时替换为假实现
type SourceFactory func(cfg conf.EffectiveStream) (FrameSource, error)

// Encoder 把帧序列编码为 mp4 文件
type Encoder interface {
	Encode(ctx context.Context, outPath string, frames [][]byte, opt ffwork.EncodeOptions) error
}

// InferSender 把抽样帧送往推理服务
type InferSender interface {
	SendFrame(ctx context.Context, cameraID string, algorithms []string, jpegData []byte, ts float64) error
}

// Reporter 向用户后端上报告警
type Reporter interface {
	ReportWarning(ctx context.Context, alarmID, msg string, snapshotJPEG []byte, clipPath string, ts float64) error
}

// Trigger 一次报警触发，由推理回调接口投递给 Worker
type Trigger struct {
	AlarmID  string
	TS       float64
	SnapJPEG []byte
}
