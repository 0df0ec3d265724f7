package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/alarm"
	"github.com/gowvp/kestrel/internal/core/clip"
	"github.com/gowvp/kestrel/pkg/ffwork"
)

const snapshotQuality = 85

// WorkerConfig 单路 Worker 的完整运行参数
type WorkerConfig struct {
	Stream        conf.EffectiveStream
	Width, Height int
	FPS           int
	ResizeWidth   int
	SnapshotDir   string
	SnapshotMax   int
	PublicBase    string
}

type pendingAlarm struct {
	record   *alarm.Record
	snapJPEG []byte
}

// Worker 驱动一路摄像头：消费帧、抽样送推理、录制报警剪辑
type Worker struct {
	cfg      WorkerConfig
	source   FrameSource
	encoder  Encoder
	clips    *clip.Store
	alarms   *alarm.Core
	infer    InferSender
	reporter Reporter
	// 报警记录广播给实时订阅者，可为空
	broadcast func(*alarm.Record)

	// 抽样送推理需要同时配置开关、抽样间隔与算法列表
	samplingOn bool

	// mu 保护 recorder 与 pending：报警回调与帧循环分属不同协程
	mu         sync.Mutex
	recorder   *ClipRecorder
	pending    map[string]*pendingAlarm
	lastSample float64
}

func NewWorker(cfg WorkerConfig, source FrameSource, encoder Encoder, clips *clip.Store, alarms *alarm.Core, infer InferSender, reporter Reporter, broadcast func(*alarm.Record)) *Worker {
	return &Worker{
		cfg:       cfg,
		source:    source,
		encoder:   encoder,
		clips:     clips,
		alarms:    alarms,
		infer:     infer,
		reporter:  reporter,
		broadcast: broadcast,
		samplingOn: cfg.Stream.EnableInference &&
			cfg.Stream.CaptureInterval > 0 &&
			len(cfg.Stream.Algorithms) > 0,
		recorder: NewClipRecorder(cfg.Stream.ClipBeforeSeconds, cfg.Stream.ClipAfterSeconds),
		pending:  make(map[string]*pendingAlarm),
		// 首帧即触发一次抽样
		lastSample: -1e18,
	}
}

func (w *Worker) CameraID() string {
	return w.cfg.Stream.CameraID
}

// Stream 该 Worker 生效的流配置
func (w *Worker) Stream() conf.EffectiveStream {
	return w.cfg.Stream
}

// Run 帧循环，阻塞直到 ctx 取消或帧源关闭
// 退出前把未收满的剪辑全部落盘
func (w *Worker) Run(ctx context.Context) {
	slog.Info("stream worker started",
		"camera_id", w.cfg.Stream.CameraID,
		"capture_interval", w.cfg.Stream.CaptureInterval,
		"inference", w.cfg.Stream.EnableInference,
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case f, ok := <-w.source.Frames():
			if !ok {
				break loop
			}
			w.processFrame(ctx, f)
		}
	}

	// 停流收尾用独立的有界上下文，不受取消影响
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	w.mu.Lock()
	finished := w.recorder.FlushAll()
	w.mu.Unlock()
	for _, fc := range finished {
		w.finalizeClip(flushCtx, fc)
	}
	slog.Info("stream worker stopped", "camera_id", w.cfg.Stream.CameraID)
}

func (w *Worker) processFrame(ctx context.Context, f Frame) {
	w.mu.Lock()
	finished := w.recorder.OnFrame(f)
	sample := w.samplingOn && f.TS-w.lastSample >= float64(w.cfg.Stream.CaptureInterval)
	if sample {
		w.lastSample = f.TS
	}
	w.mu.Unlock()

	for _, fc := range finished {
		w.finalizeClip(ctx, fc)
	}

	if sample {
		w.sendSample(ctx, f)
	}
}

// sendSample 把当前帧编码为 JPEG 送推理服务，失败只记日志
func (w *Worker) sendSample(ctx context.Context, f Frame) {
	jpegData, err := EncodeJPEG(f.Data, w.cfg.Width, w.cfg.Height, snapshotQuality)
	if err != nil {
		slog.Error("encode sample frame failed", "camera_id", w.cfg.Stream.CameraID, "err", err)
		return
	}
	if err := w.infer.SendFrame(ctx, w.cfg.Stream.CameraID, w.cfg.Stream.Algorithms, jpegData, f.TS); err != nil {
		slog.Warn("send frame to inference failed", "camera_id", w.cfg.Stream.CameraID, "err", err)
	}
}

// NotifyAlarm 推理回调触发报警：持久化截图与记录，按需开启剪辑录制
// 剪辑完成后再上报后端；不录剪辑的报警立即上报
func (w *Worker) NotifyAlarm(ctx context.Context, t Trigger, rec *alarm.Record) error {
	if len(t.SnapJPEG) > 0 {
		// 先腾位再写入，单摄像头截图数量有上限
		evicted := alarm.CleanupSnapshots(w.cfg.SnapshotDir, w.cfg.Stream.CameraID, w.cfg.SnapshotMax)
		for _, id := range evicted {
			if err := w.alarms.ClearMedia(ctx, id, "snapshot_path", "snapshot_url"); err != nil {
				slog.Warn("clear evicted snapshot fields failed", "alarm_id", id, "err", err)
			}
		}

		path := alarm.SnapshotPath(w.cfg.SnapshotDir, w.cfg.Stream.CameraID, t.AlarmID, tsToTime(t.TS))
		if err := writeSnapshot(path, t.SnapJPEG); err != nil {
			slog.Error("persist snapshot failed", "alarm_id", t.AlarmID, "err", err)
		} else {
			rec.SnapshotPath = path
			rec.SnapshotURL = alarm.SnapshotURL(w.cfg.PublicBase, w.cfg.SnapshotDir, path)
		}
	}

	if err := w.alarms.Save(ctx, rec); err != nil {
		return fmt.Errorf("save alarm record: %w", err)
	}
	if w.broadcast != nil {
		w.broadcast(rec)
	}

	if w.cfg.Stream.SendClip {
		w.mu.Lock()
		started := w.recorder.StartClip(t.AlarmID, t.TS)
		if started {
			w.pending[t.AlarmID] = &pendingAlarm{record: rec, snapJPEG: t.SnapJPEG}
		}
		w.mu.Unlock()
		if !started {
			slog.Warn("duplicate alarm trigger ignored", "alarm_id", t.AlarmID)
		}
		return nil
	}

	// 不录剪辑，直接上报
	w.report(ctx, t.AlarmID, rec.Msg, t.SnapJPEG, "", t.TS)
	return nil
}

// finalizeClip 编码落盘一个收满帧的剪辑，回填记录并上报后端
func (w *Worker) finalizeClip(ctx context.Context, fc FinishedClip) {
	cameraID := w.cfg.Stream.CameraID
	frames := make([][]byte, 0, len(fc.Frames))
	for _, f := range fc.Frames {
		frames = append(frames, f.Data)
	}

	tmp := w.clips.AllocatePath(cameraID, fc.AlarmID)
	opt := ffwork.EncodeOptions{
		Width:       w.cfg.Width,
		Height:      w.cfg.Height,
		FPS:         w.cfg.FPS,
		ResizeWidth: w.cfg.ResizeWidth,
	}
	if err := w.encoder.Encode(ctx, tmp, frames, opt); err != nil {
		slog.Error("encode clip failed", "alarm_id", fc.AlarmID, "frames", len(frames), "err", err)
		_ = os.Remove(tmp)
		w.dropPending(fc.AlarmID)
		return
	}

	triggerTime := tsToTime(fc.Trigger)
	url, err := w.clips.Commit(tmp, cameraID, fc.AlarmID, triggerTime)
	if err != nil {
		slog.Error("commit clip failed", "alarm_id", fc.AlarmID, "err", err)
		w.dropPending(fc.AlarmID)
		return
	}

	if err := w.alarms.SetClipURL(ctx, fc.AlarmID, url); err != nil {
		slog.Warn("update alarm clip_url failed", "alarm_id", fc.AlarmID, "err", err)
	}

	w.mu.Lock()
	p := w.pending[fc.AlarmID]
	delete(w.pending, fc.AlarmID)
	w.mu.Unlock()

	if p == nil {
		slog.Warn("clip finished without pending alarm, skip backend report", "alarm_id", fc.AlarmID)
		return
	}
	clipPath := w.clips.FinalPath(cameraID, fc.AlarmID, triggerTime)
	w.report(ctx, fc.AlarmID, p.record.Msg, p.snapJPEG, clipPath, fc.Trigger)
}

func (w *Worker) report(ctx context.Context, alarmID, msg string, snapJPEG []byte, clipPath string, ts float64) {
	if w.reporter == nil {
		return
	}
	if len(snapJPEG) == 0 {
		// 后端要求必须带图
		slog.Warn("skip backend report, no snapshot", "alarm_id", alarmID)
		return
	}
	if err := w.reporter.ReportWarning(ctx, alarmID, msg, snapJPEG, clipPath, ts); err != nil {
		slog.Warn("report warning to backend failed", "alarm_id", alarmID, "err", err)
	}
}

func (w *Worker) dropPending(alarmID string) {
	w.mu.Lock()
	delete(w.pending, alarmID)
	w.mu.Unlock()
}

func writeSnapshot(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func tsToTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
