package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/alarm"
	"github.com/gowvp/kestrel/internal/core/clip"
)

// joinTimeout 等待旧一代 Worker 退出的上限
// 超时后放弃等待，旧协程最终会随帧源关闭自行退出
const joinTimeout = 10 * time.Second

// generation 一代运行中的 Worker 集合，整代启停
type generation struct {
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	workers map[string]*Worker
	sources map[string]FrameSource
}

// Manager 管理全部摄像头 Worker 的生命周期
// 配置变更时整代替换：停掉旧的，按新配置重建
type Manager struct {
	conf      *conf.Bootstrap
	factory   SourceFactory
	encoder   Encoder
	clips     *clip.Store
	alarms    *alarm.Core
	infer     InferSender
	reporter  Reporter
	broadcast func(*alarm.Record)

	mu  sync.Mutex
	gen *generation
}

func NewManager(bc *conf.Bootstrap, factory SourceFactory, encoder Encoder, clips *clip.Store, alarms *alarm.Core, infer InferSender, reporter Reporter) *Manager {
	return &Manager{
		conf:     bc,
		factory:  factory,
		encoder:  encoder,
		clips:    clips,
		alarms:   alarms,
		infer:    infer,
		reporter: reporter,
	}
}

// SetBroadcast 注入报警实时广播，启动前调用
func (m *Manager) SetBroadcast(fn func(*alarm.Record)) {
	m.broadcast = fn
}

// Reload 以新的流列表整代替换 Worker
// 串行执行，重入的调用会排队
func (m *Manager) Reload(items []conf.StreamItem) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopGeneration()

	ctx, cancel := context.WithCancel(context.Background())
	gen := &generation{
		cancel:  cancel,
		wg:      &sync.WaitGroup{},
		workers: make(map[string]*Worker),
		sources: make(map[string]FrameSource),
	}

	for _, item := range items {
		if item.CameraID == "" || item.RTSPURL == "" {
			slog.Warn("skip stream with empty camera_id or rtsp_url", "camera_id", item.CameraID)
			continue
		}
		if _, ok := gen.workers[item.CameraID]; ok {
			slog.Warn("skip duplicate camera_id", "camera_id", item.CameraID)
			continue
		}

		es := conf.MergeStream(m.conf, item)
		if !es.EnableInference {
			// 停用的摄像头整路不拉流
			slog.Info("skip disabled stream", "camera_id", es.CameraID)
			continue
		}
		source, err := m.factory(es)
		if err != nil {
			slog.Error("create frame source failed", "camera_id", es.CameraID, "err", err)
			continue
		}

		w := NewWorker(WorkerConfig{
			Stream:      es,
			Width:       m.conf.Streams.CaptureWidth,
			Height:      m.conf.Streams.CaptureHeight,
			FPS:         m.conf.Inference.FPS,
			ResizeWidth: m.conf.Alarm.ClipResizeWidth,
			SnapshotDir: m.conf.Storage.AlarmsDir,
			SnapshotMax: m.conf.Alarm.SnapshotMaxPerCamera,
			PublicBase:  m.conf.PublicBase(),
		}, source, m.encoder, m.clips, m.alarms, m.infer, m.reporter, m.broadcast)

		gen.workers[es.CameraID] = w
		gen.sources[es.CameraID] = source
		gen.wg.Add(1)
		go func() {
			defer gen.wg.Done()
			w.Run(ctx)
		}()
	}

	m.gen = gen
	slog.Info("stream workers reloaded", "count", len(gen.workers))
}

// Lookup 按摄像头编号找运行中的 Worker
func (m *Manager) Lookup(cameraID string) (*Worker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == nil {
		return nil, false
	}
	w, ok := m.gen.workers[cameraID]
	return w, ok
}

// CameraIDs 运行中的摄像头编号列表
func (m *Manager) CameraIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == nil {
		return nil
	}
	ids := make([]string, 0, len(m.gen.workers))
	for id := range m.gen.workers {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown 停掉全部 Worker，剪辑收尾完成后返回
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopGeneration()
}

// stopGeneration 关闭帧源并取消上下文，有界等待整代退出
// 调用方须持有 m.mu
func (m *Manager) stopGeneration() {
	if m.gen == nil {
		return
	}
	gen := m.gen
	m.gen = nil

	for id, src := range gen.sources {
		if err := src.Close(); err != nil {
			slog.Warn("close frame source failed", "camera_id", id, "err", err)
		}
	}
	gen.cancel()

	done := make(chan struct{})
	go func() {
		gen.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		slog.Warn("timed out waiting for stream workers, abandoning", "count", len(gen.workers))
	}
}
