package ffwork

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

type (
	Config struct {
		Width, Height  int
		FPS            int
		RTSPURL        string
		Transport      string
		ReconnectDelay time.Duration
		FFmpegPath     string
		Name           string
	}
	FrameData struct {
		FrameNum  uint64
		Timestamp time.Time
		Data      []byte
	}
	// Capture 通过 ffmpeg 子进程把 RTSP 流解码为 bgr24 原始帧
	// 流断开后按固定间隔自动重连，直到 Close
	Capture struct {
		config                Config
		frameSize             int
		frameCh               chan *FrameData
		ctx                   context.Context
		cancel                context.CancelFunc
		m                     sync.Mutex
		started               bool
		closeOnce             sync.Once
		lastFrame             time.Time
		wg                    sync.WaitGroup
		ffmpegLog             *queue.CirQueue[string]
		frameCount, skipCount uint64
	}
	Stats struct {
		Name                  string
		FrameCount, SkipCount uint64
		LastFrame             time.Time
		FrameSize             int
		IsRunning             bool
	}
)

func NewCapture(cfg Config) (*Capture, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps: %d", cfg.FPS)
	}
	if cfg.RTSPURL == "" {
		return nil, fmt.Errorf("rtsp url is required")
	}
	if cfg.Transport == "" {
		cfg.Transport = "tcp"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	// bgr24: 每像素 3 字节
	frameSize := cfg.Width * cfg.Height * 3
	ctx, cancel := context.WithCancel(context.Background())
	return &Capture{
		config:    cfg,
		frameSize: frameSize,
		frameCh:   make(chan *FrameData, 10),
		ctx:       ctx,
		cancel:    cancel,
		ffmpegLog: queue.NewCirQueue[string](100),
	}, nil
}

func (c *Capture) FrameSize() int {
	return c.frameSize
}

func (c *Capture) buildFFmpegArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-threads", "2",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts+discardcorrupt",
		"-rtsp_transport", c.config.Transport,
		"-timeout", "10000000",
		"-i", c.config.RTSPURL,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-r", strconv.Itoa(c.config.FPS),
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", c.config.FPS, c.config.Width, c.config.Height),
		"pipe:1",
	}
	return args
}

// Start 启动拉流协程，Frames 通道开始产出帧
func (c *Capture) Start() error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.started {
		return fmt.Errorf("capture already started")
	}
	c.started = true
	c.lastFrame = time.Now()

	c.wg.Go(c.runLoop)
	return nil
}

// runLoop 单次 ffmpeg 退出后休眠 ReconnectDelay 再重启，对消费者透明
func (c *Capture) runLoop() {
	defer close(c.frameCh)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.runOnce()

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.config.ReconnectDelay):
		}
	}
}

func (c *Capture) runOnce() {
	cmd := exec.CommandContext(c.ctx, c.config.FFmpegPath, c.buildFFmpegArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.ffmpegLog.Push("stdout pipe: " + err.Error())
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.ffmpegLog.Push("stderr pipe: " + err.Error())
		return
	}
	if err := cmd.Start(); err != nil {
		c.ffmpegLog.Push("start ffmpeg: " + err.Error())
		return
	}

	var inner sync.WaitGroup
	inner.Go(func() { c.readStderr(stderr) })
	c.captureFrames(stdout)
	inner.Wait()
	_ = cmd.Wait()
}

// captureFrames 从 ffmpeg stdout 按固定帧大小读取 bgr24 数据
func (c *Capture) captureFrames(stdout io.Reader) {
	reader := bufio.NewReaderSize(stdout, c.frameSize*4)
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		frameBytes := make([]byte, c.frameSize)
		if _, err := io.ReadFull(reader, frameBytes); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				c.ffmpegLog.Push("read frame: " + err.Error())
			}
			return
		}

		frameNum := atomic.AddUint64(&c.frameCount, 1)
		now := time.Now()
		c.m.Lock()
		c.lastFrame = now
		c.m.Unlock()

		frame := FrameData{
			FrameNum:  frameNum,
			Timestamp: now,
			Data:      frameBytes,
		}

		select {
		case c.frameCh <- &frame:
		case <-c.ctx.Done():
			return
		default:
			// 消费者跟不上就丢帧，拉流连续性优先
			atomic.AddUint64(&c.skipCount, 1)
		}
	}
}

func (c *Capture) readStderr(stderr io.Reader) {
	scan := bufio.NewScanner(stderr)
	for scan.Scan() {
		c.ffmpegLog.Push(scan.Text())
	}
}

func (c *Capture) Frames() <-chan *FrameData {
	return c.frameCh
}

func (c *Capture) Log() []string {
	return c.ffmpegLog.Range()
}

// Close 幂等，可跨协程调用以解除 Frames 的阻塞
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.m.Lock()
		started := c.started
		c.started = false
		c.m.Unlock()
		if started {
			c.wg.Wait()
		}
	})
	return nil
}

func (c *Capture) GetStats() Stats {
	c.m.Lock()
	defer c.m.Unlock()
	return Stats{
		Name:       c.config.Name,
		FrameCount: atomic.LoadUint64(&c.frameCount),
		SkipCount:  atomic.LoadUint64(&c.skipCount),
		LastFrame:  c.lastFrame,
		FrameSize:  c.frameSize,
		IsRunning:  c.started,
	}
}
