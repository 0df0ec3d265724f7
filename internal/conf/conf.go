package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ixugo/goddd/pkg/system"
	"github.com/pelletier/go-toml/v2"
)

// Bootstrap 应用全局配置
type Bootstrap struct {
	ConfigPath   string `toml:"-"`
	BuildVersion string `toml:"-"`
	Debug        bool   `toml:"debug"`

	Server    Server    `toml:"server"`
	Data      Data      `toml:"data"`
	Media     Media     `toml:"media"`
	Inference Inference `toml:"inference"`
	Backend   Backend   `toml:"backend"`
	Storage   Storage   `toml:"storage"`
	Alarm     Alarm     `toml:"alarm"`
	Streams   Streams   `toml:"streams"`
}

type Server struct {
	HTTP       HTTPServer `toml:"http"`
	PublicHost string     `toml:"public_host"` // 对外访问地址，用于拼接快照/剪辑 URL
	PublicPort int        `toml:"public_port"`
}

type HTTPServer struct {
	Port      int    `toml:"port"`
	JwtSecret string `toml:"jwt_secret"`
}

type Data struct {
	Database Database `toml:"database"`
}

type Database struct {
	Dsn             string   `toml:"dsn"` // sqlite 文件名 / postgres:// / mysql://
	MaxIdleConns    int      `toml:"max_idle_conns"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SlowThreshold   Duration `toml:"slow_threshold"`
	EventRetainDays int      `toml:"event_retain_days"` // 检测事件保留天数，<=0 不清理
}

// Media 流媒体网关(ZLMediaKit)配置，仅通过 HTTP API 调用
type Media struct {
	Host         string `toml:"host"`
	Secret       string `toml:"secret"`
	Vhost        string `toml:"vhost"`
	WebRTCSchema string `toml:"webrtc_schema"`
	DefaultApp   string `toml:"default_app"`
}

// Inference 推理服务的 HTTP 地址，抽帧请求发往这里
type Inference struct {
	BaseURL   string   `toml:"base_url"`
	InferPath string   `toml:"infer_path"`
	Timeout   Duration `toml:"timeout"`
	FPS       int      `toml:"fps"` // 剪辑编码帧率
}

// Backend 用户后端告警上报配置，base_url 为空则不上报
type Backend struct {
	BaseURL     string   `toml:"base_url"`
	WarningPath string   `toml:"warning_path"`
	Timeout     Duration `toml:"timeout"`
}

type Storage struct {
	DataDir   string `toml:"data_dir"`
	AlarmsDir string `toml:"alarms_dir"`
	ClipsDir  string `toml:"clips_dir"`
}

// Alarm 剪辑与快照的全局默认值，可被单条流覆盖
type Alarm struct {
	ClipBeforeSeconds    int    `toml:"clip_before_seconds"`
	ClipAfterSeconds     int    `toml:"clip_after_seconds"`
	ClipResizeWidth      int    `toml:"clip_resize_width"`
	ClipMaxPerCamera     int    `toml:"clip_max_per_camera"`
	SnapshotMaxPerCamera int    `toml:"snapshot_max_per_camera"`
	FFmpegPath           string `toml:"ffmpeg_path"`
}

type Streams struct {
	DefaultCaptureInterval int `toml:"default_capture_interval"`
	// 拉流统一缩放到该分辨率，bgr24 帧大小由此决定
	CaptureWidth  int          `toml:"capture_width"`
	CaptureHeight int          `toml:"capture_height"`
	Transport     string       `toml:"transport"` // rtsp 传输协议 tcp/udp
	Items         []StreamItem `toml:"items"`
}

// StreamItem 单路摄像头配置，指针字段为空时回落到全局默认值
type StreamItem struct {
	CameraID          string   `toml:"camera_id" json:"camera_id"`
	RTSPURL           string   `toml:"rtsp_url" json:"rtsp_url"`
	EnableInference   *bool    `toml:"enable_inference" json:"enable_inference,omitempty"`
	CaptureInterval   *int     `toml:"capture_interval" json:"capture_interval,omitempty"`
	SendClip          *bool    `toml:"send_clip" json:"send_clip,omitempty"`
	ClipBeforeSeconds *int     `toml:"clip_before_seconds" json:"clip_before_seconds,omitempty"`
	ClipAfterSeconds  *int     `toml:"clip_after_seconds" json:"clip_after_seconds,omitempty"`
	Algorithms        []string `toml:"algorithms" json:"algorithms"`
}

// Duration toml 中以 "10s" 形式书写的时长
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// PublicBase 拼接对外基础地址，如 http://192.168.1.10:8080
func (b *Bootstrap) PublicBase() string {
	host := b.Server.PublicHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := b.Server.PublicPort
	if port == 0 {
		port = b.Server.HTTP.Port
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// SetupConfig 加载 TOML 配置，文件不存在或解析失败时回落到默认配置
// 加载完成后确保存储目录存在
func SetupConfig(path string) (*Bootstrap, error) {
	bc := defaultBootstrap()
	bc.ConfigPath = path

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, bc); err != nil {
			slog.Warn("parse config failed, fallback to defaults", "path", path, "err", err)
		}
	} else {
		slog.Warn("config not found, using defaults", "path", path)
	}

	bc.applyDefaults()

	for _, dir := range []string{bc.Storage.DataDir, bc.Storage.AlarmsDir, bc.Storage.ClipsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return bc, nil
}

// WriteConfig 将配置写回 TOML 文件
func WriteConfig(bc *Bootstrap, path string) error {
	data, err := toml.Marshal(bc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultBootstrap() *Bootstrap {
	root := system.Getwd()
	return &Bootstrap{
		Server: Server{
			HTTP:       HTTPServer{Port: 8080},
			PublicHost: "127.0.0.1",
		},
		Data: Data{
			Database: Database{
				Dsn:             "kestrel.db",
				MaxIdleConns:    10,
				MaxOpenConns:    100,
				ConnMaxLifetime: Duration(6 * time.Hour),
				SlowThreshold:   Duration(200 * time.Millisecond),
				EventRetainDays: 30,
			},
		},
		Media: Media{
			Vhost:        "__defaultVhost__",
			WebRTCSchema: "webrtc",
			DefaultApp:   "camera",
		},
		Inference: Inference{
			InferPath: "/infer",
			Timeout:   Duration(5 * time.Second),
			FPS:       10,
		},
		Backend: Backend{
			WarningPath: "/addVideo/warning",
			Timeout:     Duration(10 * time.Second),
		},
		Storage: Storage{
			DataDir:   filepath.Join(root, "data"),
			AlarmsDir: filepath.Join(root, "data", "alarms"),
			ClipsDir:  filepath.Join(root, "data", "clips"),
		},
		Alarm: Alarm{
			ClipBeforeSeconds:    10,
			ClipAfterSeconds:     10,
			ClipResizeWidth:      640,
			ClipMaxPerCamera:     50,
			SnapshotMaxPerCamera: 100,
			FFmpegPath:           "ffmpeg",
		},
		Streams: Streams{
			DefaultCaptureInterval: 3,
			CaptureWidth:           1280,
			CaptureHeight:          720,
			Transport:              "tcp",
		},
	}
}

// applyDefaults 兜底用户配置文件中留空的关键字段
func (b *Bootstrap) applyDefaults() {
	if b.Server.HTTP.Port == 0 {
		b.Server.HTTP.Port = 8080
	}
	if b.Inference.InferPath == "" {
		b.Inference.InferPath = "/infer"
	}
	if b.Inference.Timeout <= 0 {
		b.Inference.Timeout = Duration(5 * time.Second)
	}
	if b.Inference.FPS <= 0 {
		b.Inference.FPS = 10
	}
	if b.Backend.WarningPath == "" {
		b.Backend.WarningPath = "/addVideo/warning"
	}
	if b.Backend.Timeout <= 0 {
		b.Backend.Timeout = Duration(10 * time.Second)
	}
	if b.Alarm.FFmpegPath == "" {
		b.Alarm.FFmpegPath = "ffmpeg"
	}
	if b.Streams.DefaultCaptureInterval <= 0 {
		b.Streams.DefaultCaptureInterval = 3
	}
	if b.Streams.CaptureWidth <= 0 || b.Streams.CaptureHeight <= 0 {
		b.Streams.CaptureWidth = 1280
		b.Streams.CaptureHeight = 720
	}
	if b.Streams.Transport == "" {
		b.Streams.Transport = "tcp"
	}
	root := system.Getwd()
	if b.Storage.DataDir == "" {
		b.Storage.DataDir = filepath.Join(root, "data")
	}
	if b.Storage.AlarmsDir == "" {
		b.Storage.AlarmsDir = filepath.Join(b.Storage.DataDir, "alarms")
	}
	if b.Storage.ClipsDir == "" {
		b.Storage.ClipsDir = filepath.Join(b.Storage.DataDir, "clips")
	}
}
