package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetupConfigMissingFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	bc, err := SetupConfig(filepath.Join(dir, "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if bc.Server.HTTP.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", bc.Server.HTTP.Port)
	}
	if bc.Alarm.ClipBeforeSeconds != 10 || bc.Alarm.ClipAfterSeconds != 10 {
		t.Fatalf("unexpected clip window defaults: %+v", bc.Alarm)
	}
	for _, dir := range []string{bc.Storage.DataDir, bc.Storage.AlarmsDir, bc.Storage.ClipsDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("storage dir not created: %s", dir)
		}
	}
}

func TestSetupConfigParsesTOML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.toml")
	content := `
debug = true

[server]
public_host = "10.0.0.2"
public_port = 9000

[server.http]
port = 9000

[inference]
base_url = "http://infer:8000"
timeout = "3s"

[streams]
default_capture_interval = 5

[[streams.items]]
camera_id = "cam1"
rtsp_url = "rtsp://example/1"
capture_interval = 1
algorithms = ["person"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	bc, err := SetupConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bc.Debug {
		t.Fatal("expected debug=true")
	}
	if got := bc.PublicBase(); got != "http://10.0.0.2:9000" {
		t.Fatalf("unexpected public base: %s", got)
	}
	if bc.Inference.Timeout.Duration() != 3*time.Second {
		t.Fatalf("unexpected inference timeout: %v", bc.Inference.Timeout.Duration())
	}
	if len(bc.Streams.Items) != 1 || bc.Streams.Items[0].CameraID != "cam1" {
		t.Fatalf("unexpected streams: %+v", bc.Streams.Items)
	}
}

func TestMergeStreamPrecedence(t *testing.T) {
	bc := defaultBootstrap()
	bc.Streams.DefaultCaptureInterval = 3
	bc.Alarm.ClipBeforeSeconds = 10
	bc.Alarm.ClipAfterSeconds = 10

	// 未覆盖的字段取全局默认值
	es := MergeStream(bc, StreamItem{CameraID: "cam1", RTSPURL: "rtsp://x"})
	if es.CaptureInterval != 3 || es.ClipBeforeSeconds != 10 || es.ClipAfterSeconds != 10 {
		t.Fatalf("defaults not applied: %+v", es)
	}
	if !es.SendClip || !es.EnableInference {
		t.Fatalf("bool defaults not applied: %+v", es)
	}

	// 显式覆盖优先
	interval, before, sendClip := 7, 5, false
	es = MergeStream(bc, StreamItem{
		CameraID:          "cam2",
		RTSPURL:           "rtsp://y",
		CaptureInterval:   &interval,
		ClipBeforeSeconds: &before,
		SendClip:          &sendClip,
	})
	if es.CaptureInterval != 7 {
		t.Fatalf("capture interval override lost: %+v", es)
	}
	if es.ClipBeforeSeconds != 5 {
		t.Fatalf("before window override lost: %+v", es)
	}
	if es.ClipAfterSeconds != 10 {
		t.Fatalf("after window should stay default: %+v", es)
	}
	if es.SendClip {
		t.Fatal("send_clip=false override lost")
	}
}
