package ffwork

import (
	"strings"
	"testing"
	"time"
)

func TestNewCaptureValidation(t *testing.T) {
	if _, err := NewCapture(Config{Width: 0, Height: 720, FPS: 10, RTSPURL: "rtsp://x"}); err == nil {
		t.Fatal("expected error for invalid resolution")
	}
	if _, err := NewCapture(Config{Width: 1280, Height: 720, FPS: 0, RTSPURL: "rtsp://x"}); err == nil {
		t.Fatal("expected error for invalid fps")
	}
	if _, err := NewCapture(Config{Width: 1280, Height: 720, FPS: 10}); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestCaptureFrameSizeBGR24(t *testing.T) {
	c, err := NewCapture(Config{Width: 640, Height: 360, FPS: 10, RTSPURL: "rtsp://x"})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.FrameSize(); got != 640*360*3 {
		t.Fatalf("expected bgr24 frame size %d, got %d", 640*360*3, got)
	}
}

func TestCaptureArgs(t *testing.T) {
	c, err := NewCapture(Config{Width: 640, Height: 360, FPS: 5, RTSPURL: "rtsp://cam/1", Transport: "udp"})
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Join(c.buildFFmpegArgs(), " ")
	for _, want := range []string{
		"-rtsp_transport udp",
		"-i rtsp://cam/1",
		"-pix_fmt bgr24",
		"fps=5,scale=640:360",
		"pipe:1",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("args missing %q: %s", want, args)
		}
	}
}

func TestCaptureCloseIdempotent(t *testing.T) {
	c, err := NewCapture(Config{Width: 64, Height: 64, FPS: 1, RTSPURL: "rtsp://x", ReconnectDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEncoderArgs(t *testing.T) {
	e := NewClipEncoder("")
	if e.FFmpegPath != "ffmpeg" {
		t.Fatalf("expected default ffmpeg path, got %s", e.FFmpegPath)
	}

	args := strings.Join(e.buildArgs("/tmp/out.mp4", EncodeOptions{Width: 1280, Height: 720, FPS: 10, ResizeWidth: 640}), " ")
	for _, want := range []string{
		"-s 1280x720",
		"-r 10",
		"scale=640:-2",
		"-vcodec libx264",
		"/tmp/out.mp4",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("args missing %q: %s", want, args)
		}
	}

	// 目标宽度与原始宽度一致时不插入 scale
	args = strings.Join(e.buildArgs("/tmp/out.mp4", EncodeOptions{Width: 640, Height: 360, FPS: 10, ResizeWidth: 640}), " ")
	if strings.Contains(args, "scale=") {
		t.Fatalf("unexpected scale filter: %s", args)
	}
}
