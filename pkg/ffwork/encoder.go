package ffwork

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// EncodeOptions 一次剪辑编码的参数
type EncodeOptions struct {
	Width, Height int
	FPS           int
	// ResizeWidth > 0 时输出统一缩放到该宽度，高度按比例取偶
	ResizeWidth int
}

// ClipEncoder 把有序的 bgr24 原始帧序列喂给 ffmpeg stdin，产出 mp4
type ClipEncoder struct {
	FFmpegPath string
}

func NewClipEncoder(ffmpegPath string) ClipEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return ClipEncoder{FFmpegPath: ffmpegPath}
}

func (e ClipEncoder) buildArgs(outPath string, opt EncodeOptions) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-vcodec", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", opt.Width, opt.Height),
		"-r", strconv.Itoa(opt.FPS),
		"-i", "-",
		"-an",
	}
	if opt.ResizeWidth > 0 && opt.ResizeWidth != opt.Width {
		// -2 让 ffmpeg 自己算出偶数高度
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", opt.ResizeWidth))
	}
	args = append(args,
		"-vcodec", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		outPath,
	)
	return args
}

// Encode 同步编码，帧数有界所以阻塞时长有界
func (e ClipEncoder) Encode(ctx context.Context, outPath string, frames [][]byte, opt EncodeOptions) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	if opt.Width <= 0 || opt.Height <= 0 {
		return fmt.Errorf("invalid resolution: %dx%d", opt.Width, opt.Height)
	}
	if opt.FPS <= 0 {
		opt.FPS = 10
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create clip dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.FFmpegPath, e.buildArgs(outPath, opt)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	var writeErr error
	for _, f := range frames {
		if _, err := stdin.Write(f); err != nil {
			writeErr = err
			break
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w", err)
	}
	if writeErr != nil {
		return fmt.Errorf("write frames: %w", writeErr)
	}
	return nil
}
