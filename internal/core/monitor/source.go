package monitor

import (
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/pkg/ffwork"
)

// ffSource 把 ffwork.Capture 适配为 FrameSource
type ffSource struct {
	capture *ffwork.Capture
	out     chan Frame
}

// NewFFSourceFactory 生产环境帧源：ffmpeg 拉 RTSP 解码为 bgr24
func NewFFSourceFactory(bc *conf.Bootstrap) SourceFactory {
	return func(es conf.EffectiveStream) (FrameSource, error) {
		capture, err := ffwork.NewCapture(ffwork.Config{
			Width:      bc.Streams.CaptureWidth,
			Height:     bc.Streams.CaptureHeight,
			FPS:        bc.Inference.FPS,
			RTSPURL:    es.RTSPURL,
			Transport:  bc.Streams.Transport,
			FFmpegPath: bc.Alarm.FFmpegPath,
			Name:       es.CameraID,
		})
		if err != nil {
			return nil, err
		}
		if err := capture.Start(); err != nil {
			return nil, err
		}

		s := &ffSource{
			capture: capture,
			out:     make(chan Frame, 10),
		}
		go s.pump()
		return s, nil
	}
}

// pump 把捕获帧转成秒级时间戳的 Frame
func (s *ffSource) pump() {
	defer close(s.out)
	for fd := range s.capture.Frames() {
		s.out <- Frame{
			TS:   float64(fd.Timestamp.UnixNano()) / 1e9,
			Data: fd.Data,
		}
	}
}

func (s *ffSource) Frames() <-chan Frame {
	return s.out
}

func (s *ffSource) Close() error {
	return s.capture.Close()
}
