package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/monitor"
	"github.com/gowvp/kestrel/pkg/zlm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// StreamAPI 直播流预览：把 RTSP 源代理到流媒体网关
type StreamAPI struct {
	conf    *conf.Bootstrap
	media   *zlm.Engine
	manager *monitor.Manager
}

func NewStreamAPI(bc *conf.Bootstrap, media *zlm.Engine, manager *monitor.Manager) StreamAPI {
	return StreamAPI{conf: bc, media: media, manager: manager}
}

func registerStreamAPI(r gin.IRouter, api StreamAPI, handler ...gin.HandlerFunc) {
	group := r.Group("/api/streams", handler...)
	group.GET("", web.WrapH(api.listStreams))
	group.POST("/start", web.WrapH(api.startStream))
	group.DELETE("/:key", web.WrapH(api.stopStream))
}

type startStreamInput struct {
	CameraID string `json:"camera_id"`
	RTSPURL  string `json:"rtsp_url"`
}

type startStreamOutput struct {
	Key       string           `json:"key"`
	App       string           `json:"app"`
	Stream    string           `json:"stream"`
	WebRTCURL string           `json:"webrtc_url"`
	Items     []StreamLiveAddr `json:"items"`
}

// StreamLiveAddr 一种协议的播放地址
type StreamLiveAddr struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// startStream 把摄像头的 RTSP 源代理进流媒体网关，返回网页可播放的地址
// 不传 rtsp_url 时按 camera_id 取监控配置里的源
func (s StreamAPI) startStream(c *gin.Context, in *startStreamInput) (*startStreamOutput, error) {
	rtspURL := in.RTSPURL
	stream := in.CameraID
	if rtspURL == "" {
		w, ok := s.manager.Lookup(in.CameraID)
		if !ok {
			return nil, reason.ErrNotFound.SetMsg(fmt.Sprintf("unknown camera: %s", in.CameraID))
		}
		rtspURL = w.Stream().RTSPURL
	}
	if rtspURL == "" {
		return nil, reason.ErrBadRequest.SetMsg("rtsp_url is required")
	}
	if stream == "" {
		stream = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	app := s.conf.Media.DefaultApp
	resp, err := s.media.AddStreamProxy(c.Request.Context(), zlm.AddStreamProxyRequest{
		App:          app,
		Stream:       stream,
		URL:          rtspURL,
		EnableWebRTC: true,
	})
	if err != nil {
		return nil, reason.ErrServer.Withf("add stream proxy err[%s]", err)
	}

	return &startStreamOutput{
		Key:       resp.Data.Key,
		App:       app,
		Stream:    stream,
		WebRTCURL: s.webrtcAddr(app, stream),
		Items:     s.liveAddrs(app, stream),
	}, nil
}

type stopStreamInput struct {
	Key string `uri:"key"`
}

type stopStreamOutput struct {
	Stopped bool `json:"stopped"`
}

func (s StreamAPI) stopStream(c *gin.Context, _ *stopStreamInput) (*stopStreamOutput, error) {
	resp, err := s.media.DelStreamProxy(c.Request.Context(), c.Param("key"))
	if err != nil {
		return nil, reason.ErrServer.Withf("del stream proxy err[%s]", err)
	}
	return &stopStreamOutput{Stopped: resp.Data.Flag}, nil
}

type listStreamsOutput struct {
	Items []zlm.MediaInfo `json:"items"`
	Total int             `json:"total"`
}

// listStreams 网关上在线的直播流
func (s StreamAPI) listStreams(c *gin.Context, _ *struct{}) (*listStreamsOutput, error) {
	resp, err := s.media.GetMediaList(c.Request.Context(), s.conf.Media.DefaultApp)
	if err != nil {
		return nil, reason.ErrServer.Withf("get media list err[%s]", err)
	}
	return &listStreamsOutput{Items: resp.Data, Total: len(resp.Data)}, nil
}

// webrtcAddr 不同网关的 webrtc 地址差异由 webrtc_schema 配置吸收
func (s StreamAPI) webrtcAddr(app, stream string) string {
	u, err := url.Parse(s.conf.Media.Host)
	if err != nil || u.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s/%s/%s", s.conf.Media.WebRTCSchema, u.Host, app, stream)
}

// liveAddrs 按网关地址拼多协议播放地址
func (s StreamAPI) liveAddrs(app, stream string) []StreamLiveAddr {
	host := s.conf.Media.Host
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return nil
	}
	return []StreamLiveAddr{
		{Label: "http_flv", URL: fmt.Sprintf("http://%s/%s/%s.live.flv", u.Host, app, stream)},
		{Label: "hls", URL: fmt.Sprintf("http://%s/%s/%s/hls.m3u8", u.Host, app, stream)},
		{Label: "ws_flv", URL: fmt.Sprintf("ws://%s/%s/%s.live.flv", u.Host, app, stream)},
		{Label: "rtsp", URL: fmt.Sprintf("rtsp://%s/%s/%s", u.Hostname(), app, stream)},
	}
}
