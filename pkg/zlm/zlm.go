// Package zlm 封装 ZLMediaKit HTTP API，用于把 RTSP 源代理成可播放的直播流
package zlm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Config struct {
	URL    string // http://host:port
	Secret string
	Vhost  string
}

type Engine struct {
	cfg Config
	cli *http.Client
}

func NewEngine() *Engine {
	return &Engine{
		cli: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        30,
				MaxIdleConnsPerHost: 30,
				MaxConnsPerHost:     100,
			},
		},
	}
}

func (e *Engine) SetConfig(cfg Config) *Engine {
	e.cfg = cfg
	return e
}

// FixedHeader ZLM 响应公共头
type FixedHeader struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ErrHandle 把非 0 的业务码转为 error
func (e *Engine) ErrHandle(code int, msg string) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("zlm code[%d] msg[%s]", code, msg)
}

// post 发送 POST 请求，secret 统一注入
func (e *Engine) post(ctx context.Context, path string, data map[string]any, out any) error {
	if data == nil {
		data = make(map[string]any)
	}
	data["secret"] = e.cfg.Secret
	body, _ := json.Marshal(data)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

const (
	addStreamProxyPath = "/index/api/addStreamProxy"
	delStreamProxyPath = "/index/api/delStreamProxy"
	getMediaListPath   = "/index/api/getMediaList"
)

// AddStreamProxyRequest 拉流代理请求参数
type AddStreamProxyRequest struct {
	App          string `json:"app"`
	Stream       string `json:"stream"`
	URL          string `json:"url"`      // 源地址，支持 rtsp/rtmp
	RTPType      int    `json:"rtp_type"` // 0 tcp 1 udp
	TimeoutS     int    `json:"timeout_sec,omitempty"`
	EnableMP4    bool   `json:"enable_mp4"`
	EnableWebRTC bool   `json:"enable_webrtc"`
}

// AddStreamProxyResponse 拉流代理响应
type AddStreamProxyResponse struct {
	FixedHeader
	Data struct {
		Key string `json:"key"`
	} `json:"data"`
}

// AddStreamProxy 添加拉流代理，返回用于删除代理的 key
func (e *Engine) AddStreamProxy(ctx context.Context, req AddStreamProxyRequest) (*AddStreamProxyResponse, error) {
	data := map[string]any{
		"vhost":         e.cfg.Vhost,
		"app":           req.App,
		"stream":        req.Stream,
		"url":           req.URL,
		"rtp_type":      req.RTPType,
		"enable_mp4":    boolToInt(req.EnableMP4),
		"enable_webrtc": boolToInt(req.EnableWebRTC),
	}
	if req.TimeoutS > 0 {
		data["timeout_sec"] = req.TimeoutS
	}

	var resp AddStreamProxyResponse
	if err := e.post(ctx, addStreamProxyPath, data, &resp); err != nil {
		return nil, err
	}
	if err := e.ErrHandle(resp.Code, resp.Msg); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DelStreamProxyResponse 删除拉流代理响应
type DelStreamProxyResponse struct {
	FixedHeader
	Data struct {
		Flag bool `json:"flag"`
	} `json:"data"`
}

// DelStreamProxy 按 key 删除拉流代理
func (e *Engine) DelStreamProxy(ctx context.Context, key string) (*DelStreamProxyResponse, error) {
	var resp DelStreamProxyResponse
	if err := e.post(ctx, delStreamProxyPath, map[string]any{"key": key}, &resp); err != nil {
		return nil, err
	}
	if err := e.ErrHandle(resp.Code, resp.Msg); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MediaInfo 在线流信息
type MediaInfo struct {
	App         string `json:"app"`
	Stream      string `json:"stream"`
	Schema      string `json:"schema"`
	ReaderCount int    `json:"readerCount"`
}

// GetMediaListResponse 在线流列表响应
type GetMediaListResponse struct {
	FixedHeader
	Data []MediaInfo `json:"data"`
}

// GetMediaList 查询在线流列表，app 为空则查全部
func (e *Engine) GetMediaList(ctx context.Context, app string) (*GetMediaListResponse, error) {
	data := map[string]any{"vhost": e.cfg.Vhost}
	if app != "" {
		data["app"] = app
	}

	var resp GetMediaListResponse
	if err := e.post(ctx, getMediaListPath, data, &resp); err != nil {
		return nil, err
	}
	// getMediaList 查不到流时返回 -500，对调用方来说是空列表
	if resp.Code != 0 && resp.Code != -500 {
		return nil, e.ErrHandle(resp.Code, resp.Msg)
	}
	return &resp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
