// Package rpc 封装对外部服务的 HTTP 调用：推理服务与用户后端
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gowvp/kestrel/internal/conf"
)

// InferClient 推理服务客户端，抽样帧送检
type InferClient struct {
	baseURL   string
	inferPath string
	cli       *http.Client
}

func NewInferClient(cfg conf.Inference) *InferClient {
	return &InferClient{
		baseURL:   cfg.BaseURL,
		inferPath: cfg.InferPath,
		cli:       &http.Client{Timeout: cfg.Timeout.Duration()},
	}
}

type inferRequest struct {
	CameraID    string   `json:"camera_id"`
	Algorithms  []string `json:"algorithms,omitempty"`
	ImageBase64 string   `json:"image_base64"`
	Timestamp   float64  `json:"timestamp"`
}

// SendFrame 把一帧 JPEG 送往推理服务
// 检测结果经由推理回调接口异步返回，这里只关心请求是否被接收
func (c *InferClient) SendFrame(ctx context.Context, cameraID string, algorithms []string, jpegData []byte, ts float64) error {
	if c.baseURL == "" {
		return nil
	}
	body, err := json.Marshal(inferRequest{
		CameraID:    cameraID,
		Algorithms:  algorithms,
		ImageBase64: base64.StdEncoding.EncodeToString(jpegData),
		Timestamp:   ts,
	})
	if err != nil {
		return fmt.Errorf("marshal infer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.inferPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build infer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cli.Do(req)
	if err != nil {
		return fmt.Errorf("send frame to inference: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("inference returned %d", resp.StatusCode)
	}
	return nil
}
