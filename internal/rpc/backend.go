package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/gowvp/kestrel/internal/conf"
)

// BackendClient 用户后端告警上报客户端
// base_url 为空时上报静默跳过
type BackendClient struct {
	baseURL     string
	warningPath string
	cli         *http.Client
}

func NewBackendClient(cfg conf.Backend) *BackendClient {
	return &BackendClient{
		baseURL:     cfg.BaseURL,
		warningPath: cfg.WarningPath,
		cli:         &http.Client{Timeout: cfg.Timeout.Duration()},
	}
}

// ReportWarning 以 multipart 表单上报一条告警
// 截图以 base64 字符串字段携带，剪辑作为 mp4 文件附件，clipPath 为空则不带附件
func (c *BackendClient) ReportWarning(ctx context.Context, alarmID, msg string, snapshotJPEG []byte, clipPath string, ts float64) error {
	if c.baseURL == "" {
		return nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"image": base64.StdEncoding.EncodeToString(snapshotJPEG),
		"id":    alarmID,
		"msg":   msg,
		"time":  time.Unix(int64(ts), 0).Format(time.DateTime),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if clipPath != "" {
		f, err := os.Open(clipPath)
		if err != nil {
			return fmt.Errorf("open clip: %w", err)
		}
		defer f.Close()
		part, err := w.CreateFormFile("video", alarmID+".mp4")
		if err != nil {
			return fmt.Errorf("create video part: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return fmt.Errorf("copy clip: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.warningPath, &buf)
	if err != nil {
		return fmt.Errorf("build warning request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.cli.Do(req)
	if err != nil {
		return fmt.Errorf("report warning: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}
