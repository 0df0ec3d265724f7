package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/monitor"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// ConfigAPI 系统配置查询与流列表热更新
type ConfigAPI struct {
	conf    *conf.Bootstrap
	manager *monitor.Manager
}

func NewConfigAPI(bc *conf.Bootstrap, manager *monitor.Manager) ConfigAPI {
	return ConfigAPI{conf: bc, manager: manager}
}

func registerConfigAPI(r gin.IRouter, api ConfigAPI, handler ...gin.HandlerFunc) {
	group := r.Group("/api/config", handler...)
	group.GET("/system", web.WrapH(api.getSystem))
	group.GET("/streams", web.WrapH(api.getStreams))
	group.PUT("/streams", web.WrapH(api.putStreams))
}

// getSystem 系统配置视图，密钥字段不外发
func (a ConfigAPI) getSystem(_ *gin.Context, _ *struct{}) (*conf.Bootstrap, error) {
	out := *a.conf
	out.Server.HTTP.JwtSecret = ""
	out.Media.Secret = ""
	return &out, nil
}

type getStreamsOutput struct {
	Items []conf.StreamItem `json:"items"`
	Total int               `json:"total"`
}

func (a ConfigAPI) getStreams(_ *gin.Context, _ *struct{}) (*getStreamsOutput, error) {
	items := a.conf.Streams.Items
	return &getStreamsOutput{Items: items, Total: len(items)}, nil
}

type putStreamsInput struct {
	Items []conf.StreamItem `json:"items"`
}

type putStreamsOutput struct {
	Total int `json:"total"`
}

// putStreams 整体替换流列表：写回配置文件并热重建 Worker
func (a ConfigAPI) putStreams(c *gin.Context, in *putStreamsInput) (*putStreamsOutput, error) {
	for _, item := range in.Items {
		if item.CameraID == "" || item.RTSPURL == "" {
			return nil, reason.ErrBadRequest.SetMsg("camera_id and rtsp_url are required")
		}
	}

	a.conf.Streams.Items = in.Items
	if err := conf.WriteConfig(a.conf, a.conf.ConfigPath); err != nil {
		// 写盘失败不拦截热更新，重启后会丢配置，提醒用户
		slog.Error("write config failed", "path", a.conf.ConfigPath, "err", err)
	}

	a.manager.Reload(in.Items)
	slog.InfoContext(c.Request.Context(), "stream config reloaded", "count", len(in.Items))
	return &putStreamsOutput{Total: len(in.Items)}, nil
}
