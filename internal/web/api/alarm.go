package api

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/alarm"
	"github.com/gowvp/kestrel/internal/core/clip"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// AlarmAPI 报警记录查询与关联媒体文件访问
type AlarmAPI struct {
	conf   *conf.Bootstrap
	alarms *alarm.Core
	clips  *clip.Store
}

func NewAlarmAPI(bc *conf.Bootstrap, alarms *alarm.Core, clips *clip.Store) AlarmAPI {
	return AlarmAPI{conf: bc, alarms: alarms, clips: clips}
}

func registerAlarmAPI(r gin.IRouter, api AlarmAPI, handler ...gin.HandlerFunc) {
	group := r.Group("/api/alarms", handler...)
	group.GET("", web.WrapH(api.listAlarms))
	group.GET("/:id", web.WrapH(api.getAlarm))
}

// registerMediaAPI 截图与剪辑文件直出，不参与 JSON 中间件
func registerMediaAPI(r gin.IRouter, api AlarmAPI, handler ...gin.HandlerFunc) {
	group := r.Group("/api", handler...)
	group.GET("/snapshots/*path", api.getSnapshot)
	group.GET("/clips/*path", api.getClip)
}

type listAlarmsInput struct {
	Limit int `form:"limit"`
}

type listAlarmsOutput struct {
	Items []*alarm.Record `json:"items"`
	Total int             `json:"total"`
}

// listAlarms 倒序返回最近的报警记录，默认 100 条
func (a AlarmAPI) listAlarms(c *gin.Context, in *listAlarmsInput) (*listAlarmsOutput, error) {
	limit := in.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	records, err := a.alarms.ListRecent(c.Request.Context(), limit)
	if err != nil {
		return nil, reason.ErrServer.Withf("list alarms err[%s]", err)
	}
	return &listAlarmsOutput{Items: records, Total: len(records)}, nil
}

type getAlarmInput struct {
	ID string `uri:"id"`
}

func (a AlarmAPI) getAlarm(c *gin.Context, _ *getAlarmInput) (*alarm.Record, error) {
	rec, err := a.alarms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, alarm.ErrNotFound) {
			return nil, reason.ErrNotFound.SetMsg("alarm not found")
		}
		return nil, reason.ErrServer.Withf("get alarm err[%s]", err)
	}
	return rec, nil
}

// getSnapshot 报警截图文件访问
func (a AlarmAPI) getSnapshot(c *gin.Context) {
	serveUnder(c, a.conf.Storage.AlarmsDir, c.Param("path"))
}

// getClip 剪辑文件访问，支持 Range 请求以便网页播放
func (a AlarmAPI) getClip(c *gin.Context) {
	full, err := a.clips.Resolve(strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil {
		web.Fail(c, reason.ErrBadRequest.SetMsg("invalid path"))
		return
	}
	if _, err := os.Stat(full); err != nil {
		web.Fail(c, reason.ErrNotFound.SetMsg("clip not found"))
		return
	}
	c.File(full)
}

// serveUnder 在 base 目录内提供文件，拒绝越界路径
func serveUnder(c *gin.Context, base, rel string) {
	full := filepath.Join(base, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if !strings.HasPrefix(full, filepath.Clean(base)+string(os.PathSeparator)) {
		web.Fail(c, reason.ErrBadRequest.SetMsg("invalid path"))
		return
	}
	if _, err := os.Stat(full); err != nil {
		web.Fail(c, reason.ErrNotFound.SetMsg("file not found"))
		return
	}
	c.File(full)
}
