package api

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/alarm"
	"github.com/gowvp/kestrel/internal/core/event"
	"github.com/gowvp/kestrel/internal/core/monitor"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// InferenceWebhookAPI 处理推理服务的检测结果回调
type InferenceWebhookAPI struct {
	log     *slog.Logger
	conf    *conf.Bootstrap
	alarms  *alarm.Core
	events  event.Core
	manager *monitor.Manager
}

func NewInferenceWebhookAPI(bc *conf.Bootstrap, alarms *alarm.Core, events event.Core, manager *monitor.Manager) InferenceWebhookAPI {
	return InferenceWebhookAPI{
		log:     slog.With("hook", "inference"),
		conf:    bc,
		alarms:  alarms,
		events:  events,
		manager: manager,
	}
}

func registerInferenceWebhookAPI(r gin.IRouter, api InferenceWebhookAPI, handler ...gin.HandlerFunc) {
	group := r.Group("/api/inference", handler...)
	group.POST("/callback", web.WrapH(api.onCallback))
}

// onCallback 推理回调入口：落检测事件、生成报警、通知 Worker 录制剪辑
func (a InferenceWebhookAPI) onCallback(c *gin.Context, in *InferenceCallbackInput) (*InferenceCallbackOutput, error) {
	if in.CameraID == "" {
		return nil, reason.ErrBadRequest.SetMsg("camera_id is required")
	}
	if len(in.Results) == 0 {
		return nil, reason.ErrBadRequest.SetMsg("at least one result is required")
	}

	ctx := c.Request.Context()
	worker, ok := a.manager.Lookup(in.CameraID)
	if !ok {
		return nil, reason.ErrNotFound.SetMsg(fmt.Sprintf("unknown camera: %s", in.CameraID))
	}

	ts := in.Timestamp
	if ts <= 0 {
		ts = float64(time.Now().UnixMilli()) / 1e3
	}

	var snapJPEG []byte
	if in.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(in.ImageBase64)
		if err != nil {
			return nil, reason.ErrBadRequest.SetMsg("invalid image_base64")
		}
		snapJPEG = data
	}

	alarmID := a.alarms.NewAlarmID(time.Unix(int64(ts), int64((ts-float64(int64(ts)))*1e9)))
	msg := formatAlarmMsg(in.Results)

	a.log.InfoContext(ctx, "inference callback",
		"camera_id", in.CameraID,
		"alarm_id", alarmID,
		"results", len(in.Results),
		"msg", msg,
	)

	// 每个算法一条检测事件，单条失败不影响报警主流程
	startedAt := int64(ts * 1e3)
	for _, r := range in.Results {
		if _, err := a.events.AddEvent(ctx, &event.AddEventInput{
			AlarmID:   alarmID,
			CameraID:  in.CameraID,
			Algorithm: r.Algorithm,
			Score:     r.Score,
			Threshold: r.Threshold,
			Triggered: r.Triggered,
			Objects:   len(r.Objects),
			StartedAt: startedAt,
		}); err != nil {
			a.log.ErrorContext(ctx, "save detection event failed", "algorithm", r.Algorithm, "err", err)
		}
	}

	rec := &alarm.Record{
		AlarmID:   alarmID,
		CameraID:  in.CameraID,
		RTSPURL:   worker.Stream().RTSPURL,
		Timestamp: int64(ts),
		Msg:       msg,
		Extra:     in.Extra,
	}
	if err := worker.NotifyAlarm(ctx, monitor.Trigger{
		AlarmID:  alarmID,
		TS:       ts,
		SnapJPEG: snapJPEG,
	}, rec); err != nil {
		return nil, reason.ErrServer.Withf("notify alarm err[%s]", err)
	}

	return &InferenceCallbackOutput{AlarmID: alarmID, Msg: msg}, nil
}

// formatAlarmMsg 拼接报警描述
// 有触发项时只列触发项 alg@score/threshold，否则列出全部 alg@score
func formatAlarmMsg(results []InferenceResult) string {
	triggered := make([]string, 0, len(results))
	all := make([]string, 0, len(results))
	for _, r := range results {
		all = append(all, fmt.Sprintf("%s@%.2f", r.Algorithm, r.Score))
		if r.Triggered {
			triggered = append(triggered, fmt.Sprintf("%s@%.2f/%.2f", r.Algorithm, r.Score, r.Threshold))
		}
	}
	if len(triggered) > 0 {
		return strings.Join(triggered, "; ")
	}
	return strings.Join(all, "; ")
}
