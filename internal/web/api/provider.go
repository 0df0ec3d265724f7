package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/alarm"
	"github.com/gowvp/kestrel/internal/core/alarm/store/alarmjsonl"
	"github.com/gowvp/kestrel/internal/core/clip"
	"github.com/gowvp/kestrel/internal/core/event"
	"github.com/gowvp/kestrel/internal/core/event/store/eventdb"
	"github.com/gowvp/kestrel/internal/core/monitor"
	"github.com/gowvp/kestrel/internal/rpc"
	"github.com/gowvp/kestrel/pkg/ffwork"
	"github.com/gowvp/kestrel/pkg/zlm"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewAlarmCore,
	NewClipStore,
	NewEventCore,
	NewManager,
	NewMediaEngine,
	NewInferenceWebhookAPI,
	NewAlarmAPI,
	NewStreamAPI,
	NewConfigAPI,
	NewEventAPI,
	NewAlarmHub,
)

type Usecase struct {
	Conf    *conf.Bootstrap
	DB      *gorm.DB
	Manager *monitor.Manager

	InferenceWebhookAPI InferenceWebhookAPI
	AlarmAPI            AlarmAPI
	StreamAPI           StreamAPI
	ConfigAPI           ConfigAPI
	EventAPI            EventAPI
	AlarmHub            *AlarmHub
}

// NewHTTPHandler 生成 Gin 框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	if !uc.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	setupRouter(g, uc)
	return g
}

func NewAlarmCore(bc *conf.Bootstrap) (*alarm.Core, error) {
	db, err := alarmjsonl.NewDB(bc.Storage.AlarmsDir)
	if err != nil {
		return nil, err
	}
	return alarm.NewCore(db), nil
}

func NewEventCore(db *gorm.DB) event.Core {
	return event.NewCore(eventdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate()))
}

func NewMediaEngine(bc *conf.Bootstrap) *zlm.Engine {
	return zlm.NewEngine().SetConfig(zlm.Config{
		URL:    bc.Media.Host,
		Secret: bc.Media.Secret,
		Vhost:  bc.Media.Vhost,
	})
}

// NewClipStore 剪辑存储，淘汰剪辑时顺带清理报警记录里的引用与孤儿截图
func NewClipStore(bc *conf.Bootstrap, alarms *alarm.Core) (*clip.Store, error) {
	return clip.NewStore(bc.Storage.ClipsDir, bc.PublicBase(), bc.Alarm.ClipMaxPerCamera,
		clip.WithEvictFunc(newClipEvictFunc(bc, alarms)),
	)
}

// NewManager 流 Worker 管理器，广播由 AlarmHub 订阅
func NewManager(bc *conf.Bootstrap, clips *clip.Store, alarms *alarm.Core, hub *AlarmHub) *monitor.Manager {
	m := monitor.NewManager(bc,
		monitor.NewFFSourceFactory(bc),
		ffwork.NewClipEncoder(bc.Alarm.FFmpegPath),
		clips,
		alarms,
		rpc.NewInferClient(bc.Inference),
		rpc.NewBackendClient(bc.Backend),
	)
	m.SetBroadcast(hub.Broadcast)
	return m
}

// newClipEvictFunc 剪辑被淘汰后，报警记录不再指向已消失的文件
func newClipEvictFunc(bc *conf.Bootstrap, alarms *alarm.Core) clip.EvictFunc {
	return func(evicted []clip.Evicted) {
		ctx := context.Background()
		for _, e := range evicted {
			rec, err := alarms.Get(ctx, e.AlarmID)
			if err != nil {
				continue
			}
			fields := []string{"clip_url"}
			// 剪辑没了，配套截图也一并清掉
			if rec.SnapshotPath != "" {
				if err := os.Remove(rec.SnapshotPath); err == nil || os.IsNotExist(err) {
					fields = append(fields, "snapshot_path", "snapshot_url")
				}
			}
			if err := alarms.ClearMedia(ctx, e.AlarmID, fields...); err != nil {
				slog.Warn("clear evicted alarm media failed", "alarm_id", e.AlarmID, "err", err)
			}
		}
	}
}
