package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/event"
	"github.com/gowvp/kestrel/internal/core/monitor"
)

// App 组装完成的应用实例
type App struct {
	Conf    *conf.Bootstrap
	Handler http.Handler
	Manager *monitor.Manager

	eventCore event.Core
}

func NewApp(bc *conf.Bootstrap, handler http.Handler, manager *monitor.Manager, eventCore event.Core) *App {
	return &App{
		Conf:      bc,
		Handler:   handler,
		Manager:   manager,
		eventCore: eventCore,
	}
}

// Start 启动流 Worker 与后台清理协程
func (a *App) Start(ctx context.Context) {
	a.Manager.Reload(a.Conf.Streams.Items)
	go a.eventCore.StartCleanupWorker(ctx, a.Conf.Data.Database.EventRetainDays)
}

// Stop 停掉全部 Worker，等剪辑收尾
func (a *App) Stop() {
	slog.Info("stopping stream workers")
	a.Manager.Shutdown()
}

// NewAPP 按配置装配应用
func NewAPP(bc *conf.Bootstrap, log *slog.Logger) (*App, func(), error) {
	return wireApp(bc, log)
}
