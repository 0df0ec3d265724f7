package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gowvp/kestrel/internal/app"
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/ixugo/goddd/pkg/system"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

var buildVersion = "dev"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("conf", defaultConfigPath(), "config file path")
	flag.Parse()

	bc, err := conf.SetupConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "setup config:", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion

	log := setupLogger(bc.Debug)
	slog.Info("kestrel starting", "version", buildVersion, "config", *configPath)

	a, cleanup, err := app.NewAPP(bc, log)
	if err != nil {
		slog.Error("assemble app failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", bc.Server.HTTP.Port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server exited", "err", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	a.Stop()
	slog.Info("kestrel stopped")
}

func defaultConfigPath() string {
	if v := os.Getenv("KESTREL_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(system.Getwd(), "configs", "config.toml")
}

// setupLogger 以 zap 为 slog 后端，debug 模式输出彩色控制台格式
func setupLogger(debug bool) *slog.Logger {
	level := zapcore.InfoLevel
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	if debug {
		level = zapcore.DebugLevel
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(devCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	log := slog.New(zapslog.NewHandler(core))
	slog.SetDefault(log)
	return log
}
