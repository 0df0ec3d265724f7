package api

import (
	"expvar"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/ixugo/goddd/pkg/web"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

var startRuntime = time.Now()

// expvar 指标是进程级全局的，重复注册会 panic，只能初始化一次
var (
	metricsOnce sync.Once
	metricsMW   gin.HandlerFunc
)

func setupRouter(r *gin.Engine, uc *Usecase) {
	metricsOnce.Do(func() {
		metricsMW = web.Metrics()
		go web.CountGoroutines(10*time.Minute, 20)
	})
	r.Use(
		// 此处不做 recover，底层 http.server 也会 recover，但不会输出方便查看的格式
		gin.CustomRecovery(func(c *gin.Context, err any) {
			slog.ErrorContext(c.Request.Context(), "panic", "err", err, "stack", string(debug.Stack()))
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
		metricsMW,
		web.Logger(
			web.IgnoreMethod(http.MethodOptions),
			web.IgnorePrefix("/api/snapshots"),
			web.IgnorePrefix("/api/clips"),
		),
	)

	r.Use(cors.New(cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Accept", "Content-Length", "Content-Type", "Range", "Accept-Language",
			"Origin", "Authorization", "Referer", "User-Agent",
			"Accept-Encoding",
			"Cache-Control", "Pragma", "X-Requested-With",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc: func(_ string) bool {
			return true
		},
	}))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"msg": "来到了无人的荒漠"})
	})

	r.GET("/health", web.WrapH(uc.getHealth))
	r.GET("/app/metrics/api", web.WrapH(uc.getMetricsAPI))

	registerInferenceWebhookAPI(r, uc.InferenceWebhookAPI)
	registerMediaAPI(r, uc.AlarmAPI)
	registerAlarmWS(r, uc.AlarmHub)

	// JSON 查询接口统一压缩
	zip := gzip.Gzip(gzip.DefaultCompression)
	registerAlarmAPI(r, uc.AlarmAPI, zip)
	registerStreamAPI(r, uc.StreamAPI, zip)
	registerEventAPI(r, uc.EventAPI, zip)

	// 配置接口涉及流地址等敏感信息，配置了 jwt_secret 才开启鉴权
	cfgHandlers := []gin.HandlerFunc{zip}
	if secret := uc.Conf.Server.HTTP.JwtSecret; secret != "" {
		cfgHandlers = append([]gin.HandlerFunc{web.AuthMiddleware(secret)}, cfgHandlers...)
	}
	registerConfigAPI(r, uc.ConfigAPI, cfgHandlers...)
}

type getHealthOutput struct {
	Version    string    `json:"version"`
	StartAt    time.Time `json:"start_at"`
	Cameras    []string  `json:"cameras"`
	CPUPercent float64   `json:"cpu_percent"`
	MemPercent float64   `json:"mem_percent"`
}

func (uc *Usecase) getHealth(_ *gin.Context, _ *struct{}) (getHealthOutput, error) {
	out := getHealthOutput{
		Version: uc.Conf.BuildVersion,
		StartAt: startRuntime,
		Cameras: uc.Manager.CameraIDs(),
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		out.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out.MemPercent = vm.UsedPercent
	}
	return out, nil
}

type getMetricsAPIOutput struct {
	RealTimeRequests int64  `json:"real_time_requests"`
	TotalRequests    int64  `json:"total_requests"`
	TotalResponses   int64  `json:"total_responses"`
	RequestTop10     []KV   `json:"request_top10"`
	StatusCodeTop10  []KV   `json:"status_code_top10"`
	Goroutines       any    `json:"goroutines"`
	NumGC            uint32 `json:"num_gc"`
	SysAlloc         uint64 `json:"sys_alloc"`
	StartAt          string `json:"start_at"`
}

func (uc *Usecase) getMetricsAPI(_ *gin.Context, _ *struct{}) (*getMetricsAPIOutput, error) {
	req := expvar.Get("request").(*expvar.Int).Value()
	reqs := expvar.Get("requests").(*expvar.Int).Value()
	resps := expvar.Get("responses").(*expvar.Int).Value()
	urls := expvar.Get(`requestURLs`).(*expvar.Map)
	status := expvar.Get(`statusCodes`).(*expvar.Map)
	u := sortExpvarMap(urls, 10)
	s := sortExpvarMap(status, 10)
	g := expvar.Get("goroutine_num").(expvar.Func)

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	return &getMetricsAPIOutput{
		RealTimeRequests: req,
		TotalRequests:    reqs,
		TotalResponses:   resps,
		RequestTop10:     u,
		StatusCodeTop10:  s,
		Goroutines:       g(),
		NumGC:            stats.NumGC,
		SysAlloc:         stats.Sys,
		StartAt:          startRuntime.Format(time.DateTime),
	}, nil
}

type KV struct {
	Key   string
	Value int64
}

func sortExpvarMap(data *expvar.Map, top int) []KV {
	kvs := make([]KV, 0, 8)
	data.Do(func(kv expvar.KeyValue) {
		kvs = append(kvs, KV{
			Key:   kv.Key,
			Value: kv.Value.(*expvar.Int).Value(),
		})
	})

	sort.Slice(kvs, func(i, j int) bool {
		return kvs[i].Value > kvs[j].Value
	})

	idx := top
	if l := len(kvs); l < top {
		idx = len(kvs)
	}
	return kvs[:idx]
}
