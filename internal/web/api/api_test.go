package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/core/alarm"
	"github.com/gowvp/kestrel/internal/core/alarm/store/alarmjsonl"
	"github.com/gowvp/kestrel/internal/core/clip"
	"github.com/gowvp/kestrel/internal/core/event"
	"github.com/gowvp/kestrel/internal/core/monitor"
	"github.com/gowvp/kestrel/pkg/ffwork"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

type memEventStore struct {
	mu     sync.Mutex
	events []*event.Event
}

func (s *memEventStore) Event() event.EventStorer { return s }

func (s *memEventStore) Add(_ context.Context, e *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, e)
	return nil
}

func (s *memEventStore) Find(_ context.Context, out *[]*event.Event, _ orm.Pager, _ ...orm.QueryOption) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*out = append(*out, s.events...)
	return int64(len(s.events)), nil
}

func (s *memEventStore) Session(_ context.Context, _ func(*gorm.DB) error) error {
	return nil
}

type fakeFrameSource struct {
	ch   chan monitor.Frame
	once sync.Once
}

func (s *fakeFrameSource) Frames() <-chan monitor.Frame { return s.ch }

func (s *fakeFrameSource) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

type nopEncoder struct{}

func (nopEncoder) Encode(_ context.Context, _ string, _ [][]byte, _ ffwork.EncodeOptions) error {
	return nil
}

type testEnv struct {
	handler http.Handler
	conf    *conf.Bootstrap
	alarms  *alarm.Core
	events  *memEventStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Chdir(t.TempDir())

	bc, err := conf.SetupConfig("missing.toml")
	if err != nil {
		t.Fatal(err)
	}
	bc.Streams.Items = []conf.StreamItem{{CameraID: "cam1", RTSPURL: "rtsp://example/1"}}

	db, err := alarmjsonl.NewDB(bc.Storage.AlarmsDir)
	if err != nil {
		t.Fatal(err)
	}
	alarms := alarm.NewCore(db)

	clips, err := clip.NewStore(bc.Storage.ClipsDir, bc.PublicBase(), bc.Alarm.ClipMaxPerCamera)
	if err != nil {
		t.Fatal(err)
	}

	factory := func(_ conf.EffectiveStream) (monitor.FrameSource, error) {
		return &fakeFrameSource{ch: make(chan monitor.Frame)}, nil
	}
	manager := monitor.NewManager(bc, factory, nopEncoder{}, clips, alarms, nil, nil)
	t.Cleanup(manager.Shutdown)
	manager.Reload(bc.Streams.Items)

	events := &memEventStore{}
	eventCore := event.NewCore(events)
	hub := NewAlarmHub()

	uc := &Usecase{
		Conf:                bc,
		Manager:             manager,
		InferenceWebhookAPI: NewInferenceWebhookAPI(bc, alarms, eventCore, manager),
		AlarmAPI:            NewAlarmAPI(bc, alarms, clips),
		ConfigAPI:           NewConfigAPI(bc, manager),
		EventAPI:            NewEventAPI(eventCore),
		AlarmHub:            hub,
	}
	return &testEnv{handler: NewHTTPHandler(uc), conf: bc, alarms: alarms, events: events}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestInferenceCallbackCreatesAlarm(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/inference/callback", map[string]any{
		"camera_id":    "cam1",
		"timestamp":    1756728000.5,
		"image_base64": base64.StdEncoding.EncodeToString([]byte("jpeg")),
		"results": []map[string]any{
			{"algorithm": "person", "score": 0.91, "threshold": 0.8, "triggered": true},
			{"algorithm": "helmet", "score": 0.30, "threshold": 0.8, "triggered": false},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}

	var out InferenceCallbackOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.AlarmID == "" {
		t.Fatalf("missing alarm_id: %s", w.Body.String())
	}
	// 有触发项时只描述触发项
	if out.Msg != "person@0.91/0.80" {
		t.Fatalf("unexpected msg: %q", out.Msg)
	}

	rec, err := env.alarms.Get(context.Background(), out.AlarmID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.CameraID != "cam1" || rec.RTSPURL != "rtsp://example/1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.SnapshotPath == "" || !strings.Contains(rec.SnapshotURL, "/api/snapshots/") {
		t.Fatalf("snapshot not persisted: %+v", rec)
	}

	// 两个算法各落一条检测事件
	env.events.mu.Lock()
	n := len(env.events.events)
	env.events.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}
}

func TestInferenceCallbackValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/inference/callback", map[string]any{
		"camera_id": "cam1",
		"results":   []map[string]any{},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty results, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/inference/callback", map[string]any{
		"camera_id": "ghost",
		"results":   []map[string]any{{"algorithm": "person", "score": 0.9}},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown camera, got %d", w.Code)
	}
}

func TestListAndGetAlarms(t *testing.T) {
	env := newTestEnv(t)

	for range 3 {
		w := env.do(t, http.MethodPost, "/api/inference/callback", map[string]any{
			"camera_id": "cam1",
			"results":   []map[string]any{{"algorithm": "person", "score": 0.9, "threshold": 0.8, "triggered": true}},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("callback failed: %d %s", w.Code, w.Body.String())
		}
	}

	w := env.do(t, http.MethodGet, "/api/alarms?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}
	var list listAlarmsOutput
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 {
		t.Fatalf("expected 2 alarms, got %d", list.Total)
	}

	w = env.do(t, http.MethodGet, "/api/alarms/"+list.Items[0].AlarmID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get failed: %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/alarms/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestFormatAlarmMsg(t *testing.T) {
	results := []InferenceResult{
		{Algorithm: "person", Score: 0.91, Threshold: 0.8, Triggered: true},
		{Algorithm: "fire", Score: 0.88, Threshold: 0.5, Triggered: true},
		{Algorithm: "helmet", Score: 0.30, Threshold: 0.8},
	}
	if got := formatAlarmMsg(results); got != "person@0.91/0.80; fire@0.88/0.50" {
		t.Fatalf("unexpected msg: %q", got)
	}

	// 无触发项时列全部算法得分
	none := []InferenceResult{
		{Algorithm: "person", Score: 0.42, Threshold: 0.8},
		{Algorithm: "helmet", Score: 0.30, Threshold: 0.8},
	}
	if got := formatAlarmMsg(none); got != "person@0.42; helmet@0.30" {
		t.Fatalf("unexpected msg: %q", got)
	}
}

func TestSystemConfigRedactsSecrets(t *testing.T) {
	env := newTestEnv(t)
	env.conf.Server.HTTP.JwtSecret = "jwt-secret"
	env.conf.Media.Secret = "media-secret"

	w := env.do(t, http.MethodGet, "/api/config/system", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get system failed: %d %s", w.Code, w.Body.String())
	}
	var out conf.Bootstrap
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Server.HTTP.JwtSecret != "" || out.Media.Secret != "" {
		t.Fatalf("secrets leaked: %q %q", out.Server.HTTP.JwtSecret, out.Media.Secret)
	}
	// 只是视图脱敏，内存配置不受影响
	if env.conf.Media.Secret != "media-secret" {
		t.Fatal("in-memory config should keep its secret")
	}
}

func TestPutStreamsReloadsWorkers(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/config/streams", map[string]any{
		"items": []map[string]any{
			{"camera_id": "cam2", "rtsp_url": "rtsp://example/2"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put streams failed: %d %s", w.Code, w.Body.String())
	}

	// 旧摄像头下线，新摄像头上线
	resp := env.do(t, http.MethodPost, "/api/inference/callback", map[string]any{
		"camera_id": "cam1",
		"results":   []map[string]any{{"algorithm": "person", "score": 0.9}},
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("cam1 should be gone, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodPost, "/api/inference/callback", map[string]any{
		"camera_id": "cam2",
		"results":   []map[string]any{{"algorithm": "person", "score": 0.9}},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("cam2 should be online, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health failed: %d", w.Code)
	}
	var out getHealthOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Cameras) != 1 || out.Cameras[0] != "cam1" {
		t.Fatalf("unexpected cameras: %v", out.Cameras)
	}
}
