package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-home/internal/audit"
	"github.com/nerrad567/gray-logic-home/internal/control"
	"github.com/nerrad567/gray-logic-home/internal/device"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/database/databasetest"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-home/internal/metrics"
	"github.com/nerrad567/gray-logic-home/internal/schedule"
	"github.com/nerrad567/gray-logic-home/internal/usage"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// ─── Mock Sender ───────────────────────────────────────────────────

// stubSender accepts every command without touching the network.
type stubSender struct {
	mu    sync.Mutex
	calls []control.Intent
}

func (s *stubSender) Send(_ context.Context, _ *device.Device, intent control.Intent, _ control.Params) control.DispatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, intent)
	return control.DispatchResult{Outcome: control.OutcomeOK, URL: "http://test/cmd", StatusCode: http.StatusOK}
}

// ─── Test Server ───────────────────────────────────────────────────

type testEnv struct {
	srv      *Server
	handler  http.Handler
	registry *device.Registry
	acc      *usage.Accumulator
	sender   *stubSender
}

// testServer creates a Server over a real stack backed by in-memory SQLite.
func testServer(t *testing.T) *testEnv {
	t.Helper()
	return testServerWith(t, nil)
}

// testServerWith lets a test adjust the dependencies before New.
func testServerWith(t *testing.T, adjust func(*Deps)) *testEnv {
	t.Helper()

	db := databasetest.Open(t)
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	logs := audit.NewSQLiteRepository(db.DB)

	usageCfg := config.UsageConfig{
		PricePerKWh: 3000, PowerRates: config.DefaultPowerRates(), DefaultRate: 0.01, StaleSessionHours: 24,
	}
	acc := usage.NewAccumulator(usage.NewSQLiteRepository(db.DB), usage.TariffFromConfig(usageCfg), time.UTC)

	sender := &stubSender{}
	svc := control.NewService(registry, sender, acc, logs)
	schedules := schedule.NewService(schedule.NewSQLiteRepository(db.DB), registry, time.UTC)

	deps := Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:        config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security:  config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Usage:     usageCfg,
		Logger:    logging.Discard(),
		Registry:  registry,
		Control:   svc,
		Logs:      logs,
		Stats:     acc,
		Schedules: schedules,
		Metrics:   metrics.New(),
		Database:  db,
		Version:   "test",
	}
	if adjust != nil {
		adjust(&deps)
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	svc.AddPublisher(srv.Hub())

	return &testEnv{srv: srv, handler: srv.Handler(), registry: registry, acc: acc, sender: sender}
}

func (e *testEnv) addDevice(t *testing.T, d *device.Device) {
	t.Helper()
	if err := e.registry.Create(context.Background(), d); err != nil {
		t.Fatalf("Create(%s) error = %v", d.ID, err)
	}
}

// do sends a request through the router. token may be empty.
func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func signToken(t *testing.T, subject, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Health ────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})

	w := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["database"] != "ok" || resp["devices"] != float64(1) {
		t.Errorf("health = %v", resp)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

type stubHealth struct{ err error }

func (h stubHealth) HealthCheck(context.Context) error { return h.err }

func TestHealth_OptionalIntegrations(t *testing.T) {
	tests := []struct {
		name       string
		broker     HealthChecker
		telemetry  HealthChecker
		wantStatus string
		wantMQTT   string
		wantInflux string
	}{
		{"disabled", nil, nil, "ok", "disabled", "disabled"},
		{"both up", stubHealth{}, stubHealth{}, "ok", "ok", "ok"},
		{"broker down", stubHealth{err: errors.New("not connected")}, stubHealth{}, "degraded", "unavailable", "ok"},
		{"telemetry down", nil, stubHealth{err: errors.New("ping failed")}, "degraded", "disabled", "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServerWith(t, func(d *Deps) {
				d.Broker = tt.broker
				d.Telemetry = tt.telemetry
			})

			w := env.do(t, http.MethodGet, "/api/v1/health", "", "")
			if w.Code != http.StatusOK {
				t.Fatalf("health status = %d, want 200", w.Code)
			}
			resp := decode[map[string]any](t, w)
			if resp["status"] != tt.wantStatus || resp["mqtt"] != tt.wantMQTT || resp["influxdb"] != tt.wantInflux {
				t.Errorf("health = %v", resp)
			}
		})
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestCreateDevice(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"id":"light-1","name":"Living Light","type":"light","room":"living_room","address":"192.168.1.50"}`, http.StatusCreated},
		{"duplicate", `{"id":"light-1","name":"Other","type":"light"}`, http.StatusConflict},
		{"unknown type", `{"name":"Toaster","type":"toaster"}`, http.StatusBadRequest},
		{"missing name", `{"type":"fan"}`, http.StatusBadRequest},
		{"unknown field", `{"name":"Fan","type":"fan","colour":"red"}`, http.StatusBadRequest},
		{"invalid json", `{"name":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/devices", tt.body, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestListAndGetDevices(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "light-1", Name: "Light", Type: device.TypeLight, Room: device.RoomBedroom})
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan, Room: device.RoomBedroom})
	env.addDevice(t, &device.Device{ID: "fan-2", Name: "Fan 2", Type: device.TypeFan, Room: device.RoomKitchen})

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?type=fan", 2},
		{"?room=bedroom", 2},
		{"?type=fan&room=kitchen", 1},
		{"?type=door", 0},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, "/api/v1/devices"+tt.query, "", "")
		resp := decode[map[string]any](t, w)
		if resp["count"] != float64(tt.want) {
			t.Errorf("list%s count = %v, want %d", tt.query, resp["count"], tt.want)
		}
	}

	if w := env.do(t, http.MethodGet, "/api/v1/devices/fan-1", "", ""); w.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/devices/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing status = %d, want 404", w.Code)
	}
	if resp := decode[Error](t, w); resp.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", resp.Code, ErrCodeNotFound)
	}
}

// ─── Control ───────────────────────────────────────────────────────

func TestControlDevice(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "light-1", Name: "Light", Type: device.TypeLight, Address: "192.168.1.50"})

	w := env.do(t, http.MethodPost, "/api/v1/devices/light-1/control", `{"action":"on","brightness":40}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("control status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Device   device.Device          `json:"device"`
		Changed  bool                   `json:"changed"`
		Action   string                 `json:"action"`
		Dispatch control.DispatchResult `json:"dispatch"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Device.IsOn || !resp.Changed || resp.Action != "on" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Device.Status["brightness"] != float64(40) || resp.Device.Status["color"] != "#ffffff" {
		t.Errorf("status = %v, want brightness 40 and default color", resp.Device.Status)
	}
	if resp.Dispatch.Outcome != control.OutcomeOK {
		t.Errorf("dispatch = %+v", resp.Dispatch)
	}

	// Nested params and toggle.
	w = env.do(t, http.MethodPost, "/api/v1/devices/light-1/control", `{"action":"toggle","params":{"color":"#ff0000"}}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body %s", w.Code, w.Body.String())
	}
	got, _ := env.registry.Get(context.Background(), "light-1")
	if got.IsOn || got.Status["color"] != "#ff0000" {
		t.Errorf("after toggle = %+v", got)
	}
}

func TestControlDevice_Errors(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"missing action", "/api/v1/devices/fan-1/control", `{}`, http.StatusBadRequest},
		{"unknown action", "/api/v1/devices/fan-1/control", `{"action":"explode"}`, http.StatusBadRequest},
		{"speed out of range", "/api/v1/devices/fan-1/control", `{"action":"on","speed":500}`, http.StatusBadRequest},
		{"speed not a number", "/api/v1/devices/fan-1/control", `{"action":"on","speed":"fast"}`, http.StatusBadRequest},
		{"invalid json", "/api/v1/devices/fan-1/control", `nope`, http.StatusBadRequest},
		{"unknown device", "/api/v1/devices/ghost/control", `{"action":"on"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	if len(env.sender.calls) != 0 {
		t.Errorf("rejected requests sent %d commands", len(env.sender.calls))
	}
}

// ─── Identity ──────────────────────────────────────────────────────

func TestIdentity(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})

	if w := env.do(t, http.MethodPost, "/api/v1/devices/fan-1/control", `{"action":"on"}`, signToken(t, "user-7", testSecret)); w.Code != http.StatusOK {
		t.Fatalf("signed request status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/devices", "", signToken(t, "user-7", "another-secret-that-is-long-enough!!")); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/devices", "", "garbage"); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/health", "", "garbage"); w.Code != http.StatusOK {
		t.Errorf("health with bad token = %d, want 200", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/devices/fan-1/logs", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("logs status = %d", w.Code)
	}
	page := decode[audit.ListResult](t, w)
	if page.Total != 1 || page.Logs[0].UserID != "user-7" || page.Logs[0].Source != audit.SourceAPI {
		t.Errorf("logs = %+v, want one api entry by user-7", page.Logs)
	}
}

// ─── Logs ──────────────────────────────────────────────────────────

func TestDeviceLogs(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})

	for _, action := range []string{"on", "off", "on"} {
		env.do(t, http.MethodPost, "/api/v1/devices/fan-1/control", fmt.Sprintf(`{"action":%q}`, action), "")
	}

	tests := []struct {
		query     string
		wantCode  int
		wantLogs  int
		wantTotal int
	}{
		{"", http.StatusOK, 3, 3},
		{"?limit=2", http.StatusOK, 2, 3},
		{"?limit=2&offset=2", http.StatusOK, 1, 3},
		{"?action=off", http.StatusOK, 1, 1},
		{"?limit=abc", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, "/api/v1/devices/fan-1/logs"+tt.query, "", "")
		if w.Code != tt.wantCode {
			t.Errorf("logs%s status = %d, want %d", tt.query, w.Code, tt.wantCode)
			continue
		}
		if tt.wantCode != http.StatusOK {
			continue
		}
		page := decode[audit.ListResult](t, w)
		if len(page.Logs) != tt.wantLogs || page.Total != tt.wantTotal {
			t.Errorf("logs%s = %d of %d, want %d of %d", tt.query, len(page.Logs), page.Total, tt.wantLogs, tt.wantTotal)
		}
	}

	if w := env.do(t, http.MethodGet, "/api/v1/devices/ghost/logs", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("logs for unknown device = %d, want 404", w.Code)
	}
}

// ─── Statistics ────────────────────────────────────────────────────

func TestStatistics(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})

	start := time.Now().UTC().Add(-2 * time.Hour)
	now := start
	env.acc.SetClock(func() time.Time { return now })

	env.do(t, http.MethodPost, "/api/v1/devices/fan-1/control", `{"action":"on"}`, "")
	now = start.Add(time.Hour)

	w := env.do(t, http.MethodGet, "/api/v1/statistics/realtime", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("realtime status = %d", w.Code)
	}
	realtime := decode[map[string]any](t, w)
	if realtime["count"] != float64(1) || realtime["running_minutes"] != float64(60) {
		t.Errorf("realtime = %v", realtime)
	}

	env.do(t, http.MethodPost, "/api/v1/devices/fan-1/control", `{"action":"off"}`, "")

	w = env.do(t, http.MethodGet, "/api/v1/devices/fan-1/statistics?days=3", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("device statistics status = %d", w.Code)
	}
	stats := decode[map[string]any](t, w)
	totals, _ := stats["totals"].(map[string]any)
	if totals["total_usage_minutes"] != float64(60) || totals["turn_on_count"] != float64(1) {
		t.Errorf("totals = %v", totals)
	}

	w = env.do(t, http.MethodGet, "/api/v1/statistics/overall?days=7", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("overall status = %d", w.Code)
	}
	if summary := decode[usage.Summary](t, w); summary.TotalUsageMinutes != 60 || len(summary.Devices) != 1 {
		t.Errorf("summary = %+v", summary)
	}

	bad := []string{
		"/api/v1/devices/fan-1/statistics?days=0",
		"/api/v1/devices/fan-1/statistics?days=many",
		"/api/v1/statistics/overall?from=2026-03-10&to=2026-03-01",
		"/api/v1/statistics/overall?from=03/01/2026",
	}
	for _, path := range bad {
		if w := env.do(t, http.MethodGet, path, "", ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, w.Code)
		}
	}
}

func TestCleanupSessions(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})

	start := time.Now().UTC().Add(-48 * time.Hour)
	now := start
	env.acc.SetClock(func() time.Time { return now })
	env.do(t, http.MethodPost, "/api/v1/devices/fan-1/control", `{"action":"on"}`, "")
	now = time.Now().UTC()

	if w := env.do(t, http.MethodPost, "/api/v1/statistics/cleanup-sessions?max_age_hours=0", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("max_age_hours=0 status = %d, want 400", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/v1/statistics/cleanup-sessions", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", w.Code)
	}
	if resp := decode[map[string]any](t, w); resp["closed"] != float64(1) || resp["max_age_hours"] != float64(24) {
		t.Errorf("cleanup = %v", resp)
	}
}

// ─── Schedules ─────────────────────────────────────────────────────

func TestScheduleLifecycle(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})
	alice := signToken(t, "alice", testSecret)
	bob := signToken(t, "bob", testSecret)

	w := env.do(t, http.MethodPost, "/api/v1/schedules",
		`{"device_id":"fan-1","action":"on","time_of_day":"07:30","repeat":"weekly","repeat_days":["mon","fri"]}`, alice)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	created := decode[schedule.Schedule](t, w)
	if created.UserID != "alice" || !created.IsActive || created.Name == "" {
		t.Errorf("created = %+v", created)
	}
	path := "/api/v1/schedules/" + created.ID

	if resp := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/schedules", "", alice)); resp["count"] != float64(1) {
		t.Errorf("alice sees %v schedules, want 1", resp["count"])
	}
	if resp := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/v1/schedules", "", bob)); resp["count"] != float64(0) {
		t.Errorf("bob sees %v schedules, want 0", resp["count"])
	}
	if w := env.do(t, http.MethodGet, path, "", bob); w.Code != http.StatusNotFound {
		t.Errorf("bob get status = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodPut, path, `{"time_of_day":"08:00"}`, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	if updated := decode[schedule.Schedule](t, w); updated.TimeOfDay.String() != "08:00" {
		t.Errorf("updated time = %s, want 08:00", updated.TimeOfDay)
	}

	w = env.do(t, http.MethodPost, path+"/toggle", "", alice)
	if toggled := decode[schedule.Schedule](t, w); w.Code != http.StatusOK || toggled.IsActive {
		t.Errorf("toggle = %d %+v, want inactive", w.Code, toggled)
	}

	if w := env.do(t, http.MethodDelete, path, "", bob); w.Code != http.StatusNotFound {
		t.Errorf("bob delete status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, "", alice); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := env.do(t, http.MethodGet, path, "", alice); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestCreateSchedule_Validation(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad time", `{"device_id":"fan-1","action":"on","time_of_day":"25:00"}`, http.StatusBadRequest},
		{"bad action", `{"device_id":"fan-1","action":"dance","time_of_day":"07:00"}`, http.StatusBadRequest},
		{"weekly without days", `{"device_id":"fan-1","action":"on","time_of_day":"07:00","repeat":"weekly"}`, http.StatusBadRequest},
		{"bad weekday", `{"device_id":"fan-1","action":"on","time_of_day":"07:00","repeat":"weekly","repeat_days":["funday"]}`, http.StatusBadRequest},
		{"unknown device", `{"device_id":"ghost","action":"on","time_of_day":"07:00"}`, http.StatusNotFound},
		{"daily", `{"device_id":"fan-1","action":"off","time_of_day":"23:00","repeat":"daily"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/api/v1/schedules", tt.body, ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t)
	env.do(t, http.MethodGet, "/api/v1/devices", "", "")

	w := env.do(t, http.MethodGet, "/api/v1/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `grayhome_http_requests_total{route="/api/v1/devices",status="200"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", w.Body.String())
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestWebSocket_DeviceUpdates(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.Hub().Run(ctx)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/devices/fan-1/control", `{"action":"on"}`, ""); w.Code != http.StatusOK {
		t.Fatalf("control status = %d", w.Code)
	}

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type      string               `json:"type"`
		EventType string               `json:"event_type"`
		Payload   control.DeviceUpdate `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != control.ChannelDeviceUpdates {
		t.Errorf("message = %+v", msg)
	}
	if msg.Payload.Device == nil || msg.Payload.Device.ID != "fan-1" || !msg.Payload.Device.IsOn {
		t.Errorf("payload = %+v", msg.Payload)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	env := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.Hub().Run(ctx)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "p1" {
		t.Errorf("response = %+v, want pong p1", resp)
	}
}

func TestWebSocket_Subscriptions(t *testing.T) {
	env := testServer(t)
	env.addDevice(t, &device.Device{ID: "fan-1", Name: "Fan", Type: device.TypeFan})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.Hub().Run(ctx)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	read := func() WSMessage {
		t.Helper()
		//nolint:errcheck // test deadline
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m WSMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return m
	}

	tests := []struct {
		name     string
		msg      WSMessage
		wantType string
	}{
		{"unknown channel", WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Channels: []string{"alarms"}}}, WSTypeError},
		{"empty channels", WSMessage{Type: WSTypeSubscribe, ID: "s2", Payload: WSSubscribePayload{}}, WSTypeError},
		{"unknown type", WSMessage{Type: "shout", ID: "s3"}, WSTypeError},
		{"unsubscribe", WSMessage{Type: WSTypeUnsubscribe, ID: "s4", Payload: WSSubscribePayload{Channels: []string{control.ChannelDeviceUpdates}}}, WSTypeResponse},
	}
	for _, tt := range tests {
		if err := conn.WriteJSON(tt.msg); err != nil {
			t.Fatalf("%s: WriteJSON() error = %v", tt.name, err)
		}
		if got := read(); got.Type != tt.wantType || got.ID != tt.msg.ID {
			t.Errorf("%s: response = %+v, want type %s", tt.name, got, tt.wantType)
		}
	}

	// Unsubscribed: a transition is not delivered, but the next ping is
	// answered first.
	env.do(t, http.MethodPost, "/api/v1/devices/fan-1/control", `{"action":"on"}`, "")
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p2"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if got := read(); got.Type != WSTypePong || got.ID != "p2" {
		t.Errorf("after unsubscribe got %+v, want pong p2", got)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("New() with no dependencies should fail")
	}
}
