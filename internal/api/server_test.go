package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/iot"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/session"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
	"github.com/nerrad567/jcihitachi-core/internal/history"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/logging"
)

type fakeController struct {
	mu        sync.Mutex
	dir       *thing.Directory
	connected bool
	host      bool
	sets      []string
	refreshes []string
	setErr    error
	refreshed bool
}

func newFakeController() *fakeController {
	dir := thing.NewDirectory([]thing.Record{
		{ThingName: "ac-1", CustomDeviceName: "Living", DeviceType: thing.DeviceTypeClimate},
		{ThingName: "dh-1", CustomDeviceName: "Dehumidifier", DeviceType: 2},
	})
	dir.ApplyStatus("ac-1", thing.Payload{"Switch": 1, "IndoorTemperature": 24})
	dir.ApplyRegistration("ac-1", thing.Payload{
		"Model":              "RAS-22",
		"FirmwareVersion":    "1.2.3",
		"TemperatureSetting": 16<<8 | 32,
	})
	return &fakeController{dir: dir, connected: true}
}

func (f *fakeController) Devices() []*thing.Thing               { return f.dir.Things() }
func (f *fakeController) Device(name string) (*thing.Thing, bool) { return f.dir.Lookup(name) }
func (f *fakeController) LookupByCustomName(n string) (string, bool) {
	return f.dir.LookupByCustomName(n)
}

func (f *fakeController) GetField(_ context.Context, name, field string, force bool) (any, bool) {
	f.mu.Lock()
	f.refreshed = force
	f.mu.Unlock()
	t, ok := f.dir.Lookup(name)
	if !ok {
		return nil, false
	}
	return t.Field(field)
}

func (f *fakeController) SetField(_ context.Context, name, field string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	fd, ok := thing.LookupField(field)
	if !ok {
		return thing.ErrUnknownField
	}
	if _, err := fd.Encode(value); err != nil {
		return err
	}
	f.sets = append(f.sets, name+"/"+field)
	return nil
}

func (f *fakeController) RefreshDevice(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return session.ErrNotConnected
	}
	f.refreshes = append(f.refreshes, name)
	return nil
}

func (f *fakeController) State() session.State {
	if f.IsConnected() {
		return session.StateReady
	}
	return session.StateLoggedOut
}

func (f *fakeController) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeController) IsHost() bool { return f.host }

type fakeHistory struct{ entries []history.Entry }

func (f *fakeHistory) RecordStateChange(context.Context, string, thing.Payload, string) error {
	return nil
}

func (f *fakeHistory) GetHistory(_ context.Context, name string, limit int) ([]history.Entry, error) {
	var out []history.Entry
	for _, e := range f.entries {
		if e.ThingName == name {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testServer(t *testing.T, hist history.Recorder) (*Server, *fakeController) {
	t.Helper()
	ctrl := newFakeController()
	s, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     logging.Default(),
		Controller: ctrl,
		History:    hist,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, ctrl
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Controller: newFakeController()}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("New() without controller succeeded")
	}
}

func TestHealth(t *testing.T) {
	s, ctrl := testServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "ok" || body["session"] != "ready" || body["devices"] != float64(2) {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	ctrl.mu.Lock()
	ctrl.connected = false
	ctrl.mu.Unlock()
	if body := decode(t, do(t, h, http.MethodGet, "/api/v1/health", "")); body["status"] != "degraded" {
		t.Errorf("disconnected status = %v", body["status"])
	}
}

func TestListAndGetDevices(t *testing.T) {
	s, _ := testServer(t, nil)
	h := s.Handler()

	body := decode(t, do(t, h, http.MethodGet, "/api/v1/devices", ""))
	if body["count"] != float64(2) {
		t.Errorf("count = %v", body["count"])
	}
	body = decode(t, do(t, h, http.MethodGet, "/api/v1/devices?climate=true", ""))
	if body["count"] != float64(1) {
		t.Errorf("climate count = %v", body["count"])
	}

	for _, name := range []string{"ac-1", "Living"} {
		rec := do(t, h, http.MethodGet, "/api/v1/devices/"+name, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", name, rec.Code)
		}
		dev := decode(t, rec)
		if dev["thing_name"] != "ac-1" || dev["model"] != "RAS-22" || dev["climate"] != true {
			t.Errorf("device = %v", dev)
		}
		rng, _ := dev["temperature_range"].(map[string]any)
		if rng["min"] != float64(16) || rng["max"] != float64(32) {
			t.Errorf("temperature_range = %v", dev["temperature_range"])
		}
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/devices/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d", rec.Code)
	}
}

func TestGetField(t *testing.T) {
	s, ctrl := testServer(t, nil)
	h := s.Handler()

	body := decode(t, do(t, h, http.MethodGet, "/api/v1/devices/ac-1/fields/IndoorTemperature?refresh=true", ""))
	if body["value"] != float64(24) || body["known"] != true {
		t.Errorf("body = %v", body)
	}
	ctrl.mu.Lock()
	if !ctrl.refreshed {
		t.Error("refresh=true not forwarded")
	}
	ctrl.mu.Unlock()

	body = decode(t, do(t, h, http.MethodGet, "/api/v1/devices/ac-1/fields/PM25", ""))
	if body["known"] != false || body["value"] != nil {
		t.Errorf("unreported field = %v", body)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/devices/ac-1/fields/Bogus", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown field status = %d", rec.Code)
	}
}

func TestSetField(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		setErr error
		want   int
	}{
		{"accepted", "/api/v1/devices/ac-1/fields/Switch", `{"value":true}`, nil, http.StatusAccepted},
		{"by custom name", "/api/v1/devices/Living/fields/Mode", `{"value":4}`, nil, http.StatusAccepted},
		{"invalid value", "/api/v1/devices/ac-1/fields/Mode", `{"value":9}`, nil, http.StatusUnprocessableEntity},
		{"read only", "/api/v1/devices/ac-1/fields/PM25", `{"value":1}`, nil, http.StatusUnprocessableEntity},
		{"sensor reading", "/api/v1/devices/ac-1/fields/IndoorTemperature", `{"value":20}`, nil, http.StatusUnprocessableEntity},
		{"unknown field", "/api/v1/devices/ac-1/fields/Bogus", `{"value":1}`, nil, http.StatusNotFound},
		{"unknown device", "/api/v1/devices/ac-9/fields/Switch", `{"value":1}`, nil, http.StatusNotFound},
		{"bad json", "/api/v1/devices/ac-1/fields/Switch", `{`, nil, http.StatusBadRequest},
		{"missing value", "/api/v1/devices/ac-1/fields/Switch", `{}`, nil, http.StatusBadRequest},
		{"not connected", "/api/v1/devices/ac-1/fields/Switch", `{"value":1}`, session.ErrNotConnected, http.StatusServiceUnavailable},
		{"host only", "/api/v1/devices/ac-1/fields/QuickMode", `{"value":1}`, session.ErrHostOnly, http.StatusForbidden},
		{"publish failed", "/api/v1/devices/ac-1/fields/Switch", `{"value":1}`, iot.ErrPublishFailed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ctrl := testServer(t, nil)
			ctrl.setErr = tt.setErr
			rec := do(t, s.Handler(), http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRefreshDevice(t *testing.T) {
	s, ctrl := testServer(t, nil)
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/v1/devices/Living/refresh", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	ctrl.mu.Lock()
	if len(ctrl.refreshes) != 1 || ctrl.refreshes[0] != "ac-1" {
		t.Errorf("refreshes = %v", ctrl.refreshes)
	}
	ctrl.connected = false
	ctrl.mu.Unlock()

	if rec := do(t, h, http.MethodPost, "/api/v1/devices/ac-1/refresh", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disconnected status = %d", rec.Code)
	}
}

func TestDeviceHistory(t *testing.T) {
	hist := &fakeHistory{entries: []history.Entry{
		{ID: 2, ThingName: "ac-1", State: thing.Payload{"Switch": 1}, Source: history.SourceCloud, CreatedAt: time.Now()},
		{ID: 1, ThingName: "ac-1", State: thing.Payload{"Switch": 0}, Source: history.SourceCommand, CreatedAt: time.Now()},
	}}
	s, _ := testServer(t, hist)
	h := s.Handler()

	body := decode(t, do(t, h, http.MethodGet, "/api/v1/devices/ac-1/history?limit=1", ""))
	if body["count"] != float64(1) {
		t.Errorf("count = %v", body["count"])
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/devices/ac-1/history?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d", rec.Code)
	}

	noHist, _ := testServer(t, nil)
	if rec := do(t, noHist.Handler(), http.MethodGet, "/api/v1/devices/ac-1/history", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled history status = %d", rec.Code)
	}
}

func TestStartAndClose(t *testing.T) {
	s, _ := testServer(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}

	resp, err := http.Get("http://" + s.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
