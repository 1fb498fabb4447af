package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	server *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "climate",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false
	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := Connect(testConfig(url)); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteClimate(t *testing.T) {
	fake := newFakeInflux(t)
	client, err := Connect(testConfig(fake.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	client.WriteClimate(ClimateSample{
		ThingName:  "ac-1",
		CustomName: "Living",
		Time:       time.Unix(1700000000, 0),
		Values:     map[string]float64{"indoor_temperature": 24, "switch": 1},
	})
	client.WriteClimate(ClimateSample{ThingName: "ac-2"})
	client.Flush()

	lines := fake.written()
	if len(lines) != 1 {
		t.Fatalf("wrote %d lines, want 1: %v", len(lines), lines)
	}
	line := lines[0]
	for _, want := range []string{"climate,", "thing=ac-1", "name=Living", "indoor_temperature=24", "switch=1"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestClose(t *testing.T) {
	fake := newFakeInflux(t)
	client, err := Connect(testConfig(fake.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	client.WriteClimate(ClimateSample{ThingName: "ac-1", Values: map[string]float64{"switch": 0}})
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestNewClimatePoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	tests := []struct {
		name   string
		sample ClimateSample
		want   string
	}{
		{
			name:   "no values",
			sample: ClimateSample{ThingName: "ac-1", Time: ts},
		},
		{
			name:   "no thing",
			sample: ClimateSample{Values: map[string]float64{"switch": 1}, Time: ts},
		},
		{
			name:   "without custom name",
			sample: ClimateSample{ThingName: "ac-1", Time: ts, Values: map[string]float64{"pm25": 12}},
			want:   "climate,thing=ac-1 pm25=12 1700000000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newClimatePoint(tt.sample)
			if tt.want == "" {
				if p != nil {
					t.Errorf("point = %v, want nil", p)
				}
				return
			}
			if p == nil {
				t.Fatal("point = nil")
			}
			if got := strings.TrimSpace(write.PointToLineProtocol(p, time.Second)); got != tt.want {
				t.Errorf("line = %q, want %q", got, tt.want)
			}
		})
	}
}
