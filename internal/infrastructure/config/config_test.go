package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
account:
  email: "user@example.com"
  password: "hunter2"
session:
  login_retry_delay: 120
  max_failed_logins: 3
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  enabled: true
  port: 9090
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Account.Email != "user@example.com" {
		t.Errorf("Account.Email = %q, want %q", cfg.Account.Email, "user@example.com")
	}

	if cfg.Session.MaxFailedLogins != 3 {
		t.Errorf("Session.MaxFailedLogins = %d, want 3", cfg.Session.MaxFailedLogins)
	}

	if cfg.GetLoginRetryDelay() != 2*time.Minute {
		t.Errorf("GetLoginRetryDelay() = %v, want 2m", cfg.GetLoginRetryDelay())
	}

	// Unset values keep their defaults
	if cfg.Cloud.Region != "ap-northeast-1" {
		t.Errorf("Cloud.Region = %q, want default", cfg.Cloud.Region)
	}
	if cfg.Session.ConnectTimeout != 30 {
		t.Errorf("Session.ConnectTimeout = %d, want 30", cfg.Session.ConnectTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
session:
  max_failed_logins: 0
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for max_failed_logins 0, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "missing region",
			mutate:  func(c *Config) { c.Cloud.Region = "" },
			wantErr: true,
		},
		{
			name:    "missing mqtt endpoint",
			mutate:  func(c *Config) { c.Cloud.MQTTEndpoint = "" },
			wantErr: true,
		},
		{
			name:    "zero retry delay",
			mutate:  func(c *Config) { c.Session.LoginRetryDelay = 0 },
			wantErr: true,
		},
		{
			name:    "session qos 2 unsupported by broker",
			mutate:  func(c *Config) { c.Session.QoS = 2 },
			wantErr: true,
		},
		{
			name:    "negative refresh interval",
			mutate:  func(c *Config) { c.Session.StatusRefreshInterval = -1 },
			wantErr: true,
		},
		{
			name: "local mqtt invalid qos",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name: "local mqtt disabled ignores qos",
			mutate: func(c *Config) {
				c.MQTT.Enabled = false
				c.MQTT.QoS = 3
			},
			wantErr: false,
		},
		{
			name: "database enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "api port out of range",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Cloud: CloudConfig{HTTPTimeout: 15},
		Session: SessionConfig{
			LoginRetryDelay:       360,
			ConnectTimeout:        30,
			StatusRefreshInterval: 60,
		},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetLoginRetryDelay(); got != 6*time.Minute {
		t.Errorf("GetLoginRetryDelay() = %v, want 6m", got)
	}
	if got := cfg.GetConnectTimeout().Seconds(); got != 30 {
		t.Errorf("GetConnectTimeout() = %v, want 30", got)
	}
	if got := cfg.GetStatusRefreshInterval().Seconds(); got != 60 {
		t.Errorf("GetStatusRefreshInterval() = %v, want 60", got)
	}
	if got := cfg.GetHTTPTimeout().Seconds(); got != 15 {
		t.Errorf("GetHTTPTimeout() = %v, want 15", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("JCIHITACHI_ACCOUNT_EMAIL", "env@example.com")
	t.Setenv("JCIHITACHI_ACCOUNT_PASSWORD", "env-pass")
	t.Setenv("JCIHITACHI_SESSION_LOGIN_RETRY_DELAY", "30")
	t.Setenv("JCIHITACHI_SESSION_MAX_FAILED_LOGINS", "not-a-number")
	t.Setenv("JCIHITACHI_MQTT_HOST", "mqtt.example.com")
	t.Setenv("JCIHITACHI_DATABASE_PATH", "/custom/path.db")
	t.Setenv("JCIHITACHI_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("JCIHITACHI_API_PORT", "9999")

	applyEnvOverrides(cfg)

	if cfg.Account.Email != "env@example.com" {
		t.Errorf("Account.Email = %q, want %q", cfg.Account.Email, "env@example.com")
	}
	if cfg.Account.Password != "env-pass" {
		t.Errorf("Account.Password = %q, want %q", cfg.Account.Password, "env-pass")
	}
	if cfg.Session.LoginRetryDelay != 30 {
		t.Errorf("Session.LoginRetryDelay = %d, want 30", cfg.Session.LoginRetryDelay)
	}
	if cfg.Session.MaxFailedLogins != 5 {
		t.Errorf("Session.MaxFailedLogins = %d, want unchanged default 5", cfg.Session.MaxFailedLogins)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Session.LoginRetryDelay != 360 {
		t.Errorf("defaultConfig Session.LoginRetryDelay = %d, want 360", cfg.Session.LoginRetryDelay)
	}

	if cfg.Session.MaxFailedLogins != 5 {
		t.Errorf("defaultConfig Session.MaxFailedLogins = %d, want 5", cfg.Session.MaxFailedLogins)
	}

	if cfg.Cloud.UserPoolID != "ap-northeast-1_aTZeaievK" {
		t.Errorf("defaultConfig Cloud.UserPoolID = %q", cfg.Cloud.UserPoolID)
	}

	if cfg.MQTT.Enabled || cfg.API.Enabled || cfg.Database.Enabled || cfg.InfluxDB.Enabled {
		t.Error("defaultConfig should leave optional integrations disabled")
	}
}
