package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the JCI Hitachi cloud core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account   AccountConfig   `yaml:"account"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Session   SessionConfig   `yaml:"session"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AccountConfig holds the cloud account credentials.
// Prefer JCIHITACHI_ACCOUNT_EMAIL / JCIHITACHI_ACCOUNT_PASSWORD over the file.
type AccountConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// CloudConfig describes the fixed cloud service contract.
// Defaults target the production service; tests point the URLs at httptest servers.
type CloudConfig struct {
	Region              string `yaml:"region"`
	ClientID            string `yaml:"client_id"`
	UserPoolID          string `yaml:"user_pool_id"`
	IdentityProviderURL string `yaml:"identity_provider_url"`
	IdentityURL         string `yaml:"identity_url"`
	IoTAPIURL           string `yaml:"iot_api_url"`
	MQTTEndpoint        string `yaml:"mqtt_endpoint"`

	// CAFile is an optional PEM bundle pinned for both HTTPS and the broker websocket.
	CAFile string `yaml:"ca_file"`

	// HTTPTimeout bounds every identity/listing request (seconds).
	HTTPTimeout int `yaml:"http_timeout"`
}

// SessionConfig contains session controller and messaging session settings.
type SessionConfig struct {
	// LoginRetryDelay is the fixed delay before a login retry or re-login (seconds).
	LoginRetryDelay int `yaml:"login_retry_delay"`

	// MaxFailedLogins is the number of consecutive failed logins before giving up.
	MaxFailedLogins int `yaml:"max_failed_logins"`

	// ConnectTimeout bounds the wait for the broker handshake signals (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// KeepAlive is the broker keepalive interval (seconds).
	KeepAlive int `yaml:"keep_alive"`

	// QoS used for the response subscription and all request publishes.
	QoS int `yaml:"qos"`

	// StatusRefreshInterval re-queries every device's status while connected (seconds).
	// 0 disables periodic refresh.
	StatusRefreshInterval int `yaml:"status_refresh_interval"`
}

// MQTTConfig contains local MQTT bus settings used by the bridge.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite settings for the optional state history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention prunes state history older than this many hours. 0 keeps everything.
	HistoryRetention int `yaml:"history_retention"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: JCIHITACHI_SECTION_KEY
// For example: JCIHITACHI_ACCOUNT_EMAIL, JCIHITACHI_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	const region = "ap-northeast-1"

	return &Config{
		Cloud: CloudConfig{
			Region:              region,
			ClientID:            "7kfnjsb66ei1qt5s5gjv6j1lp6",
			UserPoolID:          region + "_aTZeaievK",
			IdentityProviderURL: "https://cognito-idp." + region + ".amazonaws.com",
			IdentityURL:         "https://cognito-identity." + region + ".amazonaws.com",
			IoTAPIURL:           "https://iot-api.jci-hitachi-smarthome.com",
			MQTTEndpoint:        "a8kcu267h96in-ats.iot." + region + ".amazonaws.com",
			HTTPTimeout:         15,
		},
		Session: SessionConfig{
			LoginRetryDelay:       360,
			MaxFailedLogins:       5,
			ConnectTimeout:        30,
			KeepAlive:             120,
			QoS:                   1,
			StatusRefreshInterval: 60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "jcihitachi-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:             "./data/jcihitachi.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 24 * 7,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8089,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: JCIHITACHI_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Account - always prefer the environment for credentials
	if v := os.Getenv("JCIHITACHI_ACCOUNT_EMAIL"); v != "" {
		cfg.Account.Email = v
	}
	if v := os.Getenv("JCIHITACHI_ACCOUNT_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}

	// Cloud
	if v := os.Getenv("JCIHITACHI_CLOUD_CA_FILE"); v != "" {
		cfg.Cloud.CAFile = v
	}

	// Session
	if v, ok := envInt("JCIHITACHI_SESSION_LOGIN_RETRY_DELAY"); ok {
		cfg.Session.LoginRetryDelay = v
	}
	if v, ok := envInt("JCIHITACHI_SESSION_MAX_FAILED_LOGINS"); ok {
		cfg.Session.MaxFailedLogins = v
	}

	// MQTT
	if v := os.Getenv("JCIHITACHI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("JCIHITACHI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("JCIHITACHI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("JCIHITACHI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("JCIHITACHI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("JCIHITACHI_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("JCIHITACHI_API_PORT"); ok {
		cfg.API.Port = v
	}
}

// envInt reads an integer environment variable. Unparseable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors.
//
// Account credentials are deliberately not required here: a missing email or
// password is reported by the session controller when it tries to log in, so
// the process can still start and expose its health endpoint.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Cloud validation
	if c.Cloud.Region == "" {
		errs = append(errs, "cloud.region is required")
	}
	if c.Cloud.ClientID == "" {
		errs = append(errs, "cloud.client_id is required")
	}
	if c.Cloud.UserPoolID == "" {
		errs = append(errs, "cloud.user_pool_id is required")
	}
	if c.Cloud.IdentityProviderURL == "" || c.Cloud.IdentityURL == "" || c.Cloud.IoTAPIURL == "" {
		errs = append(errs, "cloud endpoint URLs are required")
	}
	if c.Cloud.MQTTEndpoint == "" {
		errs = append(errs, "cloud.mqtt_endpoint is required")
	}

	// Session validation
	if c.Session.LoginRetryDelay < 1 {
		errs = append(errs, "session.login_retry_delay must be at least 1 second")
	}
	if c.Session.MaxFailedLogins < 1 {
		errs = append(errs, "session.max_failed_logins must be at least 1")
	}
	if c.Session.ConnectTimeout < 1 {
		errs = append(errs, "session.connect_timeout must be at least 1 second")
	}
	if c.Session.QoS < 0 || c.Session.QoS > 1 {
		errs = append(errs, "session.qos must be 0 or 1")
	}
	if c.Session.StatusRefreshInterval < 0 {
		errs = append(errs, "session.status_refresh_interval cannot be negative")
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetLoginRetryDelay returns the login retry delay as a Duration.
func (c *Config) GetLoginRetryDelay() time.Duration {
	return time.Duration(c.Session.LoginRetryDelay) * time.Second
}

// GetConnectTimeout returns the broker connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Session.ConnectTimeout) * time.Second
}

// GetStatusRefreshInterval returns the periodic status refresh interval as a Duration.
func (c *Config) GetStatusRefreshInterval() time.Duration {
	return time.Duration(c.Session.StatusRefreshInterval) * time.Second
}

// GetHTTPTimeout returns the cloud HTTP timeout as a Duration.
func (c *Config) GetHTTPTimeout() time.Duration {
	return time.Duration(c.Cloud.HTTPTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
