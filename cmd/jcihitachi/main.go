// JCI Hitachi Core - cloud session bridge for Hitachi air conditioners.
//
// This is the main entry point. It logs into the vendor cloud, keeps the
// messaging session alive, and republishes device state on the local MQTT
// bus, the local HTTP/WebSocket API, SQLite history and InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/api"
	"github.com/nerrad567/jcihitachi-core/internal/bridge"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/iot"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/session"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
	"github.com/nerrad567/jcihitachi-core/internal/history"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/database"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/logging"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/jcihitachi-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	pruneInterval   = time.Hour
	logoutTimeout   = 10 * time.Second
	startupCheckTTL = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
// Separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting JCI Hitachi Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// State history (optional)
	var recorder history.Recorder
	if cfg.Database.Enabled {
		store, closeDB, dbErr := openHistory(ctx, cfg, log)
		if dbErr != nil {
			return dbErr
		}
		defer closeDB()
		recorder = store
	} else {
		log.Info("state history disabled")
	}

	// InfluxDB (optional)
	var telemetry bridge.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		telemetry = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	controller, err := newController(cfg, log)
	if err != nil {
		return err
	}

	// Local MQTT bridge (optional)
	var br *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		checkCtx, cancel := context.WithTimeout(ctx, startupCheckTTL)
		healthErr := mqttClient.HealthCheck(checkCtx)
		cancel()
		if healthErr != nil {
			return fmt.Errorf("mqtt: %w", healthErr)
		}
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		br, err = bridge.New(bridge.Options{
			Bus:        mqttClient,
			Controller: controller,
			Telemetry:  telemetry,
			History:    recorder,
			Logger:     log.With("component", "bridge"),
			Version:    version,
			QoS:        byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		})
		if err != nil {
			return fmt.Errorf("creating bridge: %w", err)
		}
		if err := br.Start(ctx); err != nil {
			return fmt.Errorf("starting bridge: %w", err)
		}
		defer func() {
			log.Info("stopping bridge")
			br.Stop()
		}()
	} else {
		log.Info("MQTT bridge disabled")
	}

	// Local API (optional)
	var hub *api.Hub
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log.With("component", "api"),
			Controller: controller,
			History:    recorder,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		hub = server.Hub()
		log.Info("API server listening", "addr", server.Addr())
	} else {
		log.Info("API disabled")
	}

	controller.SetNotify(fanOut(br, hub))
	controller.OnTerminal(func(err error) {
		log.Error("cloud session stopped retrying", "error", err)
	})

	controller.Start(ctx)
	defer func() {
		// ctx is already done here; logout gets its own deadline.
		logoutCtx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		log.Info("logging out of cloud session")
		controller.Logout(logoutCtx)
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("JCI Hitachi Core stopped")
	return nil
}

// newController builds the credential pipeline, the broker transport and
// the session controller that ties them together.
func newController(cfg *config.Config, log *logging.Logger) (*session.Controller, error) {
	authClient, err := auth.NewClient(auth.ClientOptions{
		Cloud:   cfg.Cloud,
		Account: cfg.Account,
		Logger:  log.With("component", "auth"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating auth client: %w", err)
	}
	if !authClient.HasAccount() {
		log.Warn("no account configured; set JCIHITACHI_ACCOUNT_EMAIL and JCIHITACHI_ACCOUNT_PASSWORD")
	}

	tlsCfg, err := auth.TLSConfig(cfg.Cloud)
	if err != nil {
		return nil, fmt.Errorf("building broker TLS config: %w", err)
	}
	factory := iot.NewPahoFactory(iot.PahoOptions{
		Endpoint:       cfg.Cloud.MQTTEndpoint,
		Region:         cfg.Cloud.Region,
		KeepAlive:      time.Duration(cfg.Session.KeepAlive) * time.Second,
		ConnectTimeout: cfg.GetConnectTimeout(),
		TLSConfig:      tlsCfg,
	})

	iotLog := log.With("component", "iot")
	newMessenger := func(dir *thing.Directory, notify iot.NotifyFunc) session.Messenger {
		return iot.NewSession(iot.Options{
			Directory:      dir,
			Factory:        factory,
			Notify:         notify,
			Logger:         iotLog,
			QoS:            byte(cfg.Session.QoS), //nolint:gosec // validated 0-1
			ConnectTimeout: cfg.GetConnectTimeout(),
		})
	}

	return session.NewController(session.Options{
		Pipeline:              authClient,
		NewMessenger:          newMessenger,
		RetryDelay:            cfg.GetLoginRetryDelay(),
		MaxFailedLogins:       cfg.Session.MaxFailedLogins,
		StatusRefreshInterval: cfg.GetStatusRefreshInterval(),
		Logger:                log.With("component", "session"),
	}), nil
}

// openHistory opens the database, applies migrations and starts pruning.
// The returned func closes the database.
func openHistory(ctx context.Context, cfg *config.Config, log *logging.Logger) (*history.Store, func(), error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closeDB := func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}
	log.Info("database connected", "path", db.Path())

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	store := history.NewStore(db.DB)
	retention := time.Duration(cfg.Database.HistoryRetention) * time.Hour
	go store.RunPruner(ctx, retention, pruneInterval, log.With("component", "history"))

	return store, closeDB, nil
}

// fanOut delivers every controller notification to the enabled consumers.
// A nil snapshot means the cloud connection was lost.
func fanOut(br *bridge.Bridge, hub *api.Hub) func(snap *thing.Snapshot) {
	return func(snap *thing.Snapshot) {
		if br != nil {
			br.Notify(snap)
		}
		if hub != nil {
			hub.Notify(snap)
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses JCIHITACHI_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("JCIHITACHI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
