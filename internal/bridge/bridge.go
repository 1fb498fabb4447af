package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
	"github.com/nerrad567/jcihitachi-core/internal/history"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/mqtt"
)

const (
	commandTimeout        = 30 * time.Second
	defaultHealthInterval = 30 * time.Second
	notifyQueueSize       = 64
	historyTimeout        = 5 * time.Second
)

// Bus is the local MQTT client. *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Controller is the part of session.Controller the bridge drives.
type Controller interface {
	SetField(ctx context.Context, name, field string, value any) error
	RefreshDevice(ctx context.Context, name string) error
	Device(name string) (*thing.Thing, bool)
	Devices() []*thing.Thing
	IsConnected() bool
}

// Telemetry receives climate readings. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteClimate(s influxdb.ClimateSample)
	WriteBridgeEvent(event string, ts time.Time)
}

// Logger is the subset of logging.Logger the bridge uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge. Bus, Controller and Logger are required;
// Telemetry and History are optional sinks.
type Options struct {
	Bus        Bus
	Controller Controller
	Telemetry  Telemetry
	History    history.Recorder
	Logger     Logger

	Version        string
	QoS            byte
	HealthInterval time.Duration
	Now            func() time.Time
}

// Bridge republishes cloud state on the local bus and executes bus
// commands against the cloud session.
type Bridge struct {
	bus       Bus
	ctrl      Controller
	telemetry Telemetry
	history   history.Recorder
	log       Logger

	version        string
	qos            byte
	healthInterval time.Duration
	now            func() time.Time
	started        time.Time
	topics         mqtt.Topics

	// mu guards closed; queue sends and wg.Add happen under RLock so
	// Stop can close the queue and wait safely.
	mu     sync.RWMutex
	closed bool
	queue  chan *thing.Snapshot

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New validates opts and builds a Bridge. Call Start to begin.
func New(opts Options) (*Bridge, error) {
	switch {
	case opts.Bus == nil:
		return nil, errors.New("bridge: bus is required")
	case opts.Controller == nil:
		return nil, errors.New("bridge: controller is required")
	case opts.Logger == nil:
		return nil, errors.New("bridge: logger is required")
	}
	b := &Bridge{
		bus:            opts.Bus,
		ctrl:           opts.Controller,
		telemetry:      opts.Telemetry,
		history:        opts.History,
		log:            opts.Logger,
		version:        opts.Version,
		qos:            opts.QoS,
		healthInterval: opts.HealthInterval,
		now:            opts.Now,
		queue:          make(chan *thing.Snapshot, notifyQueueSize),
	}
	if b.healthInterval <= 0 {
		b.healthInterval = defaultHealthInterval
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.qos > 2 {
		b.qos = 1
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b, nil
}

// Start subscribes to the command topics and starts the state publisher
// and health loop.
func (b *Bridge) Start(ctx context.Context) error {
	b.started = b.now()
	b.publishHealth(HealthStarting, "bridge starting")

	filter := b.topics.AllCommands(mqtt.ProtocolHitachi)
	if err := b.bus.Subscribe(filter, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", filter, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("bridge: stopped")
	}
	b.wg.Add(2)
	go b.publishLoop()
	go b.healthLoop(ctx)
	b.log.Info("bridge started", "commands", filter)
	return nil
}

// Stop cancels in-flight commands, drains queued state and publishes a
// final stopping status. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		_ = b.bus.Unsubscribe(b.topics.AllCommands(mqtt.ProtocolHitachi)) //nolint:errcheck // shutting down
		b.mu.Lock()
		b.closed = true
		b.cancel()
		close(b.queue)
		b.mu.Unlock()
		b.wg.Wait()
		b.publishHealth(HealthStopping, "bridge stopping")
	})
}

// Notify is the session change callback. A nil snapshot means the cloud
// connection was lost.
func (b *Bridge) Notify(snap *thing.Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- snap:
	default:
		b.log.Warn("state queue full, dropping notification")
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for snap := range b.queue {
		if snap == nil {
			b.connectionLost()
			continue
		}
		b.publishState(*snap)
	}
}

func (b *Bridge) connectionLost() {
	b.log.Warn("cloud connection lost")
	if b.telemetry != nil {
		b.telemetry.WriteBridgeEvent("connection_lost", b.now())
	}
	b.publishHealth(HealthDegraded, "cloud connection lost")
}

// publishState fans a status update out to the bus and the sinks.
// Non-climate devices are ignored.
func (b *Bridge) publishState(snap thing.Snapshot) {
	if snap.DeviceType != thing.DeviceTypeClimate {
		b.log.Debug("ignoring non-climate device", "thing", snap.Name, "device_type", snap.DeviceType)
		return
	}
	now := b.now().UTC()

	msg := StateMessage{
		ThingName:    snap.Name,
		CustomName:   snap.CustomName,
		Timestamp:    now,
		State:        snap.Status,
		Registration: snap.Registration,
		Protocol:     mqtt.ProtocolHitachi,
	}
	if msg.State == nil {
		msg.State = thing.Payload{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("encoding state", "thing", snap.Name, "error", err)
		return
	}
	if err := b.bus.Publish(b.topics.State(mqtt.ProtocolHitachi, snap.Name), data, b.qos, true); err != nil {
		b.log.Warn("publishing state", "thing", snap.Name, "error", err)
	}

	if b.telemetry != nil {
		b.telemetry.WriteClimate(influxdb.ClimateSample{
			ThingName:  snap.Name,
			CustomName: snap.CustomName,
			Time:       now,
			Values:     TelemetryValues(snap.Status),
		})
	}
	b.record(snap.Name, snap.Status, history.SourceCloud)
}

func (b *Bridge) record(name string, state thing.Payload, source string) {
	if b.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, historyTimeout)
	defer cancel()
	if err := b.history.RecordStateChange(ctx, name, state, source); err != nil {
		b.log.Warn("recording state history", "thing", name, "error", err)
	}
}

// telemetryFields maps recorded status fields to their InfluxDB field names.
var telemetryFields = map[string]string{
	thing.FieldSwitch:             "switch",
	thing.FieldMode:               "mode",
	thing.FieldTemperatureSetting: "temperature_setting",
	thing.FieldIndoorTemperature:  "indoor_temperature",
	thing.FieldIndoorHumidity:     "indoor_humidity",
	thing.FieldPM25:               "pm25",
	thing.FieldFanSpeed:           "fan_speed",
}

// TelemetryValues extracts the numeric readings of a status payload.
// Switch is recorded as 0 or 1.
func TelemetryValues(status thing.Payload) map[string]float64 {
	values := make(map[string]float64, len(telemetryFields))
	for name, key := range telemetryFields {
		f, ok := thing.LookupField(name)
		if !ok {
			continue
		}
		v, ok := f.Extract(status)
		if !ok {
			continue
		}
		switch x := v.(type) {
		case bool:
			values[key] = 0
			if x {
				values[key] = 1
			}
		case int:
			values[key] = float64(x)
		}
	}
	return values
}
