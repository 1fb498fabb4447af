package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
)

// Client is the bridge's connection to the local bus.
//
// All methods are safe for concurrent use. Subscriptions made through
// Subscribe are tracked and replayed after every reconnect.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	connMu    sync.RWMutex
	connected bool

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)

	logMu  sync.RWMutex
	logger Logger
}

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one bus message. A returned error is logged and
// otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg, registers the offline will on
// the bridge health topic and waits up to defaultConnectTimeout for the
// first connection.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no answer from %s:%d within %v",
			ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs on its own goroutine; mark the client
	// usable now so callers can subscribe straight away.
	c.setConnected(true)
	return c, nil
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

func (c *Client) connectionUp() {
	c.setConnected(true)

	c.subMu.RLock()
	for topic, sub := range c.subscriptions {
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	c.client.Publish(Topics{}.Health(ProtocolHitachi), byte(c.cfg.QoS), true,
		buildStatusPayload("online", c.cfg.Broker.ClientID, ""))

	c.hookMu.RLock()
	hook := c.onConnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) connectionDown(err error) {
	c.setConnected(false)

	c.hookMu.RLock()
	hook := c.onDisconnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(Topics{}.Health(ProtocolHitachi), byte(c.cfg.QoS), true,
			buildStatusPayload("offline", c.cfg.Broker.ClientID, "shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known link state.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect registers fn to run after every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect registers fn to run when the link drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger sets where handler errors and panics are reported.
func (c *Client) SetLogger(logger Logger) {
	c.logMu.Lock()
	c.logger = logger
	c.logMu.Unlock()
}

func (c *Client) log() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.logger
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.deliver(handler, msg.Topic(), msg.Payload())
	}
}

// deliver runs handler with panic recovery.
func (c *Client) deliver(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if l := c.log(); l != nil {
				l.Error("bus handler panicked", "topic", topic, "panic", r)
			}
		}
	}()
	if err := handler(topic, payload); err != nil {
		if l := c.log(); l != nil {
			l.Warn("bus handler failed", "topic", topic, "error", err)
		}
	}
}
