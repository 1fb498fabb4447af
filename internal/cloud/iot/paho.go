package iot

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
)

const (
	eventBufferSize  = 64
	defaultKeepAlive = 120 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 250
)

// PahoOptions configures a paho-backed transport.
type PahoOptions struct {
	Endpoint  string
	Region    string
	KeepAlive time.Duration

	// ConnectTimeout bounds the websocket dial and CONNECT handshake.
	ConnectTimeout time.Duration

	// TLSConfig is used for the websocket; nil uses the system roots.
	TLSConfig *tls.Config
}

// PahoTransport is a Transport over paho.mqtt.golang using a
// SigV4-presigned websocket. Auto-reconnect is disabled: a lost connection
// is reported as EventDisconnection and the transport is not reused.
type PahoTransport struct {
	client pahomqtt.Client
	events chan Event

	mu       sync.Mutex
	stopping bool
	closed   bool
	stopOnce sync.Once
}

// NewPahoFactory returns a TransportFactory that presigns the broker URL
// with each login's credentials.
func NewPahoFactory(opts PahoOptions) TransportFactory {
	return func(creds auth.Credentials, identity auth.Identity) (Transport, error) {
		return NewPahoTransport(context.Background(), opts, creds, identity)
	}
}

// NewPahoTransport builds a transport for identity. The client id is the
// account identity id plus a random 16 hex digit suffix, so concurrent
// sessions of one account do not evict each other.
func NewPahoTransport(ctx context.Context, opts PahoOptions, creds auth.Credentials, identity auth.Identity) (*PahoTransport, error) {
	brokerURL, err := PresignURL(ctx, opts.Endpoint, opts.Region, creds, time.Now())
	if err != nil {
		return nil, err
	}

	t := &PahoTransport{events: make(chan Event, eventBufferSize)}

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}

	po := pahomqtt.NewClientOptions()
	po.AddBroker(brokerURL)
	po.SetClientID(ClientID(identity.IdentityID))
	po.SetProtocolVersion(4)
	po.SetKeepAlive(keepAlive)
	po.SetCleanSession(true)
	po.SetAutoReconnect(false)
	po.SetConnectRetry(false)
	po.SetOrderMatters(false)
	if opts.ConnectTimeout > 0 {
		po.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.TLSConfig != nil {
		po.SetTLSConfig(opts.TLSConfig)
	}

	po.SetConnectionAttemptHandler(func(_ *url.URL, tlsCfg *tls.Config) *tls.Config {
		t.emit(Event{Type: EventAttemptingConnect})
		return tlsCfg
	})
	po.SetOnConnectHandler(func(c pahomqtt.Client) {
		if t.isStopping() {
			// Connected after Stop; nobody consumes this client any more.
			go c.Disconnect(defaultDisconnectQuiesce)
			return
		}
		t.emit(Event{Type: EventConnectionSuccess})
	})
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.emit(Event{Type: EventDisconnection, Err: err})
	})

	t.client = pahomqtt.NewClient(po)
	return t, nil
}

// ClientID returns identityID suffixed with 16 random hex digits.
func ClientID(identityID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return identityID + "_" + suffix
}

// Events returns the event channel.
func (t *PahoTransport) Events() <-chan Event {
	return t.events
}

// emit delivers ev unless the transport has been stopped.
func (t *PahoTransport) emit(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.events <- ev
}

func (t *PahoTransport) isStopping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopping
}

// Start begins connecting. The outcome arrives as an event.
func (t *PahoTransport) Start() error {
	token := t.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			t.emit(Event{Type: EventConnectionFailure, Err: err})
		}
	}()
	return nil
}

// Stop disconnects, emits Disconnection and Stopped, and closes the event
// channel.
func (t *PahoTransport) Stop() error {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopping = true
		t.mu.Unlock()

		wasOpen := t.client.IsConnectionOpen()
		// Disconnect also cancels a connect still in flight.
		t.client.Disconnect(defaultDisconnectQuiesce)
		if wasOpen {
			t.emit(Event{Type: EventDisconnection})
		}
		t.emit(Event{Type: EventStopped})

		t.mu.Lock()
		t.closed = true
		close(t.events)
		t.mu.Unlock()
	})
	return nil
}

// Subscribe subscribes filter and forwards every message as EventMessage.
func (t *PahoTransport) Subscribe(ctx context.Context, filter string, qos byte) error {
	token := t.client.Subscribe(filter, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())
		t.emit(Event{Type: EventMessage, Topic: msg.Topic(), Payload: payload})
	})
	return waitToken(ctx, token, "subscribe")
}

// Unsubscribe removes filter.
func (t *PahoTransport) Unsubscribe(ctx context.Context, filter string) error {
	if !t.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return waitToken(ctx, t.client.Unsubscribe(filter), "unsubscribe")
}

// Publish sends payload on topic and waits for the broker acknowledgement
// at QoS 1.
func (t *PahoTransport) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if !t.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return waitToken(ctx, t.client.Publish(topic, qos, false, payload), "publish")
}

func waitToken(ctx context.Context, token pahomqtt.Token, op string) error {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
