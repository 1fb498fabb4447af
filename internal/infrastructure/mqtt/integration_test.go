//go:build integration

package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
)

// These tests need a broker on 127.0.0.1:1883:
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig("jcihitachi-int-connect"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig("jcihitachi-int-refused")
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("jcihitachi-int-subs"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	handler := func(string, []byte) error { return nil }
	filter := Topics{}.AllCommands(ProtocolHitachi)
	if err := client.Subscribe(filter, 1, handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(filter) || client.SubscriptionCount() != 1 {
		t.Error("subscription not tracked")
	}
	if err := client.Unsubscribe(filter); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	client, err := Connect(integrationConfig("jcihitachi-int-roundtrip"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var (
		mu       sync.Mutex
		received []byte
	)
	done := make(chan struct{})
	once := sync.Once{}
	topic := Topics{}.State(ProtocolHitachi, "int-roundtrip")

	err = client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		mu.Lock()
		received = append([]byte(nil), payload...)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(topic, []byte(`{"Switch":1}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
	mu.Lock()
	defer mu.Unlock()
	if string(received) != `{"Switch":1}` {
		t.Errorf("received %s", received)
	}
}

func TestIntegration_OnConnectHook(t *testing.T) {
	client, err := Connect(integrationConfig("jcihitachi-int-hooks"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.SetOnConnect(func() {})
	client.SetOnDisconnect(func(error) {})
	client.SetLogger(&recordingLogger{})
}
